package vectorindex

import (
	"context"
	"sort"
	"sync"

	dErrors "facegate/pkg/domain-errors"
	id "facegate/pkg/domain"
)

// BruteForce is the in-process reference backend: an O(n) scan over all
// stored vectors. Used directly for small corpora and as the correctness
// oracle for the remote backend.
//
// A single RWMutex gives the required single-writer/multi-reader discipline:
// searches share the read lock, mutations take the write lock, so a search
// never observes a half-applied mutation.
type BruteForce struct {
	mu      sync.RWMutex
	vectors map[id.ProfileID][]float32
}

// NewBruteForce creates an empty brute-force index.
func NewBruteForce() *BruteForce {
	return &BruteForce{vectors: make(map[id.ProfileID][]float32)}
}

// Add inserts a vector, replacing any existing vector for the id.
func (b *BruteForce) Add(ctx context.Context, profileID id.ProfileID, vec []float32) error {
	if len(vec) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "vector is empty")
	}
	cp := append([]float32(nil), vec...)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.vectors[profileID] = cp
	return nil
}

// Remove deletes the vector for the id. Removing an absent id is a no-op.
func (b *BruteForce) Remove(ctx context.Context, profileID id.ProfileID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.vectors, profileID)
	return nil
}

// Search scans all vectors and returns the k best matches.
func (b *BruteForce) Search(ctx context.Context, vec []float32, k int, excludeID *id.ProfileID) ([]Match, error) {
	if k <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "k must be positive")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	matches := make([]Match, 0, len(b.vectors))
	for pid, stored := range b.vectors {
		if excludeID != nil && pid == *excludeID {
			continue
		}
		if len(stored) != len(vec) {
			continue
		}
		matches = append(matches, Match{
			ProfileID: pid,
			Cosine:    Cosine(vec, stored),
			L2:        L2(vec, stored),
		})
	}

	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Rebuild atomically replaces the index contents.
func (b *BruteForce) Rebuild(ctx context.Context, entries []Entry) error {
	next := make(map[id.ProfileID][]float32, len(entries))
	for _, e := range entries {
		if len(e.Vector) == 0 {
			return dErrors.Newf(dErrors.CodeInvalidInput, "empty vector for profile %s", e.ProfileID)
		}
		next[e.ProfileID] = append([]float32(nil), e.Vector...)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.vectors = next
	return nil
}

// Stats reports backend state.
func (b *BruteForce) Stats(ctx context.Context) (Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dim := 0
	for _, v := range b.vectors {
		dim = len(v)
		break
	}
	return Stats{
		TotalVectors: len(b.vectors),
		Dimension:    dim,
		Backend:      "bruteforce",
	}, nil
}

// Entries snapshots the current contents, for persistence.
func (b *BruteForce) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, 0, len(b.vectors))
	for pid, v := range b.vectors {
		out = append(out, Entry{ProfileID: pid, Vector: append([]float32(nil), v...)})
	}
	return out
}

// sortMatches orders by descending cosine similarity with a deterministic
// ascending-id tie-break.
func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Cosine != matches[j].Cosine {
			return matches[i].Cosine > matches[j].Cosine
		}
		return matches[i].ProfileID.String() < matches[j].ProfileID.String()
	})
}
