// Package vectorindex stores and searches embedding vectors for nearest
// neighbors. Two interchangeable backends implement the same contract: an
// in-process brute-force scan (reference implementation and correctness
// oracle) and a remote ANN process reached over line-delimited JSON-RPC.
//
// The index is a cache. The encrypted face profile store is the source of
// truth; a lost index is rebuilt from it.
package vectorindex

import (
	"context"
	"math"

	id "facegate/pkg/domain"
)

// Match is one ranked search result.
type Match struct {
	ProfileID id.ProfileID
	// Cosine similarity to the query, bounded [-1,1].
	Cosine float64
	// L2 distance to the query.
	L2 float64
}

// Entry pairs a profile id with its plaintext vector, used for bulk rebuild.
type Entry struct {
	ProfileID id.ProfileID
	Vector    []float32
}

// Stats describes the current state of a backend.
type Stats struct {
	TotalVectors int
	Dimension    int
	Backend      string
}

// Index is the similarity search contract. Mutations are mutually exclusive
// with each other and are never observed half-applied by a concurrent Search.
type Index interface {
	// Add inserts a vector, replacing any existing vector for the id.
	Add(ctx context.Context, profileID id.ProfileID, vec []float32) error
	// Remove deletes the vector for the id; removing an absent id is a no-op.
	Remove(ctx context.Context, profileID id.ProfileID) error
	// Search returns up to k matches ranked by descending cosine similarity,
	// ties broken by ascending profile id. excludeID, when set, is filtered
	// from the results.
	Search(ctx context.Context, vec []float32, k int, excludeID *id.ProfileID) ([]Match, error)
	// Rebuild atomically replaces the entire index contents.
	Rebuild(ctx context.Context, entries []Entry) error
	// Stats reports backend state.
	Stats(ctx context.Context) (Stats, error)
}

// Cosine computes dot(a,b)/(|a|*|b|). It returns 0 when either norm is zero,
// where the similarity is undefined.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// L2 computes the Euclidean distance between two vectors.
func L2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
