package vectorindex

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
)

// fakeIndexServer speaks the line-delimited JSON-RPC wire protocol over
// in-process pipes, backed by a BruteForce index so remote results can be
// checked against the reference backend.
type fakeIndexServer struct {
	backing *BruteForce
	in      io.Reader
	out     io.Writer
}

func startFakeServer(t *testing.T) (*Remote, *fakeIndexServer) {
	t.Helper()

	clientIn, serverOut := io.Pipe()
	serverIn, clientOut := io.Pipe()

	srv := &fakeIndexServer{backing: NewBruteForce(), in: serverIn, out: serverOut}
	go srv.serve()
	t.Cleanup(func() {
		_ = clientOut.Close()
		_ = serverOut.Close()
	})

	return newRemote(clientOut, clientIn, WithCallTimeout(2*time.Second)), srv
}

func (f *fakeIndexServer) serve() {
	ctx := context.Background()
	scanner := bufio.NewScanner(f.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		var req rpcRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		resp := rpcResponse{Jsonrpc: "2.0", ID: req.ID}

		params, _ := json.Marshal(req.Params)
		switch req.Method {
		case "add_vector":
			var p struct {
				FaceProfileID string    `json:"face_profile_id"`
				Embedding     []float32 `json:"embedding"`
			}
			_ = json.Unmarshal(params, &p)
			pid, err := id.ParseProfileID(p.FaceProfileID)
			if err != nil {
				resp.Error = &rpcError{Code: -32602, Message: "bad profile id"}
				break
			}
			if err := f.backing.Add(ctx, pid, p.Embedding); err != nil {
				resp.Error = &rpcError{Code: -32000, Message: err.Error()}
				break
			}
			resp.Result = mustRaw(map[string]any{"success": true})
		case "remove_vector":
			var p struct {
				FaceProfileID string `json:"face_profile_id"`
			}
			_ = json.Unmarshal(params, &p)
			pid, _ := id.ParseProfileID(p.FaceProfileID)
			_ = f.backing.Remove(ctx, pid)
			resp.Result = mustRaw(map[string]any{"success": true})
		case "search_similar":
			var p struct {
				Embedding []float32 `json:"embedding"`
				K         int       `json:"k"`
				ExcludeID string    `json:"exclude_id"`
			}
			_ = json.Unmarshal(params, &p)
			var exclude *id.ProfileID
			if p.ExcludeID != "" {
				pid, _ := id.ParseProfileID(p.ExcludeID)
				exclude = &pid
			}
			matches, err := f.backing.Search(ctx, p.Embedding, p.K, exclude)
			if err != nil {
				resp.Error = &rpcError{Code: -32000, Message: err.Error()}
				break
			}
			results := make([]map[string]any, 0, len(matches))
			// Shuffle so the client's own re-ranking is what the test observes.
			rand.Shuffle(len(matches), func(i, j int) { matches[i], matches[j] = matches[j], matches[i] })
			for _, m := range matches {
				results = append(results, map[string]any{
					"face_profile_id": m.ProfileID.String(),
					"similarity":      m.Cosine,
					"distance":        m.L2,
				})
			}
			resp.Result = mustRaw(map[string]any{"results": results})
		case "rebuild_from_database":
			var p struct {
				FaceProfiles []struct {
					ID        string    `json:"id"`
					Embedding []float32 `json:"embedding"`
				} `json:"face_profiles"`
			}
			_ = json.Unmarshal(params, &p)
			entries := make([]Entry, 0, len(p.FaceProfiles))
			for _, fp := range p.FaceProfiles {
				pid, err := id.ParseProfileID(fp.ID)
				if err != nil {
					continue
				}
				entries = append(entries, Entry{ProfileID: pid, Vector: fp.Embedding})
			}
			if err := f.backing.Rebuild(ctx, entries); err != nil {
				resp.Error = &rpcError{Code: -32000, Message: err.Error()}
				break
			}
			resp.Result = mustRaw(map[string]any{"success": true})
		case "get_stats":
			stats, _ := f.backing.Stats(ctx)
			resp.Result = mustRaw(map[string]any{"stats": map[string]any{
				"total_vectors": stats.TotalVectors,
				"dimension":     stats.Dimension,
			}})
		default:
			resp.Error = &rpcError{Code: -32601, Message: "method not found"}
		}

		line, _ := json.Marshal(resp)
		line = append(line, '\n')
		if _, err := f.out.Write(line); err != nil {
			return
		}
	}
}

func mustRaw(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

type RemoteSuite struct {
	suite.Suite
	ctx    context.Context
	remote *Remote
	server *fakeIndexServer
}

func TestRemoteSuite(t *testing.T) {
	suite.Run(t, new(RemoteSuite))
}

func (s *RemoteSuite) SetupTest() {
	s.ctx = context.Background()
	s.remote, s.server = startFakeServer(s.T())
}

func (s *RemoteSuite) TestAddSearchRemove() {
	pid := id.NewProfileID()
	s.Require().NoError(s.remote.Add(s.ctx, pid, []float32{1, 0, 0}))

	matches, err := s.remote.Search(s.ctx, []float32{1, 0, 0}, 5, nil)
	s.Require().NoError(err)
	s.Require().Len(matches, 1)
	s.Equal(pid, matches[0].ProfileID)
	s.InDelta(1.0, matches[0].Cosine, 1e-9)
	s.InDelta(0.0, matches[0].L2, 1e-9)

	s.Require().NoError(s.remote.Remove(s.ctx, pid))
	matches, err = s.remote.Search(s.ctx, []float32{1, 0, 0}, 5, nil)
	s.Require().NoError(err)
	s.Empty(matches)
}

func (s *RemoteSuite) TestExcludeID() {
	self := id.NewProfileID()
	other := id.NewProfileID()
	s.Require().NoError(s.remote.Add(s.ctx, self, []float32{1, 0, 0}))
	s.Require().NoError(s.remote.Add(s.ctx, other, []float32{1, 0.1, 0}))

	matches, err := s.remote.Search(s.ctx, []float32{1, 0, 0}, 5, &self)
	s.Require().NoError(err)
	s.Require().Len(matches, 1)
	s.Equal(other, matches[0].ProfileID)
}

func (s *RemoteSuite) TestRebuildAndStats() {
	s.Require().NoError(s.remote.Add(s.ctx, id.NewProfileID(), []float32{1, 0}))

	entries := []Entry{
		{ProfileID: id.NewProfileID(), Vector: []float32{0, 1, 0}},
		{ProfileID: id.NewProfileID(), Vector: []float32{0, 0, 1}},
	}
	s.Require().NoError(s.remote.Rebuild(s.ctx, entries))

	stats, err := s.remote.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, stats.TotalVectors)
	s.Equal(3, stats.Dimension)
	s.Equal("remote", stats.Backend)
}

func (s *RemoteSuite) TestValidation() {
	_, err := s.remote.Search(s.ctx, []float32{1, 0, 0}, -1, nil)
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))

	err = s.remote.Add(s.ctx, id.NewProfileID(), nil)
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
}

func (s *RemoteSuite) TestServerError() {
	err := s.remote.Rebuild(s.ctx, []Entry{{ProfileID: id.NewProfileID(), Vector: nil}})
	s.True(dErrors.Is(err, dErrors.CodeUnavailable))
}

func (s *RemoteSuite) TestTransportClosed() {
	clientIn, serverOut := io.Pipe()
	_, clientOut := io.Pipe()
	remote := newRemote(clientOut, clientIn, WithCallTimeout(2*time.Second))

	done := make(chan error, 1)
	go func() {
		done <- remote.Add(s.ctx, id.NewProfileID(), []float32{1})
	}()
	// Give the call a moment to register, then drop the transport.
	time.Sleep(50 * time.Millisecond)
	_ = serverOut.Close()

	err := <-done
	s.True(dErrors.Is(err, dErrors.CodeUnavailable))

	// After the transport dies, new calls fail immediately.
	err = remote.Add(s.ctx, id.NewProfileID(), []float32{1})
	s.True(dErrors.Is(err, dErrors.CodeUnavailable))
}

// TestParityWithBruteForce loads the same corpus into both backends and
// requires identical top matches for the same queries.
func (s *RemoteSuite) TestParityWithBruteForce() {
	rng := rand.New(rand.NewSource(42))
	brute := NewBruteForce()

	const n, dim = 40, 16
	for i := 0; i < n; i++ {
		pid := id.NewProfileID()
		vec := make([]float32, dim)
		for d := range vec {
			vec[d] = rng.Float32()*2 - 1
		}
		s.Require().NoError(brute.Add(s.ctx, pid, vec))
		s.Require().NoError(s.remote.Add(s.ctx, pid, vec))
	}

	for q := 0; q < 10; q++ {
		query := make([]float32, dim)
		for d := range query {
			query[d] = rng.Float32()*2 - 1
		}

		want, err := brute.Search(s.ctx, query, 5, nil)
		s.Require().NoError(err)
		got, err := s.remote.Search(s.ctx, query, 5, nil)
		s.Require().NoError(err)

		s.Require().Len(got, len(want))
		s.Equal(want[0].ProfileID, got[0].ProfileID)
		for i := range want {
			s.Equal(want[i].ProfileID, got[i].ProfileID)
			s.InDelta(want[i].Cosine, got[i].Cosine, 1e-9)
		}
	}
}
