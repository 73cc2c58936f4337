package vectorindex

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	dErrors "facegate/pkg/domain-errors"
	id "facegate/pkg/domain"
	"facegate/pkg/platform/sentinel"
)

const (
	defaultCallTimeout = 30 * time.Second
	readyTimeout       = 15 * time.Second
	maxLineBytes       = 1 << 20
)

// Remote talks to an out-of-process ANN backend over line-delimited JSON-RPC
// 2.0 on stdio. Every request carries a correlation id; responses are matched
// back to their in-flight call. If the process dies, all in-flight calls fail
// cleanly with an unavailable error and the index can be rebuilt from the
// profile store after a restart.
type Remote struct {
	timeout time.Duration
	logger  *slog.Logger

	writeMu sync.Mutex
	stdin   io.Writer

	pendingMu sync.Mutex
	pending   map[uint64]chan rpcResponse
	down      bool

	nextID uint64

	cmd   *exec.Cmd
	ready chan struct{}
}

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RemoteOption configures a Remote client.
type RemoteOption func(*Remote)

func WithCallTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(r *Remote) {
		r.logger = logger
	}
}

// StartRemote launches the ANN server process and waits for its READY
// handshake on stderr.
func StartRemote(ctx context.Context, command []string, opts ...RemoteOption) (*Remote, error) {
	if len(command) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "index server command is required")
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start index server: %w", err)
	}

	r := newRemote(stdin, stdout, opts...)
	r.cmd = cmd
	go r.watchStderr(stderr)

	select {
	case <-r.ready:
	case <-time.After(readyTimeout):
		_ = cmd.Process.Kill()
		return nil, dErrors.Wrap(sentinel.ErrTimeout, dErrors.CodeTimeout, "index server did not become ready")
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return nil, ctx.Err()
	}
	return r, nil
}

// newRemote wires a client over an arbitrary transport. Tests use in-process
// pipes; StartRemote provides the exec-backed transport.
func newRemote(w io.Writer, rd io.Reader, opts ...RemoteOption) *Remote {
	r := &Remote{
		timeout: defaultCallTimeout,
		logger:  slog.Default(),
		stdin:   w,
		pending: make(map[uint64]chan rpcResponse),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.readLoop(rd)
	return r
}

// Close terminates the backend process, if this client owns one.
func (r *Remote) Close() error {
	if r.cmd != nil && r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
		return r.cmd.Wait()
	}
	return nil
}

// Add inserts a vector, replacing any existing vector for the id.
func (r *Remote) Add(ctx context.Context, profileID id.ProfileID, vec []float32) error {
	if len(vec) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "vector is empty")
	}
	var out struct {
		Success bool `json:"success"`
	}
	params := map[string]any{
		"face_profile_id": profileID.String(),
		"embedding":       vec,
	}
	if err := r.call(ctx, "add_vector", params, &out); err != nil {
		return err
	}
	if !out.Success {
		return dErrors.New(dErrors.CodeUnavailable, "index server rejected vector")
	}
	return nil
}

// Remove deletes the vector for the id. An absent id is a no-op.
func (r *Remote) Remove(ctx context.Context, profileID id.ProfileID) error {
	var out struct {
		Success bool `json:"success"`
	}
	params := map[string]any{"face_profile_id": profileID.String()}
	return r.call(ctx, "remove_vector", params, &out)
}

// Search asks the backend for the k nearest stored vectors.
func (r *Remote) Search(ctx context.Context, vec []float32, k int, excludeID *id.ProfileID) ([]Match, error) {
	if k <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "k must be positive")
	}
	params := map[string]any{
		"embedding": vec,
		"k":         k,
	}
	if excludeID != nil {
		params["exclude_id"] = excludeID.String()
	}

	var out struct {
		Results []struct {
			FaceProfileID string  `json:"face_profile_id"`
			Similarity    float64 `json:"similarity"`
			Distance      float64 `json:"distance"`
		} `json:"results"`
	}
	if err := r.call(ctx, "search_similar", params, &out); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(out.Results))
	for _, res := range out.Results {
		pid, err := id.ParseProfileID(res.FaceProfileID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "index server returned malformed profile id")
		}
		matches = append(matches, Match{ProfileID: pid, Cosine: res.Similarity, L2: res.Distance})
	}
	// The ranking contract is ours; do not trust the backend's ordering.
	sortMatches(matches)
	return matches, nil
}

// Rebuild replaces the backend's contents wholesale.
func (r *Remote) Rebuild(ctx context.Context, entries []Entry) error {
	profiles := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		profiles = append(profiles, map[string]any{
			"id":        e.ProfileID.String(),
			"embedding": e.Vector,
		})
	}
	var out struct {
		Success bool `json:"success"`
	}
	if err := r.call(ctx, "rebuild_from_database", map[string]any{"face_profiles": profiles}, &out); err != nil {
		return err
	}
	if !out.Success {
		return dErrors.New(dErrors.CodeUnavailable, "index server rebuild failed")
	}
	return nil
}

// Stats reports backend state.
func (r *Remote) Stats(ctx context.Context) (Stats, error) {
	var out struct {
		Stats struct {
			TotalVectors int `json:"total_vectors"`
			Dimension    int `json:"dimension"`
		} `json:"stats"`
	}
	if err := r.call(ctx, "get_stats", nil, &out); err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalVectors: out.Stats.TotalVectors,
		Dimension:    out.Stats.Dimension,
		Backend:      "remote",
	}, nil
}

func (r *Remote) call(ctx context.Context, method string, params any, out any) error {
	reqID, ch, err := r.register()
	if err != nil {
		return err
	}
	defer r.unregister(reqID)

	line, err := json.Marshal(rpcRequest{Jsonrpc: "2.0", ID: reqID, Method: method, Params: params})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "marshal rpc request")
	}
	line = append(line, '\n')

	r.writeMu.Lock()
	_, err = r.stdin.Write(line)
	r.writeMu.Unlock()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "write to index server")
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeUnavailable, "index server exited")
		}
		if resp.Error != nil {
			return dErrors.Wrap(resp.Error, dErrors.CodeUnavailable, "index server error")
		}
		if out != nil {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "decode rpc result")
			}
		}
		return nil
	case <-timer.C:
		return dErrors.Wrap(sentinel.ErrTimeout, dErrors.CodeTimeout, method+" timed out")
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, method+" canceled")
	}
}

func (r *Remote) register() (uint64, chan rpcResponse, error) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if r.down {
		return 0, nil, dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeUnavailable, "index server is down")
	}
	reqID := atomic.AddUint64(&r.nextID, 1)
	ch := make(chan rpcResponse, 1)
	r.pending[reqID] = ch
	return reqID, ch, nil
}

func (r *Remote) unregister(reqID uint64) {
	r.pendingMu.Lock()
	delete(r.pending, reqID)
	r.pendingMu.Unlock()
}

// readLoop dispatches responses to in-flight calls. When the transport
// closes, every pending call fails cleanly.
func (r *Remote) readLoop(rd io.Reader) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			r.logger.Warn("malformed index server response", "error", err)
			continue
		}
		r.pendingMu.Lock()
		ch, ok := r.pending[resp.ID]
		if ok {
			delete(r.pending, resp.ID)
		}
		r.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}

	r.pendingMu.Lock()
	r.down = true
	for reqID, ch := range r.pending {
		close(ch)
		delete(r.pending, reqID)
	}
	r.pendingMu.Unlock()
	r.logger.Error("index server transport closed")
}

// watchStderr logs server diagnostics and resolves the READY handshake.
func (r *Remote) watchStderr(rd io.Reader) {
	scanner := bufio.NewScanner(rd)
	readySeen := false
	for scanner.Scan() {
		line := scanner.Text()
		if !readySeen && strings.Contains(line, "READY") {
			readySeen = true
			close(r.ready)
			continue
		}
		r.logger.Debug("index server", "line", line)
	}
}
