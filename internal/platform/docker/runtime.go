package docker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dontdude/testbox/internal/pyrt"
)

// ErrRuntimeGone is returned once the driver process has exited or been killed.
var ErrRuntimeGone = errors.New("python runtime is gone")

type request struct {
	ID     int64    `json:"id"`
	Op     string   `json:"op"`
	Scope  string   `json:"scope,omitempty"`
	Name   string   `json:"name,omitempty"`
	Data   string   `json:"data,omitempty"`
	Src    string   `json:"src,omitempty"`
	Value  any      `json:"value,omitempty"`
	Inputs []string `json:"inputs,omitempty"`
}

type response struct {
	ID    int64        `json:"id"`
	OK    bool         `json:"ok"`
	Value any          `json:"value"`
	Error *driverError `json:"error"`
}

type driverError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Traceback string `json:"traceback"`
}

// Runtime talks to a CPython driver process over newline delimited JSON.
// Calls are serialized: the driver handles one request at a time.
type Runtime struct {
	logger *slog.Logger
	w      io.WriteCloser
	kill   func()

	mu        sync.Mutex
	nextID    int64
	responses chan response
	gone      chan struct{}
	goneOnce  sync.Once

	scopes atomic.Int64
}

var _ pyrt.Runtime = (*Runtime)(nil)

// newRuntime wires a driver reachable through r and w. kill tears the
// driver down; it is called when a call is abandoned mid-flight, since the
// driver cannot be interrupted any other way.
func newRuntime(r io.Reader, w io.WriteCloser, kill func(), logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{
		logger:    logger.With("runtime", "cpython"),
		w:         w,
		kill:      kill,
		responses: make(chan response),
		gone:      make(chan struct{}),
	}
	go rt.read(r)
	return rt
}

func (rt *Runtime) read(r io.Reader) {
	defer rt.shutdown()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var resp response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			rt.logger.Warn("Dropping malformed driver reply", "error", err)
			continue
		}
		select {
		case rt.responses <- resp:
		case <-rt.gone:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		rt.logger.Warn("Driver stream failed", "error", err)
	}
}

func (rt *Runtime) shutdown() {
	rt.goneOnce.Do(func() {
		close(rt.gone)
		_ = rt.w.Close()
		if rt.kill != nil {
			rt.kill()
		}
	})
}

func (rt *Runtime) call(ctx context.Context, req request) (any, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	select {
	case <-rt.gone:
		return nil, ErrRuntimeGone
	default:
	}

	rt.nextID++
	req.ID = rt.nextID
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", req.Op, err)
	}
	if _, err := rt.w.Write(append(line, '\n')); err != nil {
		rt.shutdown()
		return nil, fmt.Errorf("failed to send %s request: %w", req.Op, err)
	}

	for {
		select {
		case resp := <-rt.responses:
			if resp.ID != req.ID {
				rt.logger.Warn("Dropping stale driver reply", "id", resp.ID, "want", req.ID)
				continue
			}
			if !resp.OK {
				if resp.Error == nil {
					return nil, &pyrt.Error{Type: "RuntimeError", Message: "driver reported failure"}
				}
				return nil, &pyrt.Error{Type: resp.Error.Type, Message: resp.Error.Message, Traceback: resp.Error.Traceback}
			}
			return resp.Value, nil
		case <-rt.gone:
			return nil, ErrRuntimeGone
		case <-ctx.Done():
			rt.logger.Warn("Abandoning driver call, killing runtime", "op", req.Op)
			rt.shutdown()
			return nil, ctx.Err()
		}
	}
}

func (rt *Runtime) NewScope(ctx context.Context) (pyrt.Scope, error) {
	id := "s" + strconv.FormatInt(rt.scopes.Add(1), 10)
	if _, err := rt.call(ctx, request{Op: "new_scope", Scope: id}); err != nil {
		return nil, err
	}
	return &scope{rt: rt, id: id}, nil
}

func (rt *Runtime) WriteFile(ctx context.Context, name, data string) error {
	_, err := rt.call(ctx, request{Op: "write", Name: name, Data: data})
	return err
}

func (rt *Runtime) ReadFile(ctx context.Context, name string) (string, error) {
	v, err := rt.call(ctx, request{Op: "read", Name: name})
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// Close kills the driver.
func (rt *Runtime) Close() error {
	rt.shutdown()
	return nil
}

type scope struct {
	rt *Runtime
	id string
}

func (s *scope) Set(ctx context.Context, name string, value any) error {
	_, err := s.rt.call(ctx, request{Op: "set", Scope: s.id, Name: name, Value: value})
	return err
}

func (s *scope) SetInput(ctx context.Context, inputs []string) error {
	_, err := s.rt.call(ctx, request{Op: "input", Scope: s.id, Inputs: inputs})
	return err
}

func (s *scope) Run(ctx context.Context, src string) (any, error) {
	return s.rt.call(ctx, request{Op: "exec", Scope: s.id, Src: src})
}

func (s *scope) Close() error {
	_, err := s.rt.call(context.Background(), request{Op: "drop", Scope: s.id})
	if errors.Is(err, ErrRuntimeGone) {
		return nil
	}
	return err
}
