// Package runner is the host side of the sandbox protocol: it owns one
// isolated context per runner, performs the init handshake, correlates test
// results and recovers from hung evaluators.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dontdude/testbox/internal/domain"
	"github.com/dontdude/testbox/internal/evaluator"
	"github.com/dontdude/testbox/internal/isolate"
	"github.com/dontdude/testbox/internal/metrics"
	"github.com/dontdude/testbox/internal/platform/assets"
	"github.com/dontdude/testbox/internal/protocol"
)

const (
	// DefaultTimeout bounds a single test.
	DefaultTimeout = 5 * time.Second
	// DefaultInitTimeout bounds loading an evaluator and its init handshake.
	DefaultInitTimeout = 30 * time.Second
	// DefaultAssetPath is where evaluator scripts are served from.
	DefaultAssetPath = assets.DefaultPath
)

// TimedOutMessage is the failure message of a test that never reported back.
const TimedOutMessage = "Test timed out"

var (
	// ErrNotInitialized is returned by RunTest before a successful Init.
	ErrNotInitialized = errors.New("runner not initialized")
	// ErrDisposed is returned when the runner is disposed while waiting.
	ErrDisposed = errors.New("runner disposed")
	// ErrInitFailed is returned when the evaluator gives up on init and
	// closes its context without reporting ready.
	ErrInitFailed = errors.New("evaluator failed to initialize")
)

// State is where a runner is in its lifecycle.
type State int

const (
	StateUnstarted State = iota
	StateInitializing
	StateReady
	StateTesting
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateTesting:
		return "testing"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config describes one runner.
type Config struct {
	Kind        domain.Kind
	AssetPath   string
	InitTimeout time.Duration
	TestTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Runner owns exactly one isolated context at a time.
type Runner struct {
	host        *isolate.Host
	kind        domain.Kind
	tag         isolate.Tag
	script      string
	initTimeout time.Duration
	testTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics

	// opMu serializes Init and RunTest. Dispose never takes it, so it can
	// cut a pending call short.
	opMu sync.Mutex

	mu    sync.Mutex
	state State
	lane  *lane
	gen   uint64
	last  *domain.InitOptions
	// stale is set when a test was abandoned by its caller. The lane is gone
	// and the next RunTest rebuilds it from last before posting.
	stale bool
}

var _ domain.TestRunner = (*Runner)(nil)

// New returns an unstarted runner for cfg.Kind. Nothing is created until
// Init.
func New(host *isolate.Host, cfg Config) (*Runner, error) {
	tag, script, err := target(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	if cfg.TestTimeout <= 0 {
		cfg.TestTimeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		host:        host,
		kind:        cfg.Kind,
		tag:         tag,
		script:      ScriptURL(cfg.AssetPath, script),
		initTimeout: cfg.InitTimeout,
		testTimeout: cfg.TestTimeout,
		logger:      logger.With("runner", cfg.Kind),
		metrics:     cfg.Metrics,
	}, nil
}

func target(kind domain.Kind) (isolate.Tag, string, error) {
	switch kind {
	case domain.KindFrame:
		return isolate.TagDocument, evaluator.FrameScript, nil
	case domain.KindWorker:
		return isolate.TagThread, evaluator.WorkerScript, nil
	case domain.KindPython:
		return isolate.TagSecondary, evaluator.PythonScript, nil
	}
	return "", "", fmt.Errorf("unknown runner type %q", kind)
}

// ScriptURL joins an asset path and a script name. The path is made
// absolute and given a trailing slash; empty means DefaultAssetPath.
func ScriptURL(assetPath, script string) string {
	return assets.FullPath(assetPath) + script
}

// Kind returns the evaluator variant this runner hosts.
func (r *Runner) Kind() domain.Kind { return r.kind }

// State reports the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Init replaces the current context with a fresh one and waits for its
// evaluator to report ready.
func (r *Runner) Init(ctx context.Context, opts domain.InitOptions) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	err := r.init(ctx, opts)
	r.metrics.Initialized(string(r.kind), err)
	return err
}

func (r *Runner) init(ctx context.Context, opts domain.InitOptions) error {
	r.mu.Lock()
	old := r.lane
	r.lane = nil
	r.state = StateInitializing
	r.last = &opts
	r.stale = false
	gen := r.gen
	r.mu.Unlock()

	if old != nil {
		old.close()
	}

	ctx, cancel := context.WithTimeout(ctx, r.initTimeout)
	defer cancel()

	// 1. Create the context and listen before anything can be posted.
	l := r.open()

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		l.close()
		return ErrDisposed
	}
	r.lane = l
	r.mu.Unlock()
	r.metrics.SetLiveContexts(r.host.Live())

	// 2. Load the evaluator and wait for its load signal.
	if err := r.host.Load(ctx, l.c, r.script); err != nil {
		return r.abandon(l, fmt.Errorf("failed to load evaluator: %w", r.disposedOr(l, err)))
	}

	// 3. Handshake.
	if err := l.c.Post(protocol.TypeInit, opts); err != nil {
		return r.abandon(l, fmt.Errorf("failed to send init: %w", r.disposedOr(l, err)))
	}

	select {
	case <-l.ready:
	case <-l.c.Done():
		r.mu.Lock()
		disposed := r.gen != gen
		r.mu.Unlock()
		if disposed {
			return ErrDisposed
		}
		return r.abandon(l, ErrInitFailed)
	case <-ctx.Done():
		return r.abandon(l, fmt.Errorf("evaluator did not become ready: %w", ctx.Err()))
	}

	r.mu.Lock()
	if r.lane == l {
		r.state = StateReady
	}
	r.mu.Unlock()

	r.logger.Info("Runner ready", "contextID", l.c.ID())
	return nil
}

// abandon destroys a lane whose init failed and returns err. The runner
// stays Initializing until the next Init or Dispose.
func (r *Runner) abandon(l *lane, err error) error {
	r.mu.Lock()
	if r.lane == l {
		r.lane = nil
	}
	r.mu.Unlock()

	l.close()
	r.metrics.SetLiveContexts(r.host.Live())
	return err
}

// disposedOr maps failures caused by a concurrent Dispose onto ErrDisposed.
func (r *Runner) disposedOr(l *lane, err error) error {
	select {
	case <-l.c.Done():
		return ErrDisposed
	default:
		return err
	}
}

// RunTest posts test and waits for its verdict. A zero timeout selects the
// configured default. When the timeout fires first, the context is
// destroyed and rebuilt with the last options, and the verdict is the
// "Test timed out" failure. When ctx ends first, the context is destroyed
// and the next RunTest rebuilds it before posting.
func (r *Runner) RunTest(ctx context.Context, test string, timeout time.Duration) (domain.Verdict, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	stale, last := r.stale && r.state == StateReady, r.last
	r.mu.Unlock()
	if stale {
		err := r.init(ctx, *last)
		r.metrics.Initialized(string(r.kind), err)
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled again; leave the rebuild to the next caller.
				r.mu.Lock()
				if r.lane == nil && r.state == StateInitializing {
					r.state = StateReady
					r.stale = true
				}
				r.mu.Unlock()
			}
			return domain.Verdict{}, fmt.Errorf("failed to rebuild evaluator: %w", err)
		}
	}

	r.mu.Lock()
	l := r.lane
	if l == nil || r.state != StateReady {
		r.mu.Unlock()
		return domain.Verdict{}, ErrNotInitialized
	}
	r.state = StateTesting
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.lane == l && r.state == StateTesting {
			r.state = StateReady
		}
		r.mu.Unlock()
	}()

	if timeout <= 0 {
		timeout = r.testTimeout
	}

	// A result that arrived after its test was abandoned must not be
	// taken for this one.
	l.drain()

	start := time.Now()
	if err := l.c.Post(protocol.TypeTest, test); err != nil {
		if errors.Is(err, isolate.ErrDisposed) {
			return domain.Verdict{}, ErrDisposed
		}
		return domain.Verdict{}, fmt.Errorf("failed to send test: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-l.results:
		r.metrics.ObserveVerdict(string(r.kind), v.Outcome(), time.Since(start))
		return v, nil

	case <-l.c.Done():
		return domain.Verdict{}, ErrDisposed

	case <-ctx.Done():
		// The evaluator is still busy with test and would answer the next
		// one with its verdict. Drop the context now, rebuild lazily.
		r.logger.Warn("Test abandoned by caller, discarding evaluator", "contextID", l.c.ID(), "error", ctx.Err())
		r.mu.Lock()
		if r.lane == l {
			r.lane = nil
			r.state = StateReady
			r.stale = true
		}
		r.mu.Unlock()
		l.close()
		r.metrics.SetLiveContexts(r.host.Live())
		return domain.Verdict{}, ctx.Err()

	case <-timer.C:
		r.logger.Warn("Test timed out, respawning evaluator", "contextID", l.c.ID(), "timeout", timeout)
		r.metrics.Respawned(string(r.kind))
		r.metrics.ObserveVerdict(string(r.kind), "timeout", time.Since(start))

		r.mu.Lock()
		last, disposed := r.last, r.state == StateDisposed
		r.mu.Unlock()
		if disposed {
			return domain.Failed(TimedOutMessage), nil
		}
		err := r.init(context.WithoutCancel(ctx), *last)
		r.metrics.Initialized(string(r.kind), err)
		if err != nil {
			r.logger.Error("Failed to respawn evaluator", "error", err)
		}
		return domain.Failed(TimedOutMessage), nil
	}
}

// Dispose destroys the current context. It is safe to call repeatedly and
// concurrently with Init or RunTest, which then return ErrDisposed.
func (r *Runner) Dispose() {
	r.mu.Lock()
	l := r.lane
	r.lane = nil
	r.state = StateDisposed
	r.stale = false
	r.gen++
	r.mu.Unlock()

	if l != nil {
		l.close()
		r.logger.Info("Runner disposed", "contextID", l.c.ID())
	}
	r.metrics.SetLiveContexts(r.host.Live())
}

// lane is one context plus the filtered view of what it sends back.
type lane struct {
	c       *isolate.Context
	ready   chan struct{}
	results chan domain.Verdict
	cancel  func()

	readyOnce sync.Once
}

func (r *Runner) open() *lane {
	c := r.host.Create(r.tag)
	msgs, cancel := r.host.Subscribe()
	l := &lane{
		c:       c,
		ready:   make(chan struct{}),
		results: make(chan domain.Verdict, 4),
		cancel:  cancel,
	}
	go l.listen(msgs, r.logger.With("contextID", c.ID()))
	return l
}

// listen forwards ready and result messages from l's own context. Anything
// else, including messages from other contexts, is dropped.
func (l *lane) listen(msgs <-chan isolate.Message, logger *slog.Logger) {
	defer l.cancel()
	for {
		select {
		case <-l.c.Done():
			return
		case msg := <-msgs:
			if msg.Source != l.c.ID() {
				continue
			}
			env, err := protocol.Decode(msg.Data)
			if err != nil {
				logger.Debug("Dropping undecodable message", "error", err)
				continue
			}
			switch env.Type {
			case protocol.TypeReady:
				l.readyOnce.Do(func() { close(l.ready) })
			case protocol.TypeResult:
				var v domain.Verdict
				if err := env.Bind(&v); err != nil {
					logger.Warn("Dropping malformed result", "error", err)
					continue
				}
				select {
				case l.results <- v:
				default:
					logger.Warn("Dropping unclaimed result")
				}
			default:
				logger.Debug("Ignoring message", "type", env.Type)
			}
		}
	}
}

func (l *lane) drain() {
	for {
		select {
		case <-l.results:
		default:
			return
		}
	}
}

func (l *lane) close() {
	l.c.Dispose()
}
