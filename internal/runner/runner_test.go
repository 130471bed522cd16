package runner

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dontdude/testbox/internal/domain"
	"github.com/dontdude/testbox/internal/evaluator"
	"github.com/dontdude/testbox/internal/isolate"
	"github.com/dontdude/testbox/internal/metrics"
	"github.com/dontdude/testbox/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHost(extra map[string]isolate.Program) *isolate.Host {
	programs := evaluator.Programs(evaluator.Deps{Logger: quiet()})
	for name, p := range extra {
		programs[name] = p
	}
	return isolate.NewHost(programs, quiet())
}

func newRunner(t *testing.T, h *isolate.Host, kind domain.Kind, cfg Config) *Runner {
	t.Helper()
	cfg.Kind = kind
	cfg.Logger = quiet()
	r, err := New(h, cfg)
	require.NoError(t, err)
	t.Cleanup(r.Dispose)
	return r
}

func TestScriptURL(t *testing.T) {
	tests := []struct {
		assetPath string
		want      string
	}{
		{"", "/dist/worker-test-evaluator.js"},
		{"/dist/", "/dist/worker-test-evaluator.js"},
		{"static", "/static/worker-test-evaluator.js"},
		{"static/", "/static/worker-test-evaluator.js"},
		{"/js/eval", "/js/eval/worker-test-evaluator.js"},
	}
	for _, tt := range tests {
		t.Run(tt.assetPath, func(t *testing.T) {
			assert.Equal(t, tt.want, ScriptURL(tt.assetPath, evaluator.WorkerScript))
		})
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(newHost(nil), Config{Kind: "applet"})
	assert.Error(t, err)
}

func TestWorkerRunnerRunsTests(t *testing.T) {
	r := newRunner(t, newHost(nil), domain.KindWorker, Config{})
	assert.Equal(t, StateUnstarted, r.State())

	require.NoError(t, r.Init(context.Background(), domain.InitOptions{Source: "const sum = (a, b) => a + b;"}))
	assert.Equal(t, StateReady, r.State())

	v, err := r.RunTest(context.Background(), "assert.equal(sum(1, 2), 3)", 0)
	require.NoError(t, err)
	assert.True(t, v.Pass)

	v, err = r.RunTest(context.Background(), "assert.equal(sum(1, 2), 4)", 0)
	require.NoError(t, err)
	require.NotNil(t, v.Fail)
	assert.Equal(t, "expected 3 to equal 4", v.Fail.Message)
	assert.Equal(t, StateReady, r.State())
}

func TestFrameAndPythonRunners(t *testing.T) {
	h := newHost(nil)

	frame := newRunner(t, h, domain.KindFrame, Config{})
	require.NoError(t, frame.Init(context.Background(), domain.InitOptions{
		Source: "<body><h1>Hi</h1></body>",
	}))
	v, err := frame.RunTest(context.Background(), "assert.equal(document.querySelector('h1').textContent, 'Hi')", 0)
	require.NoError(t, err)
	assert.True(t, v.Pass, "%+v", v.Fail)

	python := newRunner(t, h, domain.KindPython, Config{})
	require.NoError(t, python.Init(context.Background(), domain.InitOptions{Source: "x = 21 * 2"}))
	v, err = python.RunTest(context.Background(), "({ test: () => assert.equal(runPython('x'), 42) })", 0)
	require.NoError(t, err)
	assert.True(t, v.Pass, "%+v", v.Fail)
}

func TestTimeoutRespawnsEvaluator(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := newRunner(t, newHost(nil), domain.KindWorker, Config{Metrics: m})
	require.NoError(t, r.Init(context.Background(), domain.InitOptions{Source: "let hits = 0;"}))

	first := r.lane.c

	v, err := r.RunTest(context.Background(), "hits++; while (true) {}", 200*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, v.Fail)
	assert.Equal(t, TimedOutMessage, v.Fail.Message)

	// The hung context is gone and a fresh one serves the next test.
	select {
	case <-first.Done():
	default:
		t.Fatal("hung context was not disposed")
	}
	v, err = r.RunTest(context.Background(), "assert.equal(hits, 0)", 0)
	require.NoError(t, err)
	assert.True(t, v.Pass, "%+v", v.Fail)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RespawnsTotal.WithLabelValues("worker")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InitsTotal.WithLabelValues("worker", "ok")))
}

func TestCancelledTestDoesNotLeakIntoNext(t *testing.T) {
	h := newHost(nil)
	r := newRunner(t, h, domain.KindWorker, Config{})
	require.NoError(t, r.Init(context.Background(), domain.InitOptions{Source: "const answer = 42;"}))

	first := r.lane.c

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := r.RunTest(ctx, "const end = Date.now() + 500; while (Date.now() < end) {} assert(false, 'first test')", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-first.Done():
	default:
		t.Fatal("abandoned context was not disposed")
	}
	assert.Zero(t, h.Live())

	// Wait past the point where the abandoned test would have answered.
	time.Sleep(600 * time.Millisecond)

	v, err := r.RunTest(context.Background(), "assert.equal(answer, 42)", 0)
	require.NoError(t, err)
	assert.True(t, v.Pass, "%+v", v.Fail)
	assert.Equal(t, 1, h.Live())
	assert.Equal(t, StateReady, r.State())
}

func TestReinitReplacesScope(t *testing.T) {
	r := newRunner(t, newHost(nil), domain.KindWorker, Config{})

	require.NoError(t, r.Init(context.Background(), domain.InitOptions{Source: "let x = 1;"}))
	require.NoError(t, r.Init(context.Background(), domain.InitOptions{Source: "let x = 2;"}))

	v, err := r.RunTest(context.Background(), "assert.equal(x, 2)", 0)
	require.NoError(t, err)
	assert.True(t, v.Pass, "%+v", v.Fail)
}

func TestRunTestBeforeInit(t *testing.T) {
	r := newRunner(t, newHost(nil), domain.KindWorker, Config{})

	_, err := r.RunTest(context.Background(), "assert(true)", 0)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestRunTestAfterDispose(t *testing.T) {
	r := newRunner(t, newHost(nil), domain.KindWorker, Config{})
	require.NoError(t, r.Init(context.Background(), domain.InitOptions{}))

	r.Dispose()
	r.Dispose()
	assert.Equal(t, StateDisposed, r.State())

	_, err := r.RunTest(context.Background(), "assert(true)", 0)
	assert.ErrorIs(t, err, ErrNotInitialized)

	// A disposed runner can be brought back.
	require.NoError(t, r.Init(context.Background(), domain.InitOptions{}))
	v, err := r.RunTest(context.Background(), "assert(true)", 0)
	require.NoError(t, err)
	assert.True(t, v.Pass)
}

func TestDisposeDuringTest(t *testing.T) {
	r := newRunner(t, newHost(nil), domain.KindWorker, Config{})
	require.NoError(t, r.Init(context.Background(), domain.InitOptions{}))

	go func() {
		time.Sleep(100 * time.Millisecond)
		r.Dispose()
	}()

	start := time.Now()
	_, err := r.RunTest(context.Background(), "while (true) {}", 10*time.Second)
	assert.ErrorIs(t, err, ErrDisposed)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInitFailsWithoutReady(t *testing.T) {
	h := newHost(nil)
	r := newRunner(t, h, domain.KindFrame, Config{})

	start := time.Now()
	err := r.Init(context.Background(), domain.InitOptions{
		Source: "<body></body>",
		Hooks:  domain.Hooks{BeforeAll: "throw new Error('broken hook')"},
	})
	assert.ErrorIs(t, err, ErrInitFailed)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateInitializing, r.State())
	assert.Zero(t, h.Live())

	_, err = r.RunTest(context.Background(), "assert(true)", 0)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitUnknownAsset(t *testing.T) {
	h := isolate.NewHost(nil, quiet())
	r := newRunner(t, h, domain.KindWorker, Config{})

	err := r.Init(context.Background(), domain.InitOptions{})
	assert.ErrorIs(t, err, isolate.ErrUnknownProgram)
}

func TestRunnerIgnoresForgedResults(t *testing.T) {
	// A sibling that floods the host with passing results for everyone.
	forger := func(ctx context.Context, port *isolate.Port) {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = port.Post(protocol.TypeResult, domain.Passed())
			}
		}
	}
	h := newHost(map[string]isolate.Program{"forger.js": forger})

	sibling := h.Create(isolate.TagThread)
	defer sibling.Dispose()
	require.NoError(t, h.Load(context.Background(), sibling, "/dist/forger.js"))

	r := newRunner(t, h, domain.KindWorker, Config{})
	require.NoError(t, r.Init(context.Background(), domain.InitOptions{}))

	v, err := r.RunTest(context.Background(), "assert(false, 'really failed')", 0)
	require.NoError(t, err)
	require.NotNil(t, v.Fail)
	assert.Equal(t, "really failed", v.Fail.Message)
}

func TestControllerSupersedesRunner(t *testing.T) {
	h := newHost(nil)
	c := NewController(h, Config{Logger: quiet()})
	defer c.Close()

	first, err := c.CreateRunner(context.Background(), domain.CreateRequest{
		Type:        domain.KindWorker,
		InitOptions: domain.InitOptions{Source: "const a = 1;"},
	})
	require.NoError(t, err)

	second, err := c.CreateRunner(context.Background(), domain.CreateRequest{
		Type:        domain.KindPython,
		AssetPath:   "static",
		InitOptions: domain.InitOptions{Source: "a = 2"},
	})
	require.NoError(t, err)

	_, err = first.RunTest(context.Background(), "assert(true)", 0)
	assert.ErrorIs(t, err, ErrNotInitialized)

	v, err := second.RunTest(context.Background(), "({ test: () => assert.equal(runPython('a'), 2) })", 0)
	require.NoError(t, err)
	assert.True(t, v.Pass, "%+v", v.Fail)

	active, ok := c.Active()
	require.True(t, ok)
	assert.Equal(t, "/static/"+evaluator.PythonScript, active.script)
	assert.Equal(t, 1, h.Live())
}

func TestControllerReusesRunnerPerType(t *testing.T) {
	c := NewController(newHost(nil), Config{Logger: quiet()})
	defer c.Close()

	req := domain.CreateRequest{Type: domain.KindWorker}
	first, err := c.CreateRunner(context.Background(), req)
	require.NoError(t, err)
	second, err := c.CreateRunner(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = c.CreateRunner(context.Background(), domain.CreateRequest{Type: "applet"})
	assert.Error(t, err)
	_, ok := c.Active()
	assert.True(t, ok)
}

func TestControllerKeepsExactlyOneContext(t *testing.T) {
	h := newHost(nil)
	c := NewController(h, Config{Logger: quiet()})
	defer c.Close()

	kinds := []domain.Kind{domain.KindWorker, domain.KindFrame, domain.KindWorker, domain.KindPython, domain.KindFrame}
	for _, kind := range kinds {
		_, err := c.CreateRunner(context.Background(), domain.CreateRequest{Type: kind})
		require.NoError(t, err)
		assert.Equal(t, 1, h.Live(), "after creating a %s runner", kind)
	}

	c.Close()
	assert.Zero(t, h.Live())
}

func TestControllerConcurrentCreates(t *testing.T) {
	h := newHost(nil)
	c := NewController(h, Config{Logger: quiet()})
	defer c.Close()

	kinds := []domain.Kind{domain.KindWorker, domain.KindFrame, domain.KindPython, domain.KindWorker}
	var wg sync.WaitGroup
	for _, kind := range kinds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.CreateRunner(context.Background(), domain.CreateRequest{Type: kind})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.Live())
	active, ok := c.Active()
	require.True(t, ok)
	assert.Equal(t, StateReady, active.State())
}
