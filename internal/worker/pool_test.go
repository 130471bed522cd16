package worker

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
	"github.com/dontdude/testbox/internal/runner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	results []domain.JobResult
	acked   []string
}

func (r *recorder) Broadcast(_ context.Context, res domain.JobResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func (r *recorder) Acknowledge(_ context.Context, rawID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acked = append(r.acked, rawID)
	return nil
}

func (r *recorder) forJob(id string) []domain.JobResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.JobResult
	for _, res := range r.results {
		if res.JobID == id {
			out = append(out, res)
		}
	}
	return out
}

func newPool(t *testing.T, concurrency int, rec *recorder, m *metrics.Metrics) *Pool {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	host := isolate.NewHost(evaluator.Programs(evaluator.Deps{Logger: logger}), logger)
	newSandbox := func() domain.Sandbox {
		return runner.NewController(host, runner.Config{Logger: logger, TestTimeout: 300 * time.Millisecond})
	}
	return NewPool(concurrency, newSandbox, rec, m, logger)
}

func TestPoolGradesJobs(t *testing.T) {
	rec := &recorder{}
	m := metrics.New(prometheus.NewRegistry())
	p := newPool(t, 2, rec, m)
	p.Start()

	p.Submit(domain.Job{
		ID:      "js",
		Type:    domain.KindWorker,
		Options: domain.InitOptions{Source: "const add = (a, b) => a + b;"},
		Tests:   []string{"assert.equal(add(1, 1), 2)", "assert.equal(add(1, 1), 3)"},
		RawID:   "1-0",
	})
	p.Submit(domain.Job{
		ID:      "py",
		Type:    domain.KindPython,
		Options: domain.InitOptions{Source: "n = 3"},
		Tests:   []string{"({ test: () => assert.equal(runPython('n'), 3) })"},
		RawID:   "2-0",
	})
	p.Stop()

	js := rec.forJob("js")
	require.Len(t, js, 3)
	assert.True(t, js[0].Verdict.Pass)
	assert.False(t, js[1].Verdict.Pass)
	assert.True(t, js[2].Done)
	assert.Equal(t, 1, js[2].Passed)

	py := rec.forJob("py")
	require.Len(t, py, 2)
	assert.True(t, py[0].Verdict.Pass, "%+v", py[0].Verdict.Fail)
	assert.Equal(t, 1, py[1].Passed)

	assert.ElementsMatch(t, []string{"1-0", "2-0"}, rec.acked)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("passed")))
}

func TestPoolTimeoutKeepsGrading(t *testing.T) {
	rec := &recorder{}
	p := newPool(t, 1, rec, nil)
	p.Start()

	p.Submit(domain.Job{
		ID:    "hang",
		Type:  domain.KindWorker,
		Tests: []string{"while (true) {}", "assert(true)"},
	})
	p.Stop()

	res := rec.forJob("hang")
	require.Len(t, res, 3)
	require.NotNil(t, res[0].Verdict.Fail)
	assert.Equal(t, runner.TimedOutMessage, res[0].Verdict.Fail.Message)
	assert.True(t, res[1].Verdict.Pass)
	assert.Equal(t, 1, res[2].Passed)
	assert.Empty(t, rec.acked)
}

func TestPoolReportsInitFailure(t *testing.T) {
	rec := &recorder{}
	p := newPool(t, 1, rec, nil)
	p.Start()

	p.Submit(domain.Job{ID: "bad", Type: "applet", Tests: []string{"assert(true)"}, RawID: "3-0"})
	p.Stop()

	res := rec.forJob("bad")
	require.Len(t, res, 1)
	assert.True(t, res[0].Done)
	assert.Contains(t, res[0].Error, "unknown runner type")
	assert.Equal(t, []string{"3-0"}, rec.acked)
}
