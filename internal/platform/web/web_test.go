package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dontdude/testbox/internal/domain"
	"github.com/dontdude/testbox/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memQueue records published jobs.
type memQueue struct {
	mu   sync.Mutex
	jobs []domain.Job
	err  error
}

func (q *memQueue) Publish(_ context.Context, job domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Subscribe(context.Context) (<-chan domain.Job, error) { return nil, nil }
func (q *memQueue) Acknowledge(context.Context, string) error           { return nil }
func (q *memQueue) Broadcast(context.Context, domain.JobResult) error    { return nil }
func (q *memQueue) SubscribeResults(context.Context) (<-chan domain.JobResult, error) {
	return nil, nil
}

func newMux(q domain.JobQueue, hub *Hub, limiter *RateLimiter) *http.ServeMux {
	mux := http.NewServeMux()
	NewServer(q, hub, quiet()).Routes(mux, limiter)
	return mux
}

func TestHandleSubmit(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"type":"worker","options":{"source":"const a = 1;"},"tests":["assert(a === 1)"]}`, http.StatusAccepted},
		{"bad json", `{`, http.StatusBadRequest},
		{"unknown type", `{"type":"applet","tests":["assert(true)"]}`, http.StatusBadRequest},
		{"no tests", `{"type":"python","tests":[]}`, http.StatusBadRequest},
		{"negative timeout", `{"type":"frame","tests":["x"],"timeout_ms":-1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &memQueue{}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(tt.body))
			newMux(q, NewHub(quiet(), nil), nil).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusAccepted {
				assert.Empty(t, q.jobs)
				return
			}

			var resp map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			require.Len(t, q.jobs, 1)
			assert.Equal(t, q.jobs[0].ID, resp["job_id"])
			assert.Equal(t, "queued", resp["status"])
			assert.Equal(t, domain.KindWorker, q.jobs[0].Type)
			assert.Equal(t, "const a = 1;", q.jobs[0].Options.Source)
		})
	}
}

func TestHandleSubmitQueueFailure(t *testing.T) {
	q := &memQueue{err: assert.AnError}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(`{"type":"worker","tests":["assert(true)"]}`))
	newMux(q, NewHub(quiet(), nil), nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	limiter := NewRateLimiter(0.001, 2, m)
	mux := newMux(&memQueue{}, NewHub(quiet(), nil), limiter)

	submit := func(ip string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(`{"type":"worker","tests":["assert(true)"]}`))
		req.RemoteAddr = ip + ":40000"
		mux.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusAccepted, submit("10.0.0.1"))
	assert.Equal(t, http.StatusAccepted, submit("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, submit("10.0.0.1"))
	assert.Equal(t, http.StatusAccepted, submit("10.0.0.2"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal))
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	now := time.Now()
	limiter := NewRateLimiter(1, 1, nil)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("10.0.0.1"))
	now = now.Add(visitorTimeout + time.Second)
	limiter.evict()
	assert.Empty(t, limiter.visitors)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", clientIP(req))
}

func TestWebSocketStreamsJobEvents(t *testing.T) {
	hub := NewHub(quiet(), nil)
	srv := httptest.NewServer(newMux(&memQueue{}, hub, nil))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := make(chan domain.JobResult)
	go hub.Run(ctx, results)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?job_id=job-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Watchers("job-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	pass := domain.Passed()
	results <- domain.JobResult{JobID: "other", Index: 0, Verdict: &pass}
	results <- domain.JobResult{JobID: "job-1", Index: 0, Verdict: &pass}
	results <- domain.JobResult{JobID: "job-1", Done: true, Passed: 1}

	var got domain.JobResult
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "job-1", got.JobID)
	require.NotNil(t, got.Verdict)
	assert.True(t, got.Verdict.Pass)

	require.NoError(t, conn.ReadJSON(&got))
	assert.True(t, got.Done)
	assert.Equal(t, 1, got.Passed)
}

func TestWebSocketRequiresJobID(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(&memQueue{}, NewHub(quiet(), nil), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ws", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnableCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	h := EnableCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight reached the handler")
	}))
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/run", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
