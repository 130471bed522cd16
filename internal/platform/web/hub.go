package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dontdude/testbox/internal/domain"
	"github.com/dontdude/testbox/internal/metrics"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Hub fans grading events out to the WebSocket clients watching each job.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]struct{}
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		metrics: m,
		clients: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) register(jobID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[jobID] == nil {
		h.clients[jobID] = make(map[*websocket.Conn]struct{})
	}
	h.clients[jobID][conn] = struct{}{}
	h.metrics.WSConnected(1)
}

func (h *Hub) unregister(jobID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[jobID]
	if !ok {
		return
	}
	if _, ok := conns[conn]; !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.clients, jobID)
	}
	h.metrics.WSConnected(-1)
}

// Watchers returns how many connections follow jobID.
func (h *Hub) Watchers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}

// Run forwards every event from results to the job's watchers until the
// channel closes or ctx is done.
func (h *Hub) Run(ctx context.Context, results <-chan domain.JobResult) {
	h.logger.Info("Starting result broadcaster")
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			h.send(res)
		}
	}
}

func (h *Hub) send(res domain.JobResult) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[res.JobID]))
	for c := range h.clients[res.JobID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(res); err != nil {
			h.logger.Warn("Failed to write to websocket", "jobID", res.JobID, "error", err)
			h.unregister(res.JobID, conn)
			conn.Close()
		}
	}
}
