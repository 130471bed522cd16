// Package web is the HTTP surface of the grading service: submission,
// verdict streaming and rate limiting.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dontdude/testbox/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// maxTests caps the tests accepted in one submission.
const maxTests = 200

// SubmitRequest is the body of POST /api/run.
type SubmitRequest struct {
	Type      string             `json:"type"`
	Options   domain.InitOptions `json:"options"`
	Tests     []string           `json:"tests"`
	TimeoutMs int64              `json:"timeout_ms,omitempty"`
}

// Server wires the handlers to a queue and a hub.
type Server struct {
	queue    domain.JobQueue
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer returns the API handlers.
func NewServer(q domain.JobQueue, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		queue:  q,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Allow all origins for dev
		},
	}
}

// Routes registers the API on mux.
func (s *Server) Routes(mux *http.ServeMux, limiter *RateLimiter) {
	submit := s.HandleSubmit
	if limiter != nil {
		submit = limiter.Middleware(submit)
	}
	mux.HandleFunc("POST /api/run", submit)
	mux.HandleFunc("GET /api/ws", s.HandleWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// HandleSubmit validates a submission and enqueues it as a grading job.
func (s *Server) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	kind, err := domain.ParseKind(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Tests) == 0 || len(req.Tests) > maxTests {
		writeError(w, http.StatusBadRequest, "between 1 and 200 tests are required")
		return
	}
	if req.TimeoutMs < 0 || time.Duration(req.TimeoutMs)*time.Millisecond > time.Minute {
		writeError(w, http.StatusBadRequest, "timeout_ms must be between 0 and 60000")
		return
	}

	job := domain.Job{
		ID:        uuid.New().String(),
		Type:      kind,
		Options:   req.Options,
		Tests:     req.Tests,
		TimeoutMs: req.TimeoutMs,
	}

	s.logger.Info("Received submission", "jobID", job.ID, "type", kind, "tests", len(job.Tests))
	if err := s.queue.Publish(r.Context(), job); err != nil {
		s.logger.Error("Failed to publish job", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"job_id": job.ID,
		"status": "queued",
	})
}

// HandleWS upgrades the connection and streams the job's events to it.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	// 1. Extract JobID from Query Params
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	// 2. Upgrade to WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// 3. Register to Hub
	s.logger.Info("Client connected via WebSocket", "jobID", jobID, "remoteAddr", conn.RemoteAddr())
	s.hub.register(jobID, conn)

	// 4. Clean up on disconnect
	defer func() {
		s.logger.Info("Client disconnected", "jobID", jobID)
		s.hub.unregister(jobID, conn)
		conn.Close()
	}()

	// 5. Read until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// EnableCORS adds headers to allow requests from the frontend.
func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle Preflight OPTIONS request
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
