package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dontdude/testbox/internal/domain"
	"github.com/dontdude/testbox/internal/metrics"
)

// Reporter is the part of the queue a worker talks back to.
type Reporter interface {
	Broadcast(ctx context.Context, result domain.JobResult) error
	Acknowledge(ctx context.Context, rawID string) error
}

// Pool implements a fixed-size worker pool pattern.
// Each worker owns one sandbox, so at most workerCount lanes are live.
type Pool struct {
	// workerCount determines how many jobs are graded concurrently.
	workerCount int
	// tasksCh is the queue for incoming jobs.
	tasksCh chan domain.Job
	// wg tracks active workers to ensure graceful shutdown.
	wg sync.WaitGroup

	newSandbox func() domain.Sandbox
	reporter   Reporter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewPool initializes the worker pool with a fixed concurrency limit.
// newSandbox is called once per worker.
func NewPool(concurrency int, newSandbox func() domain.Sandbox, reporter Reporter, m *metrics.Metrics, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		workerCount: concurrency,
		// Buffer the channel to allow non-blocking submission up to a certain point.
		tasksCh:    make(chan domain.Job, concurrency),
		newSandbox: newSandbox,
		reporter:   reporter,
		metrics:    m,
		logger:     logger,
	}
}

// Start spawns the fixed number of worker goroutines.
// It returns immediately.
func (p *Pool) Start() {
	p.logger.Info("Starting worker pool", "concurrency", p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the jobs channel and blocks until every worker has finished
// its current job and exited.
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool, waiting for tasks to drain...")
	close(p.tasksCh)
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// Submit adds a job to the queue.
// It blocks if the queue (and workers) are fully saturated.
func (p *Pool) Submit(job domain.Job) {
	p.tasksCh <- job
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	logger := p.logger.With("workerId", id)
	logger.Info("Worker started")

	sandbox := p.newSandbox()
	defer sandbox.Close()

	for job := range p.tasksCh {
		logger.Debug("Processing job", "jobID", job.ID, "type", job.Type, "tests", len(job.Tests))

		status := p.grade(context.Background(), sandbox, job, logger)
		p.metrics.JobFinished(status)

		if job.RawID != "" {
			if err := p.reporter.Acknowledge(context.Background(), job.RawID); err != nil {
				logger.Error("Failed to acknowledge job", "jobID", job.ID, "error", err)
			}
		}
	}

	logger.Info("Worker stopped")
}

// grade runs every test of job in order in one lane and reports each
// verdict, then a final Done event. It returns the job status.
func (p *Pool) grade(ctx context.Context, sandbox domain.Sandbox, job domain.Job, logger *slog.Logger) string {
	timeout := time.Duration(job.TimeoutMs) * time.Millisecond

	// 1. One lane for the whole job.
	runner, err := sandbox.CreateRunner(ctx, domain.CreateRequest{Type: job.Type, InitOptions: job.Options})
	if err != nil {
		logger.Error("Failed to create runner", "jobID", job.ID, "error", err)
		p.report(ctx, domain.JobResult{JobID: job.ID, Done: true, Error: err.Error()}, logger)
		return "error"
	}
	defer runner.Dispose()

	// 2. Tests run one at a time; a respawn after a timeout keeps the lane.
	passed := 0
	for i, test := range job.Tests {
		verdict, err := runner.RunTest(ctx, test, timeout)
		if err != nil {
			logger.Error("Test aborted", "jobID", job.ID, "index", i, "error", err)
			p.report(ctx, domain.JobResult{JobID: job.ID, Index: i, Done: true, Passed: passed, Error: err.Error()}, logger)
			return "error"
		}
		if verdict.Pass {
			passed++
		}
		p.report(ctx, domain.JobResult{JobID: job.ID, Index: i, Test: test, Verdict: &verdict}, logger)
	}

	// 3. Summary.
	p.report(ctx, domain.JobResult{JobID: job.ID, Index: len(job.Tests), Done: true, Passed: passed}, logger)
	logger.Info("Job graded", "jobID", job.ID, "passed", passed, "total", len(job.Tests))

	if passed == len(job.Tests) {
		return "passed"
	}
	return "failed"
}

func (p *Pool) report(ctx context.Context, res domain.JobResult, logger *slog.Logger) {
	if err := p.reporter.Broadcast(ctx, res); err != nil {
		logger.Error("Failed to broadcast result", "jobID", res.JobID, "error", err)
	}
}
