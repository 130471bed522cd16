package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dontdude/testbox/internal/config"
	"github.com/dontdude/testbox/internal/domain"
	"github.com/dontdude/testbox/internal/platform/queue"
)

func main() {
	// 1. Initialize Logger
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logging.Logger()
	slog.SetDefault(logger)

	// 2. Initialize Redis Queue (Producer Mode)
	redisQ := queue.NewRedisQueue(queue.Config{
		Addr:   cfg.Redis.Addr,
		Stream: cfg.Redis.Stream,
		Group:  cfg.Redis.Group,
	}, logger)
	defer redisQ.Close()

	// 3. Publish one job per evaluator kind
	jobs := []domain.Job{
		{
			Type:    domain.KindWorker,
			Options: domain.InitOptions{Source: "function add(a, b) { return a + b; }"},
			Tests: []string{
				"assert.equal(add(2, 3), 5)",
				"assert.equal(add(-1, 1), 0)",
			},
		},
		{
			Type:    domain.KindFrame,
			Options: domain.InitOptions{Source: "<body><h1 id=\"title\">Cat Photo App</h1></body>"},
			Tests: []string{
				"assert.equal(document.getElementById('title').textContent, 'Cat Photo App')",
				"assert.lengthOf(document.querySelectorAll('img'), 1)",
			},
		},
		{
			Type:    domain.KindPython,
			Options: domain.InitOptions{Source: "def square(n):\n    return n * n\n"},
			Tests: []string{
				"({ test: () => assert.equal(runPython('square(4)'), 16) })",
			},
		},
	}

	for i, job := range jobs {
		job.ID = fmt.Sprintf("job-%d", i+1)
		slog.Info("Publishing job", "jobID", job.ID, "type", job.Type)
		if err := redisQ.Publish(context.Background(), job); err != nil {
			slog.Error("Failed to publish job", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Successfully published jobs", "count", len(jobs))
}
