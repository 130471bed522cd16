package domain

import "context"

// JobQueue defines the contract for a distributed grading queue.
// It decouples the application from the underlying message broker.
type JobQueue interface {
	// Publish enqueues a job for grading.
	Publish(ctx context.Context, job Job) error

	// Subscribe returns a read-only channel that streams jobs from the queue.
	// It handles the details of consumer groups internally.
	Subscribe(ctx context.Context) (<-chan Job, error)

	// Acknowledge confirms that a job has been fully graded.
	// This removes it from the Pending Entry List (PEL).
	Acknowledge(ctx context.Context, rawID string) error

	// Broadcast publishes one grading event to every listening API server.
	Broadcast(ctx context.Context, result JobResult) error

	// SubscribeResults streams grading events from all workers.
	SubscribeResults(ctx context.Context) (<-chan JobResult, error)
}
