package queue

import (
	"context"
	"errors"
)

// ErrNoJob is returned by Dequeue when the poll window elapsed without a job.
var ErrNoJob = errors.New("no job available")

// JobQueue carries generation job IDs from the API to the worker. The job row
// in PostgreSQL is the source of truth; the queue only transports its ID.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
	Dequeue(ctx context.Context) (string, error)
	Close() error
}
