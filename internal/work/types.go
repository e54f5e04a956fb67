package work

import (
	"context"
	"time"
)

// JobTimeout is the maximum duration a job can run before being cancelled.
const JobTimeout = 10 * time.Minute

// Job is one unit of queued work.
type Job struct {
	// ID identifies the job in logs (the run id for engine runs).
	ID      string
	Execute func(ctx context.Context) error
}
