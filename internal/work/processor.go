package work

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("processor stopped")

// Processor executes queued jobs one at a time, oldest first.
type Processor struct {
	timeout time.Duration
	log     zerolog.Logger

	trigger chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	mu       sync.Mutex
	queue    []*Job
	inFlight string
	closed   bool
	cancel   context.CancelFunc
}

// NewProcessor creates a new job processor.
func NewProcessor(log zerolog.Logger) *Processor {
	return NewProcessorWithTimeout(JobTimeout, log)
}

// NewProcessorWithTimeout creates a new job processor with a custom timeout.
func NewProcessorWithTimeout(timeout time.Duration, log zerolog.Logger) *Processor {
	return &Processor{
		timeout: timeout,
		log:     log.With().Str("component", "work_processor").Logger(),
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Enqueue appends a job and wakes the processor.
func (p *Processor) Enqueue(job *Job) error {
	if job == nil || job.Execute == nil {
		return fmt.Errorf("job has nothing to execute")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrStopped
	}
	p.queue = append(p.queue, job)
	pending := len(p.queue)
	p.mu.Unlock()

	p.log.Debug().Str("job", job.ID).Int("pending", pending).Msg("Job enqueued")
	p.Trigger()
	return nil
}

// Pending returns the number of queued jobs, excluding the running one.
func (p *Processor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Running returns the id of the executing job, or "".
func (p *Processor) Running() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// Run starts the processor loop. This blocks until Stop() is called.
func (p *Processor) Run() {
	defer close(p.stopped)

	for {
		select {
		case <-p.stop:
			return
		case <-p.trigger:
			for p.processOne() {
				select {
				case <-p.stop:
					return
				default:
				}
			}
		}
	}
}

// Stop cancels the running job, discards the queue and waits for the loop
// to exit. Run must have been started.
func (p *Processor) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.stopped
		return
	}
	p.closed = true
	dropped := len(p.queue)
	p.queue = nil
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	close(p.stop)
	<-p.stopped
	if dropped > 0 {
		p.log.Warn().Int("dropped", dropped).Msg("Processor stopped with queued jobs")
	}
}

// Trigger wakes up the processor to check for work.
// This is non-blocking and can be called from any goroutine.
func (p *Processor) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
		// Trigger already pending
	}
}

// processOne executes the oldest job and reports whether there was one.
func (p *Processor) processOne() bool {
	p.mu.Lock()
	if len(p.queue) == 0 || p.closed {
		p.mu.Unlock()
		return false
	}
	job := p.queue[0]
	p.queue = p.queue[1:]
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	p.inFlight = job.ID
	p.cancel = cancel
	p.mu.Unlock()

	start := time.Now()
	err := p.execute(ctx, job)
	cancel()

	p.mu.Lock()
	p.inFlight = ""
	p.cancel = nil
	p.mu.Unlock()

	switch {
	case err == nil:
		p.log.Debug().Str("job", job.ID).Dur("duration", time.Since(start)).Msg("Job completed")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		p.log.Error().Str("job", job.ID).Dur("timeout", p.timeout).Msg("Job timed out")
	default:
		p.log.Error().Err(err).Str("job", job.ID).Msg("Job failed")
	}
	return true
}

// execute runs a job, converting a panic into an error.
func (p *Processor) execute(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return job.Execute(ctx)
}
