// Package worker provides a fixed-size worker pool for concurrent task execution.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrBackpressure is returned when the queue is full and the drop policy
// rejects the job instead of blocking.
var ErrBackpressure = errors.New("worker pool queue full")

// DropPolicy controls what Submit does when the queue is full.
type DropPolicy int

const (
	// DropPolicyBlock makes Submit wait for queue space
	DropPolicyBlock DropPolicy = iota
	// DropPolicyNewest makes Submit reject the incoming job
	DropPolicyNewest
)

// Job is a unit of work executed by a pool worker.
type Job struct {
	// ID identifies the job in logs and results
	ID string
	// Execute runs the work. It receives the pool context.
	Execute func(ctx context.Context) (interface{}, error)
}

// Result is the outcome of a job execution.
type Result struct {
	JobID string
	Value interface{}
	Err   error
}

// Stats is a snapshot of pool counters.
type Stats struct {
	JobsSubmitted int64
	JobsCompleted int64
	JobsDropped   int64
}

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers    int
	QueueSize  int
	DropPolicy DropPolicy
}

// Pool runs jobs on a fixed number of worker goroutines pulling from a
// shared queue. Used for fan-out work like warming caches for a list of
// symbols without hammering the upstream API all at once.
type Pool struct {
	workers    int
	dropPolicy DropPolicy
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	dropped   atomic.Int64
}

// NewPool creates a blocking-submit pool with the given number of workers
// and queue buffer. Workers start immediately and wait for jobs.
func NewPool(ctx context.Context, workers int, queueSize int) *Pool {
	return NewPoolWithConfig(ctx, PoolConfig{
		Workers:   workers,
		QueueSize: queueSize,
	})
}

// NewPoolWithConfig creates a pool from explicit configuration.
func NewPoolWithConfig(ctx context.Context, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	poolCtx, cancel := context.WithCancel(ctx)

	p := &Pool{
		workers:    cfg.Workers,
		dropPolicy: cfg.DropPolicy,
		jobQueue:   make(chan Job, cfg.QueueSize),
		results:    make(chan Result, cfg.QueueSize),
		ctx:        poolCtx,
		cancel:     cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			value, err := job.Execute(p.ctx)
			p.completed.Add(1)
			// Drop the result if nobody is draining the channel
			select {
			case p.results <- Result{JobID: job.ID, Value: value, Err: err}:
			default:
			}
		}
	}
}

// Submit enqueues a job. With DropPolicyBlock it waits for queue space;
// with DropPolicyNewest it returns ErrBackpressure when the queue is full.
// Returns an error if the pool context is cancelled.
func (p *Pool) Submit(job Job) error {
	if p.dropPolicy == DropPolicyNewest {
		return p.TrySubmit(job)
	}

	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobQueue <- job:
		p.submitted.Add(1)
		return nil
	}
}

// TrySubmit enqueues a job without blocking. Returns ErrBackpressure when
// the queue is full.
func (p *Pool) TrySubmit(job Job) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobQueue <- job:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return ErrBackpressure
	}
}

// SubmitAndWait submits all jobs and collects their results. Results come
// back in completion order, not submission order. Outcomes are delivered
// on a dedicated per-call channel, so a batch larger than the queue still
// completes: submission and collection run concurrently and nothing is
// lost to the shared results buffer overflowing.
func (p *Pool) SubmitAndWait(jobs []Job) []Result {
	out := make(chan Result, len(jobs))

	go func() {
		for _, job := range jobs {
			job := job
			err := p.Submit(Job{
				ID: job.ID,
				Execute: func(ctx context.Context) (interface{}, error) {
					value, err := job.Execute(ctx)
					out <- Result{JobID: job.ID, Value: value, Err: err}
					return value, err
				},
			})
			if err != nil {
				out <- Result{JobID: job.ID, Err: err}
			}
		}
	}()

	results := make([]Result, 0, len(jobs))
	for i := 0; i < len(jobs); i++ {
		select {
		case <-p.ctx.Done():
			return results
		case result := <-out:
			results = append(results, result)
		}
	}
	return results
}

// Results returns the channel job outcomes are delivered on.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		JobsSubmitted: p.submitted.Load(),
		JobsCompleted: p.completed.Load(),
		JobsDropped:   p.dropped.Load(),
	}
}

// Close stops accepting jobs and waits for workers to drain.
func (p *Pool) Close() {
	p.cancel()
	close(p.jobQueue)
	p.wg.Wait()
	close(p.results)
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// DropPolicy returns the configured drop policy.
func (p *Pool) DropPolicy() DropPolicy {
	return p.dropPolicy
}

// QueueLen returns the number of jobs waiting in the queue.
func (p *Pool) QueueLen() int {
	return len(p.jobQueue)
}
