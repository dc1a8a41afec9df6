package worker

import (
	"context"
)

// HostJob is a job whose work targets a single remote host
type HostJob interface {
	Job
	Host() string
}

// gatedJob holds the host gate for the duration of the wrapped job
type gatedJob struct {
	job  HostJob
	gate *HostGate
}

// gateResult reports a job that never ran because its context ended
type gateResult struct {
	err error
}

func (r *gateResult) GetError() error { return r.err }

func (g *gatedJob) Execute(ctx context.Context) Result {
	release, err := g.gate.Acquire(ctx, g.job.Host())
	if err != nil {
		return &gateResult{err: err}
	}
	defer release()
	return g.job.Execute(ctx)
}

// BatchProcessor runs host-bound jobs concurrently with at most one job per host in flight
type BatchProcessor struct {
	concurrency int
	gate        *HostGate
}

// NewBatchProcessor creates a processor. The gate is shared across batches so
// host exclusivity holds for the whole run.
func NewBatchProcessor(concurrency int, gate *HostGate) *BatchProcessor {
	if concurrency <= 0 {
		concurrency = 1
	}
	if gate == nil {
		gate = NewHostGate()
	}
	return &BatchProcessor{
		concurrency: concurrency,
		gate:        gate,
	}
}

// Process executes jobs and calls onResult for each result as it arrives.
// onResult runs on the caller's goroutine, so it needs no locking of its own.
func (b *BatchProcessor) Process(ctx context.Context, jobs []HostJob, onResult func(Result)) {
	if len(jobs) == 0 {
		return
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	go func() {
		defer pool.Close()
		for _, job := range jobs {
			if !pool.Submit(&gatedJob{job: job, gate: b.gate}) {
				return
			}
		}
	}()

	for result := range pool.Results() {
		if onResult != nil {
			onResult(result)
		}
	}
}
