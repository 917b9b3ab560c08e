package bulk

import (
	"context"
	"sync"
	"sync/atomic"
)

// Task is one zero-argument unit of work. The runner has no domain
// knowledge; callers close over whatever a task needs.
type Task func(ctx context.Context) (any, error)

type ResultStatus string

const (
	// StatusFulfilled: the task ran and returned a value.
	StatusFulfilled ResultStatus = "fulfilled"
	// StatusRejected: the task ran and returned an error.
	StatusRejected ResultStatus = "rejected"
	// StatusSkipped: the task never started (cancelled batch).
	StatusSkipped ResultStatus = "skipped"
)

// Result i corresponds to task i regardless of completion order.
type Result struct {
	Index  int
	Value  any
	Err    error
	Status ResultStatus
}

// ProgressFunc receives monotonically increasing processed counts as tasks
// settle (not as they start).
type ProgressFunc func(processed, total int)

type Option func(*Runner)

func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

// Runner executes task batches with at most `concurrency` tasks in flight.
// A failing task never aborts the batch. Cancellation is cooperative and
// non-preemptive: tasks already running settle normally, tasks not yet
// started stay skipped.
type Runner struct {
	concurrency int
	progress    ProgressFunc
	cancelled   atomic.Bool
}

func NewRunner(concurrency int, opts ...Option) *Runner {
	r := &Runner{concurrency: concurrency}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cancel requests cooperative cancellation of the in-progress batch. No
// task that has not started will start; in-flight tasks complete and their
// results are recorded.
func (r *Runner) Cancel() {
	r.cancelled.Store(true)
}

func (r *Runner) Cancelled() bool {
	return r.cancelled.Load()
}

// Run executes the batch and returns one result per task, index-stable.
// Each call re-arms the cancellation flag.
func (r *Runner) Run(ctx context.Context, tasks []Task) []Result {
	total := len(tasks)
	results := make([]Result, total)
	for i := range results {
		results[i] = Result{Index: i, Status: StatusSkipped}
	}
	if total == 0 {
		return results
	}

	r.cancelled.Store(false)

	workers := r.concurrency
	if workers <= 0 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	indices := make(chan int)
	settled := make(chan int, total)
	var wg sync.WaitGroup

	go func() {
		defer close(indices)
		for i := 0; i < total; i++ {
			select {
			case indices <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				// Checked between task starts; running tasks are never
				// interrupted.
				if r.cancelled.Load() || ctx.Err() != nil {
					continue
				}

				value, err := tasks[i](ctx)
				if err != nil {
					results[i] = Result{Index: i, Err: err, Status: StatusRejected}
				} else {
					results[i] = Result{Index: i, Value: value, Status: StatusFulfilled}
				}
				settled <- i
			}
		}()
	}

	// Single owner of the progress counter, so increments are never lost.
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		processed := 0
		for range settled {
			processed++
			if r.progress != nil {
				r.progress(processed, total)
			}
		}
	}()

	wg.Wait()
	close(settled)
	<-collectorDone

	return results
}

// RetryFailed re-runs only the previously rejected tasks as a fresh
// bounded-concurrency batch under the same progress/cancellation contract,
// and merges the fresh outcomes into a copy of prev. Entries skipped during
// the retry keep their previous rejected result.
func (r *Runner) RetryFailed(ctx context.Context, tasks []Task, prev []Result) []Result {
	merged := make([]Result, len(prev))
	copy(merged, prev)

	var retryIndices []int
	for _, res := range prev {
		if res.Status == StatusRejected {
			retryIndices = append(retryIndices, res.Index)
		}
	}
	if len(retryIndices) == 0 {
		return merged
	}

	subset := make([]Task, len(retryIndices))
	for j, i := range retryIndices {
		subset[j] = tasks[i]
	}

	for j, sub := range r.Run(ctx, subset) {
		if sub.Status == StatusSkipped {
			continue
		}
		sub.Index = retryIndices[j]
		merged[sub.Index] = sub
	}

	return merged
}

// Counts summarizes a result set.
func Counts(results []Result) (fulfilled, rejected, skipped int) {
	for _, res := range results {
		switch res.Status {
		case StatusFulfilled:
			fulfilled++
		case StatusRejected:
			rejected++
		case StatusSkipped:
			skipped++
		}
	}
	return fulfilled, rejected, skipped
}
