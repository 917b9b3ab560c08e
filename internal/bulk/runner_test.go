package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_IndexStableResults(t *testing.T) {
	tasks := make([]Task, 10)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (any, error) {
			// Reverse the natural completion order.
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return i * 100, nil
		}
	}

	runner := NewRunner(4)
	results := runner.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Fatalf("expected %d results, got %d", len(tasks), len(results))
	}
	for i, res := range results {
		if res.Index != i {
			t.Errorf("result %d has index %d", i, res.Index)
		}
		if res.Status != StatusFulfilled {
			t.Errorf("result %d status = %s, want fulfilled", i, res.Status)
		}
		if res.Value != i*100 {
			t.Errorf("result %d value = %v, want %d", i, res.Value, i*100)
		}
	}
}

func TestRun_FailureDoesNotAbortBatch(t *testing.T) {
	boom := errors.New("boom")
	tasks := make([]Task, 6)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (any, error) {
			if i%2 == 1 {
				return nil, boom
			}
			return i, nil
		}
	}

	results := NewRunner(2).Run(context.Background(), tasks)

	fulfilled, rejected, skipped := Counts(results)
	if fulfilled != 3 || rejected != 3 || skipped != 0 {
		t.Fatalf("counts = %d/%d/%d, want 3/3/0", fulfilled, rejected, skipped)
	}
	for i, res := range results {
		if i%2 == 1 && !errors.Is(res.Err, boom) {
			t.Errorf("result %d err = %v, want boom", i, res.Err)
		}
	}
}

func TestRun_ConcurrencyBound(t *testing.T) {
	const limit = 3
	var inFlight, peak atomic.Int32

	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (any, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			return nil, nil
		}
	}

	NewRunner(limit).Run(context.Background(), tasks)

	if got := peak.Load(); got > limit {
		t.Fatalf("peak in-flight = %d, exceeds limit %d", got, limit)
	}
}

func TestRun_ProgressMonotonicAndComplete(t *testing.T) {
	var mu sync.Mutex
	var seen []int

	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (any, error) { return nil, nil }
	}

	runner := NewRunner(4, WithProgress(func(processed, total int) {
		mu.Lock()
		seen = append(seen, processed)
		mu.Unlock()
		if total != 8 {
			t.Errorf("total = %d, want 8", total)
		}
	}))
	runner.Run(context.Background(), tasks)

	if len(seen) != 8 {
		t.Fatalf("progress called %d times, want 8", len(seen))
	}
	for i, p := range seen {
		if p != i+1 {
			t.Fatalf("progress sequence %v is not monotonic by one", seen)
		}
	}
}

func TestRun_CancelSkipsUnstartedTasks(t *testing.T) {
	runner := NewRunner(1)
	started := make(chan struct{})
	release := make(chan struct{})

	tasks := []Task{
		func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return "done", nil
		},
		func(ctx context.Context) (any, error) { return "second", nil },
		func(ctx context.Context) (any, error) { return "third", nil },
	}

	go func() {
		<-started
		runner.Cancel()
		close(release)
	}()

	results := runner.Run(context.Background(), tasks)

	// The in-flight task settles normally.
	if results[0].Status != StatusFulfilled || results[0].Value != "done" {
		t.Errorf("result 0 = %+v, want fulfilled 'done'", results[0])
	}
	for i := 1; i < 3; i++ {
		if results[i].Status != StatusSkipped {
			t.Errorf("result %d status = %s, want skipped", i, results[i].Status)
		}
	}
	if !runner.Cancelled() {
		t.Error("Cancelled() = false after Cancel")
	}
}

func TestRun_EmptyBatch(t *testing.T) {
	results := NewRunner(4).Run(context.Background(), nil)
	if len(results) != 0 {
		t.Fatalf("expected empty result set, got %d", len(results))
	}
}

func TestRetryFailed_RerunsOnlyRejected(t *testing.T) {
	var calls [4]atomic.Int32
	tasks := make([]Task, 4)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (any, error) {
			n := calls[i].Add(1)
			// Odd indices fail on the first attempt only.
			if i%2 == 1 && n == 1 {
				return nil, fmt.Errorf("transient %d", i)
			}
			return i, nil
		}
	}

	runner := NewRunner(2)
	first := runner.Run(context.Background(), tasks)
	if _, rejected, _ := Counts(first); rejected != 2 {
		t.Fatalf("first pass rejected = %d, want 2", rejected)
	}

	merged := runner.RetryFailed(context.Background(), tasks, first)

	for i, res := range merged {
		if res.Index != i {
			t.Errorf("merged result %d has index %d", i, res.Index)
		}
		if res.Status != StatusFulfilled {
			t.Errorf("merged result %d status = %s, want fulfilled", i, res.Status)
		}
	}
	for i := range calls {
		want := int32(1)
		if i%2 == 1 {
			want = 2
		}
		if got := calls[i].Load(); got != want {
			t.Errorf("task %d ran %d times, want %d", i, got, want)
		}
	}
}

func TestRetryFailed_NothingToRetry(t *testing.T) {
	tasks := []Task{
		func(ctx context.Context) (any, error) { return 1, nil },
	}
	runner := NewRunner(1)
	first := runner.Run(context.Background(), tasks)

	ran := atomic.Int32{}
	tasks[0] = func(ctx context.Context) (any, error) {
		ran.Add(1)
		return 1, nil
	}
	merged := runner.RetryFailed(context.Background(), tasks, first)

	if ran.Load() != 0 {
		t.Error("retry ran a fulfilled task")
	}
	if merged[0].Status != StatusFulfilled {
		t.Errorf("merged status = %s, want fulfilled", merged[0].Status)
	}
}
