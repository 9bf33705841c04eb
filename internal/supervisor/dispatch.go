package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/faultline/faultline/internal/tasks"
)

// semaphore caps how many diagnostic tasks run at once. Acquire blocks
// until a slot frees or the context ends.
type semaphore struct {
	ch chan struct{}
}

func newSemaphore(n int) *semaphore {
	if n < 1 {
		n = 1
	}
	return &semaphore{ch: make(chan struct{}, n)}
}

func (s *semaphore) acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *semaphore) release() {
	<-s.ch
}

// newTask is swapped in tests.
var newTask = tasks.New

// dispatch runs every task in kinds concurrently, bounded by sem, and
// returns outcomes indexed by dispatch position so merging stays
// deterministic regardless of which goroutine finishes first. A panic in
// one task becomes a failed outcome for that task only.
func dispatch(ctx context.Context, kinds []tasks.Kind, tc tasks.Context, src tasks.Sources, sem *semaphore) []tasks.Outcome {
	outcomes := make([]tasks.Outcome, len(kinds))
	var wg sync.WaitGroup
	for i, k := range kinds {
		task, ok := newTask(k)
		if !ok {
			outcomes[i] = tasks.Outcome{Kind: k, Status: tasks.StatusFailed, Reason: "unknown task kind"}
			continue
		}
		if err := sem.acquire(ctx); err != nil {
			outcomes[i] = tasks.Outcome{Kind: k, Status: tasks.StatusFailed, Reason: "cancelled before start: " + err.Error()}
			continue
		}
		wg.Add(1)
		go func(i int, k tasks.Kind, task tasks.Task) {
			defer wg.Done()
			defer sem.release()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("task panicked", "task", k, "panic", r)
					outcomes[i] = tasks.Outcome{Kind: k, Status: tasks.StatusFailed, Reason: fmt.Sprintf("panic: %v", r)}
				}
			}()
			outcomes[i] = task.Run(ctx, tc, src)
		}(i, k, task)
	}
	wg.Wait()
	return outcomes
}
