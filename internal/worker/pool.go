// Package worker provides a bounded fan-out pool for per-file analysis.
// The audit log-secret check and the skill scanner use it to read and
// match files in parallel while keeping output in input order.
package worker

import (
	"context"
	"runtime"
	"sync"
)

// Result pairs a processed value with its original index to preserve ordering.
type Result[T any] struct {
	Index int
	Item  string
	Value T
	Err   error
}

// Pool fans out work items to a fixed number of goroutine workers
// and collects results preserving the original input order.
type Pool[T any] struct {
	concurrency int
}

// NewPool creates a worker pool with the given concurrency.
// If concurrency <= 0, defaults to runtime.NumCPU().
func NewPool[T any](concurrency int) *Pool[T] {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Pool[T]{concurrency: concurrency}
}

// Process applies fn to every item and returns one Result per item in input
// order. Item errors are captured per result. Once ctx is done, items not
// yet started are not run and carry ctx.Err().
func (p *Pool[T]) Process(ctx context.Context, items []string, fn func(context.Context, string) (T, error)) []Result[T] {
	if len(items) == 0 {
		return nil
	}

	workers := min(p.concurrency, len(items))

	jobs := make(chan int)
	results := make([]Result[T], len(items))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res := Result[T]{Index: i, Item: items[i]}
				if err := ctx.Err(); err != nil {
					res.Err = err
				} else {
					res.Value, res.Err = fn(ctx, items[i])
				}
				results[i] = res
			}
		}()
	}

	next := 0
feed:
	for ; next < len(items); next++ {
		select {
		case jobs <- next:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(items); i++ {
		results[i] = Result[T]{Index: i, Item: items[i], Err: ctx.Err()}
	}
	return results
}
