// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	dErrors "sharedauth/pkg/domain-errors"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes int32
	Errors    int32

	mu    sync.Mutex
	codes map[dErrors.Code]int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors
}

// WithCode returns how many operations failed with code. Errors that carry no
// domain code count as CodeInternal.
func (r *ConcurrentResult) WithCode(code dErrors.Code) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.codes[code]
}

// RunConcurrent executes fn in parallel goroutines and collects results,
// replacing the WaitGroup + atomic counters pattern in tests.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, errs atomic.Int32
	result := &ConcurrentResult{codes: make(map[dErrors.Code]int32)}

	for i := range goroutines {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := fn(idx)
			if err == nil {
				successes.Add(1)
				return
			}
			errs.Add(1)
			result.mu.Lock()
			result.codes[dErrors.CodeOf(err)]++
			result.mu.Unlock()
		}(i)
	}

	wg.Wait()
	result.Successes = successes.Load()
	result.Errors = errs.Load()
	return result
}

// RunConcurrentCtx executes fn in parallel goroutines with context support.
func RunConcurrentCtx(ctx context.Context, goroutines int, fn func(ctx context.Context, idx int) error) *ConcurrentResult {
	return RunConcurrent(goroutines, func(idx int) error {
		return fn(ctx, idx)
	})
}
