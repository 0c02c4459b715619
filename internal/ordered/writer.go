// Package ordered executes a batch of fetches with bounded parallelism
// while committing the results to a single sink in input order.
package ordered

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultConcurrency bounds parallel fetches when Options.Concurrency
// is unset.
const DefaultConcurrency = 10

// FetchFunc retrieves the bytes for one item of the batch.
type FetchFunc func(ctx context.Context, index int) ([]byte, error)

// CommitFunc runs after an item's bytes are fully appended to the sink.
// It is called exactly once per committed item, in input order; an
// error aborts the batch.
type CommitFunc func(index int, size int64) error

// Options configures a batch run.
type Options struct {
	// Concurrency limits parallel fetches. Defaults to DefaultConcurrency.
	Concurrency int
	// FailFast stops committing after the first failed item so the
	// committed set is always a prefix of the input. Without it a
	// failed item is skipped and later items still commit.
	FailFast bool
	// OnCommit is the per-item side effect (progress persistence).
	OnCommit CommitFunc
}

// Result describes the outcome of a batch.
type Result struct {
	// Committed is the number of items whose bytes reached the sink.
	Committed int
	// Skipped lists the input indexes that were not committed, in
	// input order.
	Skipped []int
}

// Run fetches n items and appends their bytes to sink in input order,
// regardless of fetch completion order. Each index waits on a gate that
// the previous index closes after its own commit, so only the write
// phase is serialized. A failed or cancelled item still releases the
// next gate; its write is skipped and recorded in Result.Skipped.
//
// The returned error is the first fetch/write error observed, also set
// when the result is only a partial success; the caller decides whether
// partial failure aborts the task.
func Run(ctx context.Context, n int, fetch FetchFunc, sink io.Writer, opts Options) (Result, error) {
	var res Result
	if n == 0 {
		return res, ctx.Err()
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// gates[i] closes when item i may start writing; gates[i+1] closes
	// once item i is done with the sink, success or not.
	gates := make([]chan struct{}, n+1)
	for i := range gates {
		gates[i] = make(chan struct{})
	}
	close(gates[0])

	sem := make(chan struct{}, concurrency)
	var aborted atomic.Bool
	var firstErr error
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer close(gates[i+1])

			var data []byte
			var fetchErr error

			select {
			case sem <- struct{}{}:
				if runCtx.Err() != nil || aborted.Load() {
					fetchErr = context.Canceled
				} else {
					data, fetchErr = fetch(runCtx, i)
				}
				<-sem
			case <-runCtx.Done():
				fetchErr = runCtx.Err()
			}

			// Wait for our turn at the sink. The predecessor always
			// closes our gate, so this cannot deadlock.
			<-gates[i]

			// The commit phase below runs for one index at a time, so
			// res and firstErr need no extra locking; wg.Wait publishes
			// them to the caller.
			commitErr := func() error {
				if fetchErr != nil {
					return fetchErr
				}
				if runCtx.Err() != nil {
					return runCtx.Err()
				}
				if opts.FailFast && aborted.Load() {
					return context.Canceled
				}
				if _, err := sink.Write(data); err != nil {
					// A sink failure poisons the whole batch.
					aborted.Store(true)
					cancel()
					return err
				}
				if opts.OnCommit != nil {
					if err := opts.OnCommit(i, int64(len(data))); err != nil {
						aborted.Store(true)
						cancel()
						return err
					}
				}
				return nil
			}()

			if commitErr != nil {
				res.Skipped = append(res.Skipped, i)
				if firstErr == nil {
					firstErr = commitErr
				}
				if opts.FailFast {
					aborted.Store(true)
					cancel()
				}
				return
			}
			res.Committed++
		}(i)
	}

	wg.Wait()
	return res, firstErr
}
