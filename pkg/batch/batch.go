package batch

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Run fans inputs out to a bounded worker pool and collects the results in
// input order. The first error cancels outstanding work and is returned.
func Run[T, R any](ctx context.Context, inputs []T, workers int, logger *zap.Logger, fn func(context.Context, T) (R, error)) ([]R, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(inputs) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]R, len(inputs))
	indexes := make(chan int)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(worker int) {
			defer wg.Done()
			for idx := range indexes {
				select {
				case <-runCtx.Done():
					return
				default:
				}
				res, err := fn(runCtx, inputs[idx])
				if err != nil {
					logger.Debug("batch item failed",
						zap.Int("worker", worker),
						zap.Int("index", idx),
						zap.Error(err))
					fail(err)
					return
				}
				results[idx] = res
			}
		}(w)
	}

dispatch:
	for i := range inputs {
		select {
		case <-runCtx.Done():
			break dispatch
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
