package crawl

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const defaultConcurrency = 8

// forEach runs fn over items with at most limit calls in flight. Items are
// admitted in order. After the first failure no further items are admitted;
// calls already running are left to finish on their own request timeouts.
func forEach[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) error {
	if limit <= 0 {
		limit = defaultConcurrency
	}
	sem := semaphore.NewWeighted(int64(limit))
	var (
		g        errgroup.Group
		failed   atomic.Bool
		admitErr error
	)
	for _, item := range items {
		if failed.Load() {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			admitErr = fmt.Errorf("admit crawl: %w", err)
			break
		}
		if failed.Load() {
			sem.Release(1)
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := fn(ctx, item); err != nil {
				failed.Store(true)
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return admitErr
}
