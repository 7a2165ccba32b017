package scheduler

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Waves runs fn over items in consecutive waves of at most k items. Items in a
// wave run concurrently; a wave is fully drained before the next one starts.
// fn reports failures through its result, so one item never stops the others.
//
// Results keep the order of items. When ctx is canceled no further wave is
// started and the results of the waves that did run are returned with the
// context error.
func Waves[T, R any](ctx context.Context, items []T, k int, onWave func(index, size int), fn func(ctx context.Context, item T) R) ([]R, error) {
	if k <= 0 {
		k = 1
	}
	results := make([]R, 0, len(items))

	for start, wave := 0, 0; start < len(items); start, wave = start+k, wave+1 {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := start + k
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		if onWave != nil {
			onWave(wave, len(batch))
		}

		out := make([]R, len(batch))
		var g errgroup.Group
		for i := range batch {
			i := i
			g.Go(func() error {
				out[i] = fn(ctx, batch[i])
				return nil
			})
		}
		_ = g.Wait()
		results = append(results, out...)
	}
	return results, nil
}
