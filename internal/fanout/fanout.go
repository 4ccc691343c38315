// Package fanout runs independent lookups concurrently and joins the results.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map calls fn for every item with at most limit calls in flight and returns
// the results in input order. A failed item is replaced by fallback(item, err);
// one item's failure never cancels the others. A non-positive limit means no
// bound.
func Map[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (R, error), fallback func(T, error) R) []R {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i] = fallback(item, err)
				return nil
			}
			r, err := fn(ctx, item)
			if err != nil {
				out[i] = fallback(item, err)
				return nil
			}
			out[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return out
}
