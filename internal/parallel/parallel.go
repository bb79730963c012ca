// Package parallel runs independent pieces of work with a bounded number of
// goroutines.
package parallel

import (
	"context"
	"errors"
	"iter"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ForEach calls fn for every element of seq, running at most limit calls at
// a time. One failing element does not stop the others: all errors are
// collected and joined. A cancelled context stops consuming seq.
func ForEach[E any](ctx context.Context, limit int, seq iter.Seq[E], fn func(context.Context, E) error) error {
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	var mx sync.Mutex
	var errs []error

	for e := range seq {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := fn(ctx, e); err != nil {
				mx.Lock()
				errs = append(errs, err)
				mx.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
