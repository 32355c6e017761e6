// Package workgroup runs the long-lived routines of the daemon together.
package workgroup

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group runs work sharing one context. The first routine to fail cancels the
// context given to the rest.
type Group struct {
	ctx   context.Context
	group *errgroup.Group
}

// WithContext creates a Group whose routines are cancelled along with ctx.
func WithContext(ctx context.Context) *Group {
	group, gctx := errgroup.WithContext(ctx)
	return &Group{
		ctx:   gctx,
		group: group,
	}
}

// Work starts fn in its own goroutine.
func (g *Group) Work(fn func(context.Context) error) {
	g.group.Go(func() error {
		return fn(g.ctx)
	})
}

// Wait blocks until all work returns and reports the first error.
func (g *Group) Wait() error {
	return g.group.Wait()
}
