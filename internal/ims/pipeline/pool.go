package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work submitted to a Pool. l3expand.Worker
// implements it.
type Task interface {
	Run(ctx context.Context) error
}

// Pool executes tasks and reports once every task is terminal.
//
// Submit must not block until the tasks complete. done is called exactly
// once, after every task has returned, with the first task error or nil.
type Pool interface {
	Submit(ctx context.Context, tasks []Task, done func(error))
}

// GroupPool runs tasks on goroutines managed by an errgroup. The first
// failing task cancels the context seen by the others.
type GroupPool struct {
	// Limit caps the number of concurrently running tasks; <= 0 means
	// no limit.
	Limit int
}

// Submit implements Pool.
func (p GroupPool) Submit(ctx context.Context, tasks []Task, done func(error)) {
	g, gctx := errgroup.WithContext(ctx)
	if p.Limit > 0 {
		g.SetLimit(p.Limit)
	}
	go func() {
		// g.Go blocks while the limit is reached, so feed from here.
		for _, t := range tasks {
			g.Go(func() error { return t.Run(gctx) })
		}
		done(g.Wait())
	}()
}
