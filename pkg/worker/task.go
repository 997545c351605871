package worker

import "context"

// Task is a unit of work run by a pool worker. A task may enqueue follow-up
// tasks on p; Pool.Wait covers those as well.
type Task interface {
	Execute(ctx context.Context, p *Pool, w *Worker) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context, p *Pool, w *Worker) error

// Execute calls f.
func (f TaskFunc) Execute(ctx context.Context, p *Pool, w *Worker) error {
	return f(ctx, p, w)
}
