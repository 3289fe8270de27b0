package ssl

import (
	"context"
	"sync"
)

// Future is the awaitable result of a task started with Go.  The task
// runs on one goroutine; Cancel stops it and waits until it has
// returned, so nothing the task owned is touched afterwards.
type Future[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once

	val T
	err error
}

// Go starts fn and returns its future.  fn must honour ctx.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	ctx, cancel := context.WithCancel(ctx)
	f := &Future[T]{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(f.done)
		defer cancel()
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Done is closed once the task has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await waits for the result.  If ctx ends first the task is cancelled
// and Await returns after it has stopped, with the task's own error.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		f.Cancel()
	}
	return f.val, f.err
}

// Cancel abandons the task and blocks until it has released its
// resources.  Calling Cancel after completion is a no-op.
func (f *Future[T]) Cancel() {
	f.once.Do(f.cancel)
	<-f.done
}
