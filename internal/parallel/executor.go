package parallel

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	dserrors "github.com/paveg/datascope/internal/errors"
	"go.uber.org/zap"
)

// Executor runs blocking viewer operations on a bounded ants pool so that
// callers never parse or decode on their own goroutine.
type Executor struct {
	pool   *ants.Pool
	logger *zap.Logger
}

// NewExecutor creates an executor with size workers (0 = runtime.NumCPU()).
func NewExecutor(size int, logger *zap.Logger) (*Executor, error) {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	return &Executor{pool: pool, logger: logger}, nil
}

// Cap returns the pool capacity.
func (e *Executor) Cap() int { return e.pool.Cap() }

// Running returns the number of busy workers.
func (e *Executor) Running() int { return e.pool.Running() }

// Close waits up to timeout for running tasks and releases the pool.
func (e *Executor) Close(timeout time.Duration) error {
	return e.pool.ReleaseTimeout(timeout)
}

type outcome[T any] struct {
	val T
	err error
}

// Run submits fn and waits for its result. Cancelling ctx abandons the wait
// only; fn keeps running with a context detached from ctx's cancellation so
// any cache fill it performs still completes. A panic in fn is reported as a
// task error.
func Run[T any](ctx context.Context, e *Executor, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	done := make(chan outcome[T], 1)
	workCtx := context.WithoutCancel(ctx)

	err := e.pool.Submit(func() {
		var res outcome[T]
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("task panicked", zap.String("op", op), zap.Any("panic", r))
				res = outcome[T]{err: dserrors.NewTaskError(op, fmt.Errorf("panic: %v", r))}
			}
			done <- res
		}()
		res.val, res.err = fn(workCtx)
	})
	if err != nil {
		return zero, dserrors.NewTaskError(op, err)
	}

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		e.logger.Debug("caller stopped waiting", zap.String("op", op), zap.Error(ctx.Err()))
		return zero, ctx.Err()
	}
}
