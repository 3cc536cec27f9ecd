// Package parallel provides the execution infrastructure for viewer operations.
//
// Executor hands whole operations (open, page load, thumbnail, convert) to a
// bounded ants pool. WorkerPool fans the per-column work of a single batch out
// across goroutines and gathers results back in column order.
package parallel

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// WorkerPool bounds the fan-out of order-preserving batch work
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &WorkerPool{numWorkers: numWorkers}
}

// Workers returns the configured fan-out.
func (wp *WorkerPool) Workers() int { return wp.numWorkers }

// ProcessIndexed executes work items in parallel while preserving order.
// The first error (or recovered panic) cancels items not yet started and is
// returned; results are discarded in that case.
func ProcessIndexed[T, R any](
	ctx context.Context,
	wp *WorkerPool,
	items []T,
	worker func(int, T) (R, error),
) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}

	numWorkers := min(wp.numWorkers, len(items))
	if numWorkers == 1 {
		return processSequential(ctx, items, worker)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	itemCh := make(chan indexedItem[T], len(items))
	for i, item := range items {
		itemCh <- indexedItem[T]{index: i, value: item}
	}
	close(itemCh)

	results := make([]R, len(items))
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

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemCh {
				if ctx.Err() != nil {
					return
				}
				result, err := callWorker(worker, item)
				if err != nil {
					fail(err)
					return
				}
				// Each index is written by exactly one goroutine
				results[item.index] = result
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func processSequential[T, R any](ctx context.Context, items []T, worker func(int, T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := callWorker(worker, indexedItem[T]{index: i, value: item})
		if err != nil {
			return nil, err
		}
		results[i] = result
	}
	return results, nil
}

func callWorker[T, R any](worker func(int, T) (R, error), item indexedItem[T]) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic on item %d: %v", item.index, r)
		}
	}()
	return worker(item.index, item.value)
}

// indexedItem holds an item with its index
type indexedItem[T any] struct {
	index int
	value T
}
