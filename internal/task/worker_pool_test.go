package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewWorkerPool(t *testing.T) {
	queue := NewTaskQueue(1, setupTestLogger())

	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 5}, setupTestLogger())
	assert.Equal(t, 5, pool.workerCount)
	assert.Nil(t, pool.errorHandler)

	for _, n := range []int{0, -5} {
		pool = NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: n}, setupTestLogger())
		assert.Equal(t, 1, pool.workerCount)
	}
}

func runPool(t *testing.T, handler func(Task, error)) (*TaskQueue, *WorkerPool) {
	t.Helper()
	queue := NewTaskQueue(10, setupTestLogger())
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 1}, setupTestLogger())
	if handler != nil {
		pool.SetErrorHandler(handler)
	}
	pool.Start()
	t.Cleanup(pool.Stop)
	return queue, pool
}

func TestWorkerPool_ProcessTask(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		queue, _ := runPool(t, nil)
		completed := make(chan struct{})
		task := newMockTask()
		task.execFn = func(ctx context.Context) error {
			close(completed)
			return nil
		}

		assert.NoError(t, queue.Enqueue(task))
		select {
		case <-completed:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for task to complete")
		}
	})

	t.Run("error reaches the handler", func(t *testing.T) {
		errs := make(chan error, 1)
		queue, _ := runPool(t, func(_ Task, err error) { errs <- err })
		expected := errors.New("send failed")
		task := newMockTask()
		task.execFn = func(ctx context.Context) error { return expected }

		assert.NoError(t, queue.Enqueue(task))
		select {
		case err := <-errs:
			assert.Equal(t, expected, err)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for error handler")
		}
	})

	t.Run("panic is converted to an error", func(t *testing.T) {
		errs := make(chan error, 1)
		queue, _ := runPool(t, func(_ Task, err error) { errs <- err })
		task := newMockTask()
		task.execFn = func(ctx context.Context) error { panic("boom") }

		assert.NoError(t, queue.Enqueue(task))
		select {
		case err := <-errs:
			assert.Contains(t, err.Error(), "panic")
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for error handler after panic")
		}
	})
}

func TestWorkerPool_StopCancelsRunningTask(t *testing.T) {
	queue := NewTaskQueue(1, setupTestLogger())
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 1}, setupTestLogger())
	pool.Start()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	task := newMockTask()
	task.execFn = func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}
	assert.NoError(t, queue.Enqueue(task))

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for task to start")
	}

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	for _, ch := range []chan struct{}{cancelled, stopped} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for shutdown")
		}
	}
}

func TestWorkerPool_ExitsWhenQueueCloses(t *testing.T) {
	queue := NewTaskQueue(1, setupTestLogger())
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 3}, setupTestLogger())
	pool.Start()

	queue.Close()

	done := make(chan struct{})
	go func() {
		pool.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not exit after queue close")
	}
	pool.Stop()
}
