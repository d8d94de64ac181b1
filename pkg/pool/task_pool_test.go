package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"metadb-builder/test/mocks"
)

// 测试正常提交和执行任务
func TestTaskPool_NormalExecution(t *testing.T) {
	pool := NewTaskPool(2, mocks.NewMockLogger())
	defer pool.Close()

	var counter int32
	taskCount := 5

	for i := 0; i < taskCount; i++ {
		err := pool.Submit(context.Background(), func(ctx context.Context, taskID uint64) {
			atomic.AddInt32(&counter, 1)
		})
		if err != nil {
			t.Fatalf("Failed to submit task: %v", err)
		}
	}

	pool.Wait()

	if atomic.LoadInt32(&counter) != int32(taskCount) {
		t.Errorf("Incorrect number of tasks executed, expected %d, got %d", taskCount, counter)
	}
}

// 测试任务在等待执行时被取消
func TestTaskPool_CancelBeforeExecution(t *testing.T) {
	pool := NewTaskPool(1, mocks.NewMockLogger()) // 只启动一个工作者，确保任务会排队
	defer pool.Close()

	// 第一个任务会占用工作者
	err := pool.Submit(context.Background(), func(ctx context.Context, taskID uint64) {
		time.Sleep(200 * time.Millisecond)
	})
	if err != nil {
		t.Fatalf("Failed to submit task: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // 立即取消

	// 这个任务会进入队列，然后被取消
	err = pool.Submit(ctx, func(ctx context.Context, taskID uint64) {
		t.Error("Cancelled task was executed")
	})
	if err != nil {
		t.Fatalf("Failed to submit task: %v", err)
	}

	pool.Wait()
}

// 测试关闭后拒绝新任务
func TestTaskPool_SubmitAfterClose(t *testing.T) {
	pool := NewTaskPool(2, mocks.NewMockLogger())
	pool.Close()

	err := pool.Submit(context.Background(), func(ctx context.Context, taskID uint64) {})
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed, got %v", err)
	}
}

// 测试Wait作为批次间的同步屏障
func TestTaskPool_WaitBarrier(t *testing.T) {
	pool := NewTaskPool(4, mocks.NewMockLogger())
	defer pool.Close()

	var firstBatch int32
	for i := 0; i < 8; i++ {
		if err := pool.Submit(context.Background(), func(ctx context.Context, taskID uint64) {
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&firstBatch, 1)
		}); err != nil {
			t.Fatalf("Failed to submit task: %v", err)
		}
	}
	pool.Wait()

	if got := atomic.LoadInt32(&firstBatch); got != 8 {
		t.Fatalf("Expected 8 tasks completed before barrier, got %d", got)
	}

	// 屏障后可以继续提交
	var secondBatch int32
	if err := pool.Submit(context.Background(), func(ctx context.Context, taskID uint64) {
		atomic.AddInt32(&secondBatch, 1)
	}); err != nil {
		t.Fatalf("Failed to submit task: %v", err)
	}
	pool.Wait()

	if atomic.LoadInt32(&secondBatch) != 1 {
		t.Error("Task submitted after barrier did not run")
	}
}
