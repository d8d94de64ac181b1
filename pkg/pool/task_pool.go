package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"metadb-builder/pkg/logger"
)

// ErrPoolClosed 定义包级错误变量，用于错误比较
var ErrPoolClosed = errors.New("task pool is closed")

// Task 任务类型，接收上下文参数和任务ID
type Task func(ctx context.Context, taskID uint64)

// TaskPool 有界任务池，文件级解析任务在此并发执行
type TaskPool struct {
	logger         logger.Logger
	maxConcurrency int            // 最大并发数
	tasks          chan Task      // 任务通道
	wg             sync.WaitGroup // 等待组
	mu             sync.Mutex     // 互斥锁
	closed         bool           // 关闭状态
	taskID         uint64         // 任务ID计数器，使用原子操作确保并发安全
}

// NewTaskPool 创建任务池
func NewTaskPool(maxConcurrency int, logger logger.Logger) *TaskPool {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	pool := &TaskPool{
		maxConcurrency: maxConcurrency,
		tasks:          make(chan Task, maxConcurrency*2),
		logger:         logger,
	}

	pool.startWorkers()
	return pool
}

// 启动工作者
func (p *TaskPool) startWorkers() {
	for i := 0; i < p.maxConcurrency; i++ {
		go func(workerID int) {
			p.logger.Debug("worker %d started", workerID)
			for task := range p.tasks {
				taskID := atomic.AddUint64(&p.taskID, 1)
				task(context.Background(), taskID)
				p.wg.Done()
			}
			p.logger.Debug("worker %d exited", workerID)
		}(i)
	}
}

// Submit 提交任务，任务执行前检测提交方ctx是否已取消
func (p *TaskPool) Submit(ctx context.Context, task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	wrappedTask := func(poolCtx context.Context, taskID uint64) {
		select {
		case <-ctx.Done():
			p.logger.Info("task %d cancelled before execution: %v", taskID, ctx.Err())
			return
		default:
			task(ctx, taskID)
		}
	}

	p.wg.Add(1)
	p.tasks <- wrappedTask
	return nil
}

// Wait 等待所有任务完成，作为跨文件解析阶段之间的同步屏障
func (p *TaskPool) Wait() {
	p.wg.Wait()
}

// Close 关闭任务池
func (p *TaskPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.tasks)
		p.closed = true
		p.logger.Info("task pool closed, total tasks processed: %d", p.taskID)
	}
}
