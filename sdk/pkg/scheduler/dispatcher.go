package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultPoolSize 默认工作协程数
const DefaultPoolSize = 16

// ErrDispatcherStopped 执行器已停止，不再接受任务
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Dispatcher 定时执行器：未到期任务保存在按触发时间排序的最小堆中，
// 单个定时协程在堆顶到期时把任务交给固定数量的工作协程执行。
type Dispatcher struct {
	poolSize int
	logger   *zap.Logger

	mu      sync.Mutex
	queue   taskHeap
	stopped bool

	wake chan struct{}
	work chan *Task

	active    atomic.Int64
	completed atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// NewDispatcher 创建定时执行器
func NewDispatcher(poolSize int, logger *zap.Logger) *Dispatcher {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		poolSize:  poolSize,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		work:      make(chan *Task),
		stopCh:    make(chan struct{}),
		runCtx:    ctx,
		runCancel: cancel,
	}
}

// Start 启动定时协程和工作协程
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.timerLoop()
		for i := 0; i < d.poolSize; i++ {
			d.wg.Add(1)
			go d.worker()
		}
		d.logger.Info("dispatcher started", zap.Int("poolSize", d.poolSize))
	})
}

// Stop 停止执行器：取消执行中任务的 ctx 并等待工作协程退出，未到期任务被丢弃
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		dropped := len(d.queue)
		d.mu.Unlock()

		close(d.stopCh)
		d.runCancel()
		d.wg.Wait()
		d.logger.Info("dispatcher stopped",
			zap.Int("droppedPending", dropped),
			zap.Int64("completed", d.completed.Load()))
	})
}

// Schedule 在 delay 之后执行 trigger；delay <= 0 立即执行
func (d *Dispatcher) Schedule(trigger Trigger, delay time.Duration) (*Task, error) {
	return d.ScheduleAt(trigger, time.Now().Add(delay))
}

// ScheduleAt 在 fireAt 时刻执行 trigger；fireAt 已过去时立即执行
func (d *Dispatcher) ScheduleAt(trigger Trigger, fireAt time.Time) (*Task, error) {
	if trigger == nil {
		return nil, fmt.Errorf("schedule: nil trigger")
	}
	t := newTask(trigger, fireAt, d)

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil, ErrDispatcherStopped
	}
	heap.Push(&d.queue, t)
	isHead := t.heapIdx == 0
	pending := len(d.queue)
	d.mu.Unlock()

	pendingTasks.Set(float64(pending))
	if isHead {
		d.notify()
	}
	return t, nil
}

// Pending 尚未到期（或到期未被工作协程领取）的任务数
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Active 正在执行的任务数
func (d *Dispatcher) Active() int {
	return int(d.active.Load())
}

// Completed 已执行完成的任务数
func (d *Dispatcher) Completed() int64 {
	return d.completed.Load()
}

func (d *Dispatcher) remove(t *Task) {
	d.mu.Lock()
	if t.heapIdx >= 0 && t.heapIdx < len(d.queue) && d.queue[t.heapIdx] == t {
		heap.Remove(&d.queue, t.heapIdx)
	}
	pending := len(d.queue)
	d.mu.Unlock()
	pendingTasks.Set(float64(pending))
}

func (d *Dispatcher) notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) timerLoop() {
	defer d.wg.Done()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			select {
			case <-d.wake:
				continue
			case <-d.stopCh:
				return
			}
		}

		head := d.queue[0]
		wait := time.Until(head.fireAt)
		if wait <= 0 {
			// 堆顶到期，出堆后交给工作协程；等待领取期间仍计入 Pending
			select {
			case d.work <- head:
				heap.Pop(&d.queue)
				pending := len(d.queue)
				d.mu.Unlock()
				pendingTasks.Set(float64(pending))
				continue
			default:
			}
			d.mu.Unlock()
			select {
			case d.work <- head:
				d.mu.Lock()
				if head.heapIdx >= 0 && head.heapIdx < len(d.queue) && d.queue[head.heapIdx] == head {
					heap.Remove(&d.queue, head.heapIdx)
				}
				pending := len(d.queue)
				d.mu.Unlock()
				pendingTasks.Set(float64(pending))
			case <-d.wake:
			case <-d.stopCh:
				return
			}
			continue
		}
		d.mu.Unlock()

		timer.Reset(wait)
		select {
		case <-timer.C:
		case <-d.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-d.stopCh:
			return
		}
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case t := <-d.work:
			d.run(t)
		case <-d.stopCh:
			return
		}
	}
}

func (d *Dispatcher) run(t *Task) {
	ctx, cancel := context.WithCancel(d.runCtx)
	defer cancel()
	if !t.start(cancel) {
		// 出堆后、执行前被取消
		return
	}

	activeTasks.Set(float64(d.active.Add(1)))
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("trigger panicked", zap.Any("panic", r))
		}
		activeTasks.Set(float64(d.active.Add(-1)))
		d.completed.Add(1)
		completedTasks.Inc()
		t.finish()
	}()

	if err := t.trigger(ctx); err != nil {
		d.logger.Debug("trigger returned error", zap.Error(err))
	}
}
