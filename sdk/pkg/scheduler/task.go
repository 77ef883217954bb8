package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Trigger 到期执行的动作；ctx 在任务被取消或执行器停止时取消
type Trigger func(ctx context.Context) error

const (
	taskScheduled int32 = iota
	taskRunning
	taskDone
	taskCancelled
)

// Task 已提交给执行器的任务句柄：scheduled → running → done，或 scheduled → cancelled
type Task struct {
	trigger Trigger
	fireAt  time.Time
	state   atomic.Int32
	noop    bool

	// 由 Dispatcher.mu 保护
	heapIdx    int
	dispatcher *Dispatcher

	mu              sync.Mutex
	cancelRun       context.CancelFunc
	cancelRequested bool

	done chan struct{}
}

var noopTask = func() *Task {
	t := &Task{noop: true, heapIdx: -1, done: make(chan struct{}), cancelRequested: true}
	t.state.Store(taskCancelled)
	close(t.done)
	return t
}()

// NoopTask 空任务：既已完成也已取消，用于被跳过的事件
func NoopTask() *Task {
	return noopTask
}

func newTask(trigger Trigger, fireAt time.Time, d *Dispatcher) *Task {
	return &Task{
		trigger:    trigger,
		fireAt:     fireAt,
		heapIdx:    -1,
		dispatcher: d,
		done:       make(chan struct{}),
	}
}

// Cancel 取消任务。未触发的任务立即从执行器队列移除；执行中的任务取消其 ctx，
// 任务在 trigger 返回后才算完成。返回是否发生了取消。
func (t *Task) Cancel() bool {
	if t.noop {
		return false
	}
	if t.state.CompareAndSwap(taskScheduled, taskCancelled) {
		t.mu.Lock()
		t.cancelRequested = true
		t.mu.Unlock()
		if t.dispatcher != nil {
			t.dispatcher.remove(t)
		}
		close(t.done)
		return true
	}
	if t.state.Load() == taskRunning {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.cancelRequested {
			return false
		}
		t.cancelRequested = true
		if t.cancelRun != nil {
			t.cancelRun()
		}
		return true
	}
	return false
}

// Done 是否已结束（执行完成、执行前被取消或为空任务）
func (t *Task) Done() bool {
	s := t.state.Load()
	return s == taskDone || s == taskCancelled
}

// Cancelled 是否被请求取消
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelRequested
}

// Wait 等待任务结束
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FireTime 计划触发时间
func (t *Task) FireTime() time.Time {
	return t.fireAt
}

// IsNoop 是否为空任务
func (t *Task) IsNoop() bool {
	return t.noop
}

// start 工作协程调用：登记取消函数并进入 running；任务已被取消时返回 false
func (t *Task) start(cancel context.CancelFunc) bool {
	t.mu.Lock()
	t.cancelRun = cancel
	t.mu.Unlock()
	return t.state.CompareAndSwap(taskScheduled, taskRunning)
}

func (t *Task) finish() {
	t.state.Store(taskDone)
	close(t.done)
}

// taskHeap 按触发时间排序的最小堆，heapIdx 支持 O(log N) 删除
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool { return h[i].fireAt.Before(h[j].fireAt) }

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.heapIdx = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIdx = -1
	*h = old[:n-1]
	return t
}
