package scheduler

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry 按分区登记已提交的任务句柄。
// 分区丢失时批量取消（CancelPartitions），周期清理已结束的句柄（Sweep）；
// 同一个句柄只会被其中一种方式移除。
type Registry struct {
	mu     sync.Mutex
	tasks  map[int32][]*Task
	logger *zap.Logger
}

// NewRegistry 创建任务登记表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{tasks: make(map[int32][]*Task), logger: logger}
}

// Register 登记任务到分区
func (r *Registry) Register(partition int32, task *Task) {
	if task == nil {
		return
	}
	r.mu.Lock()
	r.tasks[partition] = append(r.tasks[partition], task)
	n := len(r.tasks[partition])
	r.mu.Unlock()
	registeredTasks.WithLabelValues(partitionLabel(partition)).Set(float64(n))
}

// CancelPartitions 取消并移除这些分区下的全部任务，返回实际发生取消的任务数
func (r *Registry) CancelPartitions(partitions []int32) int {
	var cancelled int
	for _, p := range partitions {
		r.mu.Lock()
		tasks := r.tasks[p]
		delete(r.tasks, p)
		r.mu.Unlock()
		registeredTasks.DeleteLabelValues(partitionLabel(p))

		if len(tasks) == 0 {
			continue
		}
		n := 0
		for _, t := range tasks {
			if t.Cancel() {
				n++
			}
		}
		cancelled += n
		r.logger.Info("cancelled tasks of revoked partition",
			zap.Int32("partition", p),
			zap.Int("tasks", len(tasks)),
			zap.Int("cancelled", n))
	}
	return cancelled
}

// Sweep 移除已结束的任务句柄，返回移除数量；执行中（包括已请求取消但尚未返回）的任务保留到下次
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for p, tasks := range r.tasks {
		kept := tasks[:0]
		for _, t := range tasks {
			if t.Done() {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		for i := len(kept); i < len(tasks); i++ {
			tasks[i] = nil
		}
		if len(kept) == 0 {
			delete(r.tasks, p)
			registeredTasks.DeleteLabelValues(partitionLabel(p))
			continue
		}
		r.tasks[p] = kept
		registeredTasks.WithLabelValues(partitionLabel(p)).Set(float64(len(kept)))
	}
	sweptTasks.Add(float64(removed))
	return removed
}

// Len 登记的任务总数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, tasks := range r.tasks {
		n += len(tasks)
	}
	return n
}

// PartitionLen 分区下登记的任务数
func (r *Registry) PartitionLen(partition int32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks[partition])
}

// Partitions 有登记任务的分区（有序）
func (r *Registry) Partitions() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int32, 0, len(r.tasks))
	for p := range r.tasks {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
