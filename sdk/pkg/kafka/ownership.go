package kafka

import (
	"fmt"
	"sort"
	"sync"
)

// Ownership 本进程当前拥有的分区集合（按分区号，不区分主题）。
// 读取端回调与调度循环在不同协程中并发访问。
type Ownership struct {
	mu  sync.RWMutex
	set map[int32]struct{}
}

// NewOwnership 创建空集合
func NewOwnership() *Ownership {
	return &Ownership{set: make(map[int32]struct{})}
}

// Contains 分区是否属于本进程
func (o *Ownership) Contains(partition int32) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.set[partition]
	return ok
}

// Add 加入分区
func (o *Ownership) Add(partitions ...int32) {
	o.mu.Lock()
	for _, p := range partitions {
		o.set[p] = struct{}{}
	}
	o.mu.Unlock()
	o.observe()
}

// Remove 移除分区
func (o *Ownership) Remove(partitions ...int32) {
	o.mu.Lock()
	for _, p := range partitions {
		delete(o.set, p)
	}
	o.mu.Unlock()
	o.observe()
}

// Replace 以新的分配整体替换
func (o *Ownership) Replace(partitions []int32) {
	set := make(map[int32]struct{}, len(partitions))
	for _, p := range partitions {
		set[p] = struct{}{}
	}
	o.mu.Lock()
	o.set = set
	o.mu.Unlock()
	o.observe()
}

// Snapshot 当前分区（有序副本）
func (o *Ownership) Snapshot() []int32 {
	o.mu.RLock()
	out := make([]int32, 0, len(o.set))
	for p := range o.set {
		out = append(out, p)
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len 分区数
func (o *Ownership) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.set)
}

func (o *Ownership) String() string {
	return fmt.Sprint(o.Snapshot())
}

func (o *Ownership) observe() {
	ownedPartitions.Set(float64(o.Len()))
}
