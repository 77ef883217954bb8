package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopTrigger() Trigger {
	return func(context.Context) error { return nil }
}

// TestRegistry_CancelPartitions 测试分区丢失只取消该分区的任务
func TestRegistry_CancelPartitions(t *testing.T) {
	d := newStartedDispatcher(t, 2)
	r := NewRegistry(nil)

	var p0, p1 []*Task
	for i := 0; i < 3; i++ {
		task, err := d.Schedule(nopTrigger(), time.Hour)
		require.NoError(t, err)
		r.Register(0, task)
		p0 = append(p0, task)
	}
	for i := 0; i < 2; i++ {
		task, err := d.Schedule(nopTrigger(), time.Hour)
		require.NoError(t, err)
		r.Register(1, task)
		p1 = append(p1, task)
	}
	r.Register(0, NoopTask())
	assert.Equal(t, 5, d.Pending())
	assert.Equal(t, 6, r.Len())

	cancelled := r.CancelPartitions([]int32{0, 7})
	assert.Equal(t, 3, cancelled)
	assert.Equal(t, 2, d.Pending())
	assert.Equal(t, 0, r.PartitionLen(0))
	assert.Equal(t, 2, r.PartitionLen(1))
	assert.Equal(t, []int32{1}, r.Partitions())

	for _, task := range p0 {
		assert.True(t, task.Cancelled())
	}
	for _, task := range p1 {
		assert.False(t, task.Cancelled())
		assert.False(t, task.Done())
	}
}

// TestRegistry_Sweep 测试清理只移除已结束的句柄，执行中的任务保留到下次
func TestRegistry_Sweep(t *testing.T) {
	d := newStartedDispatcher(t, 2)
	r := NewRegistry(nil)

	finished, err := d.Schedule(nopTrigger(), 0)
	require.NoError(t, err)
	waitTask(t, finished)

	pending, err := d.Schedule(nopTrigger(), time.Hour)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	running, err := d.Schedule(func(context.Context) error {
		close(started)
		<-release
		return nil
	}, 0)
	require.NoError(t, err)
	<-started
	require.True(t, running.Cancel())

	cancelledBeforeStart, err := d.Schedule(nopTrigger(), time.Hour)
	require.NoError(t, err)
	require.True(t, cancelledBeforeStart.Cancel())

	r.Register(0, finished)
	r.Register(0, pending)
	r.Register(0, running)
	r.Register(1, cancelledBeforeStart)
	r.Register(2, NoopTask())

	assert.Equal(t, 3, r.Sweep())
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 2, r.PartitionLen(0))
	assert.Equal(t, []int32{0}, r.Partitions())

	close(release)
	waitTask(t, running)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())

	// 已被清理的句柄不会再被批量取消重复移除
	assert.Equal(t, 1, r.CancelPartitions([]int32{0, 1, 2}))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Sweep())
}
