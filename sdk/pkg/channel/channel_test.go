package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChannel_PutGet 测试基本的入队出队顺序
func TestChannel_PutGet(t *testing.T) {
	ch := New[int](3, WithName("put-get"))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, ch.Put(ctx, i))
	}
	assert.Equal(t, 3, ch.Len())
	assert.Equal(t, 3, ch.Cap())

	for i := 1; i <= 3; i++ {
		v, err := ch.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, ch.Len())
}

// TestChannel_PutRetriesUntilSpace 测试通道满时 Put 跨多个等待片重试直到成功
func TestChannel_PutRetriesUntilSpace(t *testing.T) {
	ch := New[string](1, WithName("put-retry"), WithWaitSlice(20*time.Millisecond))
	ctx := context.Background()
	require.NoError(t, ch.Put(ctx, "first"))

	before := testutil.ToFloat64(fullWaits.WithLabelValues("put-retry"))

	done := make(chan error, 1)
	go func() { done <- ch.Put(ctx, "second") }()

	// 让 Put 至少经历两个等待片
	time.Sleep(70 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("put returned early: %v", err)
	default:
	}

	v, err := ch.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("put did not complete after space was freed")
	}

	v, err = ch.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", v)
	assert.GreaterOrEqual(t, testutil.ToFloat64(fullWaits.WithLabelValues("put-retry"))-before, float64(2))
}

// TestChannel_InterruptUnblocksPut 测试中断立即解除阻塞中的 Put
func TestChannel_InterruptUnblocksPut(t *testing.T) {
	ch := New[int](1, WithWaitSlice(time.Hour))
	require.NoError(t, ch.Put(context.Background(), 1))

	done := make(chan error, 1)
	go func() { done <- ch.Put(context.Background(), 2) }()

	time.Sleep(20 * time.Millisecond)
	ch.Interrupt()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrInterrupted))
	case <-time.After(time.Second):
		t.Fatal("interrupt did not unblock put")
	}

	assert.True(t, ch.Interrupted())
	assert.ErrorIs(t, ch.Put(context.Background(), 3), ErrInterrupted)

	// 幂等
	assert.NotPanics(t, ch.Interrupt)
}

// TestChannel_PutContextCancel 测试 ctx 取消时 Put 返回 ctx 错误
func TestChannel_PutContextCancel(t *testing.T) {
	ch := New[int](1, WithWaitSlice(time.Hour))
	require.NoError(t, ch.Put(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := ch.Put(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestChannel_Offer 测试单次尝试入队
func TestChannel_Offer(t *testing.T) {
	ch := New[int](1, WithWaitSlice(10*time.Millisecond))
	assert.True(t, ch.Offer(1))
	assert.False(t, ch.Offer(2))
	assert.Equal(t, 1, ch.Len())
}

// TestChannel_PollEmpty 测试空通道 Poll 返回空标记
func TestChannel_PollEmpty(t *testing.T) {
	ch := New[int](1, WithWaitSlice(10*time.Millisecond))
	v, ok := ch.Poll()
	assert.False(t, ok)
	assert.Zero(t, v)

	require.True(t, ch.Offer(7))
	v, ok = ch.Poll()
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}

// TestChannel_GetUnblocksOnCancelAndInterrupt 测试 Get 在 ctx 取消或中断时返回
func TestChannel_GetUnblocksOnCancelAndInterrupt(t *testing.T) {
	ch := New[int](1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ch.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	ch.Interrupt()
	_, err = ch.Get(context.Background())
	assert.ErrorIs(t, err, ErrInterrupted)
}
