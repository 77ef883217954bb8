package scheduler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/channel"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/kafka"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/processor"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/shutdown"
)

type ownedSet struct {
	mu sync.Mutex
	m  map[int32]bool
}

func owned(partitions ...int32) *ownedSet {
	s := &ownedSet{m: make(map[int32]bool)}
	for _, p := range partitions {
		s.m[p] = true
	}
	return s
}

func (s *ownedSet) Contains(p int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[p]
}

// fakeDispatcher 记录提交的任务，Pending 由测试控制
type fakeDispatcher struct {
	mu        sync.Mutex
	pending   atomic.Int64
	fireTimes []time.Time
	triggers  []Trigger
	scheduled chan struct{}
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{scheduled: make(chan struct{}, 100)}
}

func (f *fakeDispatcher) ScheduleAt(trigger Trigger, fireAt time.Time) (*Task, error) {
	f.mu.Lock()
	f.fireTimes = append(f.fireTimes, fireAt)
	f.triggers = append(f.triggers, trigger)
	f.mu.Unlock()
	f.scheduled <- struct{}{}
	return newTask(trigger, fireAt, nil), nil
}

func (f *fakeDispatcher) Pending() int { return int(f.pending.Load()) }

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fireTimes)
}

// timestampProcessor 把 payload 解析为 RFC3339 时间戳
var timestampProcessor = processor.ProcessorFunc(func(payload []byte) ([]processor.EventAndRequest, error) {
	if string(payload) == "broken" {
		return nil, errors.New("unparseable")
	}
	if string(payload) == "panic" {
		panic("processor bug")
	}
	at, err := time.Parse(time.RFC3339Nano, string(payload))
	if err != nil {
		return nil, nil
	}
	req := processor.NewRequest(http.MethodPost, "http://target", nil, payload)
	return []processor.EventAndRequest{{Event: testEvent{at: at}, Request: req}}, nil
})

var nopTriggers = TriggerFactoryFunc(func(processor.EventAndRequest) Trigger {
	return func(context.Context) error { return nil }
})

type serviceFixture struct {
	svc      *Service
	ch       *channel.Channel[*kafka.RawMessage]
	registry *Registry
	signal   *shutdown.Signal
	cancel   context.CancelFunc
	done     chan error
}

func startService(t *testing.T, cfg ServiceConfig, deps ServiceDeps) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		ch:       channel.New[*kafka.RawMessage](16, channel.WithWaitSlice(10*time.Millisecond)),
		registry: NewRegistry(nil),
		signal:   shutdown.New(nil),
		done:     make(chan error, 1),
	}
	if deps.Source == nil {
		deps.Source = f.ch
	}
	if deps.Processor == nil {
		deps.Processor = timestampProcessor
	}
	if deps.Triggers == nil {
		deps.Triggers = nopTriggers
	}
	deps.Registry = f.registry
	deps.Shutdown = f.signal

	svc, err := NewService(cfg, deps)
	require.NoError(t, err)
	f.svc = svc

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-f.done
	})
	return f
}

func (f *serviceFixture) put(t *testing.T, partition int32, payload string) {
	t.Helper()
	require.NoError(t, f.ch.Put(context.Background(), &kafka.RawMessage{Partition: partition, Value: []byte(payload)}))
}

func waitScheduled(t *testing.T, f *fakeDispatcher, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.scheduled:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d tasks scheduled", i, n)
		}
	}
}

func newTestCalculator(t *testing.T, speedup int64, now time.Time) *Calculator {
	t.Helper()
	calc, err := NewCalculator(speedup, testCutoff, testStart, WithClock(fixedClock(now)))
	require.NoError(t, err)
	return calc
}

// TestService_AdmissionControl 测试执行器积压超过上限时暂停取消息
func TestService_AdmissionControl(t *testing.T) {
	disp := newFakeDispatcher()
	disp.pending.Store(11)

	f := startService(t, ServiceConfig{MaxScheduledTasks: 10, AdmissionPollInterval: 10 * time.Millisecond}, ServiceDeps{
		Ownership:  owned(0),
		Calculator: newTestCalculator(t, 1, testStart),
		Dispatcher: disp,
	})
	f.put(t, 0, "2019-10-28T00:00:01Z")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, disp.count())
	assert.Equal(t, 1, f.ch.Len(), "record must stay buffered while admission is closed")

	// 等于上限时允许进入
	disp.pending.Store(10)
	waitScheduled(t, disp, 1)
	assert.Equal(t, 0, f.ch.Len())
}

// TestService_FiltersAndSentinel 测试分区过滤、哨兵跳过与处理器错误
func TestService_FiltersAndSentinel(t *testing.T) {
	disp := newFakeDispatcher()
	f := startService(t, ServiceConfig{MaxScheduledTasks: 100}, ServiceDeps{
		Ownership:  owned(0),
		Calculator: newTestCalculator(t, 1, testStart),
		Dispatcher: disp,
	})

	notOwned := testutil.ToFloat64(recordsTotal.WithLabelValues(statusNotOnWhitelist))
	negative := testutil.ToFloat64(recordsTotal.WithLabelValues(statusNegativeDelay))
	procErr := testutil.ToFloat64(recordsTotal.WithLabelValues(statusProcessorError))

	f.put(t, 3, "2019-10-28T00:00:01Z")   // 不属于本进程
	f.put(t, 0, "2019-10-27T23:59:59Z")   // 早于截止时间
	f.put(t, 0, "broken")                 // 处理器错误
	f.put(t, 0, "2019-10-28T00:00:02.5Z") // 正常调度

	waitScheduled(t, disp, 1)
	assert.Eventually(t, func() bool { return f.ch.Len() == 0 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, disp.count())
	// 提交的是计算出的绝对触发时间，不受调度循环耗时影响
	assert.Equal(t, testStart.Add(2500*time.Millisecond), disp.fireTimes[0])
	assert.Equal(t, float64(1), testutil.ToFloat64(recordsTotal.WithLabelValues(statusNotOnWhitelist))-notOwned)
	assert.Equal(t, float64(1), testutil.ToFloat64(recordsTotal.WithLabelValues(statusNegativeDelay))-negative)
	assert.Equal(t, float64(1), testutil.ToFloat64(recordsTotal.WithLabelValues(statusProcessorError))-procErr)

	// 哨兵对应的空任务与正常任务都登记在分区 0 下
	assert.Eventually(t, func() bool { return f.registry.PartitionLen(0) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.registry.PartitionLen(3))
}

// TestService_NotifyRevoked 测试分区丢失后只取消该分区的任务
func TestService_NotifyRevoked(t *testing.T) {
	d := newStartedDispatcher(t, 2)
	f := startService(t, ServiceConfig{MaxScheduledTasks: 100}, ServiceDeps{
		Ownership:  owned(0, 1),
		Calculator: newTestCalculator(t, 1, testStart.Add(-time.Hour)),
		Dispatcher: d,
	})

	f.put(t, 0, "2019-10-28T00:00:01Z")
	f.put(t, 0, "2019-10-28T00:00:02Z")
	f.put(t, 1, "2019-10-28T00:00:03Z")
	assert.Eventually(t, func() bool { return d.Pending() == 3 }, time.Second, 5*time.Millisecond)

	f.svc.NotifyRevoked([]int32{0})
	assert.Eventually(t, func() bool { return d.Pending() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.registry.PartitionLen(0))
	assert.Equal(t, 1, f.registry.PartitionLen(1))
}

// TestService_PanicIsFatal 测试循环内 panic：中断通道、触发关闭并返回错误
func TestService_PanicIsFatal(t *testing.T) {
	disp := newFakeDispatcher()
	f := startService(t, ServiceConfig{MaxScheduledTasks: 100}, ServiceDeps{
		Ownership:  owned(0),
		Calculator: newTestCalculator(t, 1, testStart),
		Dispatcher: disp,
	})
	f.put(t, 0, "panic")

	select {
	case err := <-f.done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "processor bug")
		f.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after panic")
	}
	assert.True(t, f.ch.Interrupted())
	assert.True(t, f.signal.IsShutdown())
	assert.ErrorIs(t, f.ch.Put(context.Background(), &kafka.RawMessage{}), channel.ErrInterrupted)
}

// TestService_EndToEnd 测试 10 倍速回放：间隔 10 分钟的三条记录按顺序触发，间隔 60 秒
func TestService_EndToEnd(t *testing.T) {
	d := newStartedDispatcher(t, 1)

	var mu sync.Mutex
	var fired []time.Time
	triggers := TriggerFactoryFunc(func(pair processor.EventAndRequest) Trigger {
		return func(context.Context) error {
			mu.Lock()
			fired = append(fired, pair.Event.Timestamp())
			mu.Unlock()
			return nil
		}
	})

	// 时钟位于第三条记录的触发时间之后，三条记录全部立即到期
	calc := newTestCalculator(t, 10, testStart.Add(121*time.Second))
	var delays []ScheduleDelay
	var originals []time.Time
	for i := 0; i < 3; i++ {
		original := testCutoff.Add(time.Duration(i) * 10 * time.Minute)
		originals = append(originals, original)
		delays = append(delays, calc.Compute(original))
	}
	assert.Equal(t, 60*time.Second, delays[1].FireTime().Sub(delays[0].FireTime()))
	assert.Equal(t, 60*time.Second, delays[2].FireTime().Sub(delays[1].FireTime()))
	assert.Equal(t, testStart, delays[0].FireTime())

	f := startService(t, ServiceConfig{MaxScheduledTasks: 100}, ServiceDeps{
		Ownership:  owned(0),
		Calculator: calc,
		Dispatcher: d,
		Triggers:   triggers,
	})
	for _, original := range originals {
		f.put(t, 0, original.Format(time.RFC3339Nano))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, originals, fired)
}

// TestService_EndToEndScaled 测试 6000 倍速回放的真实时钟节奏：间隔 10 分钟的三条记录
// 依次在计划时刻之后触发，相邻触发间隔约 100 毫秒
func TestService_EndToEndScaled(t *testing.T) {
	d := newStartedDispatcher(t, 1)

	type firing struct {
		original time.Time
		at       time.Time
	}
	var mu sync.Mutex
	var fired []firing
	triggers := TriggerFactoryFunc(func(pair processor.EventAndRequest) Trigger {
		return func(context.Context) error {
			now := time.Now()
			mu.Lock()
			fired = append(fired, firing{original: pair.Event.Timestamp(), at: now})
			mu.Unlock()
			return nil
		}
	})

	const spacing = 100 * time.Millisecond
	start := time.Now().Add(200 * time.Millisecond)
	calc, err := NewCalculator(6000, testCutoff, start)
	require.NoError(t, err)

	var originals []time.Time
	var planned []time.Time
	for i := 0; i < 3; i++ {
		original := testCutoff.Add(time.Duration(i) * 10 * time.Minute)
		originals = append(originals, original)
		planned = append(planned, start.Add(time.Duration(i)*spacing))
	}

	f := startService(t, ServiceConfig{MaxScheduledTasks: 100}, ServiceDeps{
		Ownership:  owned(0),
		Calculator: calc,
		Dispatcher: d,
		Triggers:   triggers,
	})
	for _, original := range originals {
		f.put(t, 0, original.Format(time.RFC3339Nano))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 3
	}, 3*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fired, 3)
	for i, fr := range fired {
		assert.True(t, fr.original.Equal(originals[i]), "fired out of order at %d", i)
		assert.False(t, fr.at.Before(planned[i]), "fired %s before planned instant", planned[i].Sub(fr.at))
		assert.Less(t, fr.at.Sub(planned[i]), 80*time.Millisecond)
	}
	for i := 1; i < len(fired); i++ {
		gap := fired[i].at.Sub(fired[i-1].at)
		assert.Greater(t, gap, spacing/2)
		assert.Less(t, gap, spacing*2)
	}
}

// TestNewService_Validation 测试依赖校验
func TestNewService_Validation(t *testing.T) {
	_, err := NewService(ServiceConfig{MaxScheduledTasks: 1}, ServiceDeps{})
	assert.Error(t, err)
}
