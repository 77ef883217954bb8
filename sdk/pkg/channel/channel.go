package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultWaitSlice 单次入队/出队的最长等待时间
const DefaultWaitSlice = 10 * time.Second

// ErrInterrupted 通道已被中断，阻塞中的 Put/Get 立即返回
var ErrInterrupted = errors.New("channel interrupted")

// Channel 读取端与调度循环之间的有界阻塞通道。
//
// Put 以 WaitSlice 为粒度反复尝试入队直到成功，期间可被 Interrupt 或 ctx 取消打断；
// Offer 只做一次有界等待的尝试；Get 阻塞直到取到元素；Poll 最多等待一个 WaitSlice。
type Channel[T any] struct {
	name      string
	items     chan T
	waitSlice time.Duration
	logger    *zap.Logger

	interruptOnce sync.Once
	interruptCh   chan struct{}
}

// Option 通道可选项
type Option func(*options)

type options struct {
	name      string
	waitSlice time.Duration
	logger    *zap.Logger
}

// WithWaitSlice 设置单次等待时长
func WithWaitSlice(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.waitSlice = d
		}
	}
}

// WithName 设置通道名称（用作指标标签）
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New 创建容量为 capacity 的有界通道
func New[T any](capacity int, opts ...Option) *Channel[T] {
	if capacity < 1 {
		capacity = 1
	}
	o := options{name: "records", waitSlice: DefaultWaitSlice, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Channel[T]{
		name:        o.name,
		items:       make(chan T, capacity),
		waitSlice:   o.waitSlice,
		logger:      o.logger,
		interruptCh: make(chan struct{}),
	}
}

// Put 阻塞入队，直到成功、被中断（ErrInterrupted）或 ctx 结束
func (c *Channel[T]) Put(ctx context.Context, item T) error {
	for attempt := 1; ; attempt++ {
		ok, err := c.offer(ctx, item)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		fullWaits.WithLabelValues(c.name).Inc()
		c.logger.Debug("channel full, retrying put",
			zap.String("channel", c.name),
			zap.Int("attempt", attempt),
			zap.Duration("waitSlice", c.waitSlice))
	}
}

// Offer 尝试入队一次，最多等待一个 WaitSlice
func (c *Channel[T]) Offer(item T) bool {
	ok, _ := c.offer(context.Background(), item)
	return ok
}

func (c *Channel[T]) offer(ctx context.Context, item T) (bool, error) {
	if c.Interrupted() {
		return false, ErrInterrupted
	}

	// Try fast-path enqueue.
	select {
	case c.items <- item:
		c.observeDepth()
		return true, nil
	default:
	}

	timer := time.NewTimer(c.waitSlice)
	defer timer.Stop()

	select {
	case c.items <- item:
		c.observeDepth()
		return true, nil
	case <-c.interruptCh:
		return false, ErrInterrupted
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return false, nil
	}
}

// Get 阻塞出队，直到取到元素、被中断或 ctx 结束
func (c *Channel[T]) Get(ctx context.Context) (T, error) {
	var zero T
	select {
	case item := <-c.items:
		c.observeDepth()
		return item, nil
	case <-c.interruptCh:
		return zero, ErrInterrupted
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Poll 最多等待一个 WaitSlice；返回 false 表示通道为空
func (c *Channel[T]) Poll() (T, bool) {
	var zero T
	select {
	case item := <-c.items:
		c.observeDepth()
		return item, true
	default:
	}

	timer := time.NewTimer(c.waitSlice)
	defer timer.Stop()

	select {
	case item := <-c.items:
		c.observeDepth()
		return item, true
	case <-c.interruptCh:
		return zero, false
	case <-timer.C:
		return zero, false
	}
}

// Interrupt 中断通道，幂等且不可恢复
func (c *Channel[T]) Interrupt() {
	c.interruptOnce.Do(func() {
		close(c.interruptCh)
		c.logger.Warn("channel interrupted", zap.String("channel", c.name))
	})
}

// Interrupted 通道是否已被中断
func (c *Channel[T]) Interrupted() bool {
	select {
	case <-c.interruptCh:
		return true
	default:
		return false
	}
}

// Len 当前元素个数
func (c *Channel[T]) Len() int {
	return len(c.items)
}

// Cap 通道容量
func (c *Channel[T]) Cap() int {
	return cap(c.items)
}

func (c *Channel[T]) observeDepth() {
	depth.WithLabelValues(c.name).Set(float64(len(c.items)))
}
