package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Signal 进程级关闭标记：一经触发不可撤销，所有长期运行的协程以 Done() 作为退出条件
type Signal struct {
	once   sync.Once
	done   chan struct{}
	mu     sync.RWMutex
	reason error
	logger *zap.Logger
}

// New 创建关闭标记
func New(logger *zap.Logger) *Signal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Signal{done: make(chan struct{}), logger: logger}
}

// Trigger 触发关闭，reason 为 nil 表示正常退出；仅第一次调用生效
func (s *Signal) Trigger(reason error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		if reason != nil {
			s.logger.Error("shutdown triggered", zap.Error(reason))
		} else {
			s.logger.Info("shutdown triggered")
		}
		close(s.done)
	})
}

// Done 关闭时被关闭的通道
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// IsShutdown 是否已触发关闭
func (s *Signal) IsShutdown() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Err 触发关闭的原因
func (s *Signal) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// Context 返回随关闭标记取消的 context
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// NotifyOnSignals 收到 SIGINT/SIGTERM 时触发关闭，返回停止监听的函数
func (s *Signal) NotifyOnSignals() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	quit := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info("received os signal", zap.String("signal", sig.String()))
			s.Trigger(nil)
		case <-quit:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(quit)
		})
	}
}
