package runtime

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/channel"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/kafka"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/scheduler"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/shutdown"
)

type Runtime interface {
	// Run 运行全部组件直到 ctx 结束或发生致命错误
	Run(ctx context.Context) error

	// SetEngine 管理端点使用的路由
	SetEngine(engine http.Handler)
	GetEngine() http.Handler

	GetRouter() []Router

	// SetLogger 使用zap
	SetLogger(logger *zap.Logger)
	GetLogger() *zap.Logger

	// 回放组件
	GetChannel() *channel.Channel[*kafka.RawMessage]
	GetOwnership() *kafka.Ownership
	GetDispatcher() *scheduler.Dispatcher
	GetRegistry() *scheduler.Registry
	GetShutdown() *shutdown.Signal
}

// Reader 消息读取端
type Reader interface {
	Run(ctx context.Context) error
	Close() error
}

// ReaderFactory 在其余组件就绪后创建读取端
type ReaderFactory func(sink kafka.Sink, coordinator *kafka.Coordinator, signal *shutdown.Signal, logger *zap.Logger) (Reader, error)
