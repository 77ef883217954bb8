package logger

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ContextKey string

const (
	RequestIDHeader            = "X-Request-Id"
	LoggerKey       ContextKey = "_replay-zap-logger-request"
)

var Logger = zap.NewNop() //全局ZapLogger打印

// SetRequestLogger gin 中间件：为管理端点请求生成 request id 并注入带 id 的 logger
func SetRequestLogger(c *gin.Context) {
	requestID := c.GetHeader(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header(RequestIDHeader, requestID)
	requestLogger := Logger.With(zap.String("requestId", requestID))
	ctx := context.WithValue(c.Request.Context(), LoggerKey, requestLogger)
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

// GetRequestLogger 从上下文获得logger，不存在时返回全局 logger
func GetRequestLogger(ctx context.Context) *zap.Logger {
	if requestLogger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return requestLogger
	}
	return Logger
}
