// Package httpclient 把回放请求异步发送到目标服务，并比较新旧响应时间。
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ChenBigdata421/jxt-replay/sdk/config"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/processor"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/scheduler"
)

// RequestIDHeader 每个回放请求携带的唯一标识
const RequestIDHeader = "X-Replay-Request-Id"

// Doer 发送 HTTP 请求
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option 服务选项
type Option func(*Service)

// WithDoer 替换底层 HTTP 客户端
func WithDoer(doer Doer) Option {
	return func(s *Service) {
		s.doer = doer
	}
}

// WithLogger 设置日志，nil 时保留默认的空日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service 回放请求发送服务。Trigger 只负责发起请求，响应在独立协程中处理。
type Service struct {
	doer            Doer
	breaker         *gobreaker.CircuitBreaker
	limiter         *rate.Limiter
	logResponseBody bool
	logger          *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建发送服务
func New(cfg *config.HTTPConfig, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		logResponseBody: cfg.LogResponseBody,
		logger:          zap.NewNop(),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.doer == nil {
		s.doer = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        cfg.MaxIdleConnsPerHost * 4,
				MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	if cfg.MaxRequestsPerSecond > 0 {
		burst := int(cfg.MaxRequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), burst)
	}

	if cfg.Breaker.Enabled {
		threshold := cfg.Breaker.FailureThreshold
		logger := s.logger
		s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "replay-target",
			MaxRequests: 1,
			Timeout:     cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("replay circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}
	return s
}

// CreateTrigger 为事件创建回放动作；动作发起请求后立即返回，不等待响应
func (s *Service) CreateTrigger(pair processor.EventAndRequest) scheduler.Trigger {
	return func(ctx context.Context) error {
		if s.ctx.Err() != nil {
			return fmt.Errorf("http service closed")
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.execute(pair)
		}()
		return nil
	}
}

// Close 取消进行中的请求并等待回调结束
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait 等待进行中的请求完成
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) execute(pair processor.EventAndRequest) {
	if s.limiter != nil {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
	}

	req, err := s.newRequest(pair.Request)
	if err != nil {
		requestsTotal.WithLabelValues(outcomeFailure).Inc()
		s.logger.Warn("failed to build request", zap.Any("event", pair.Event), zap.Error(err))
		return
	}

	start := time.Now()
	resp, err := s.do(req)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			requestsTotal.WithLabelValues(outcomeBreakerOpen).Inc()
			s.logger.Debug("request skipped, circuit breaker open",
				zap.String("requestId", req.Header.Get(RequestIDHeader)))
			return
		}
		requestsTotal.WithLabelValues(outcomeFailure).Inc()
		s.logger.Warn("failed to execute query", zap.Any("event", pair.Event), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	s.onResponse(pair.Event, req, resp, time.Since(start))
}

func (s *Service) do(req *http.Request) (*http.Response, error) {
	if s.breaker == nil {
		return s.doer.Do(req)
	}
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.doer.Do(req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

func (s *Service) newRequest(r *processor.Request) (*http.Request, error) {
	if r == nil {
		return nil, fmt.Errorf("request descriptor is nil")
	}
	req, err := http.NewRequestWithContext(s.ctx, r.Method(), r.URL(), bytes.NewReader(r.Body()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header = r.Header()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set(RequestIDHeader, uuid.New().String())
	return req, nil
}

func (s *Service) onResponse(event processor.Event, req *http.Request, resp *http.Response, elapsed time.Duration) {
	requestsTotal.WithLabelValues(outcomeSuccess).Inc()
	reportResponseTime(kindNew, elapsed)

	fields := []zap.Field{
		zap.String("requestId", req.Header.Get(RequestIDHeader)),
		zap.Int("status", resp.StatusCode),
		zap.Int64("newResponseTimeMs", elapsed.Milliseconds()),
	}

	if old, ok := event.ResponseTime(); ok {
		reportResponseTime(kindOld, old)
		diff := elapsed.Milliseconds() - old.Milliseconds()
		responseTimeDiff.Observe(float64(diff))
		fields = append(fields,
			zap.Int64("oldResponseTimeMs", old.Milliseconds()),
			zap.Int64("responseTimeDiffMs", diff))
	}

	if s.logResponseBody {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			fields = append(fields, zap.String("responseBody", "failed to read"))
		} else {
			fields = append(fields, zap.ByteString("responseBody", body))
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	s.logger.Debug("replayed request completed", fields...)
}
