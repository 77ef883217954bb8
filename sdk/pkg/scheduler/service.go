package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/channel"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/kafka"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/processor"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/shutdown"
)

// DefaultAdmissionPollInterval 超过准入上限时的轮询间隔
const DefaultAdmissionPollInterval = time.Second

// Source 调度循环的消息来源
type Source interface {
	Get(ctx context.Context) (*kafka.RawMessage, error)
	Interrupt()
}

// PartitionFilter 判断分区当前是否归本进程所有
type PartitionFilter interface {
	Contains(partition int32) bool
}

// TaskScheduler 定时执行器
type TaskScheduler interface {
	ScheduleAt(trigger Trigger, fireAt time.Time) (*Task, error)
	Pending() int
}

// ServiceConfig 调度循环配置
type ServiceConfig struct {
	MaxScheduledTasks     int
	AdmissionPollInterval time.Duration
}

// ServiceDeps 调度循环依赖
type ServiceDeps struct {
	Source     Source
	Ownership  PartitionFilter
	Processor  processor.Processor
	Calculator *Calculator
	Dispatcher TaskScheduler
	Registry   *Registry
	Triggers   TriggerFactory
	Shutdown   *shutdown.Signal
	Logger     *zap.Logger
}

// Service 调度循环：准入控制 → 取消息 → 分区过滤 → 处理器 → 计算延迟 → 提交执行器 → 按分区登记
type Service struct {
	cfg ServiceConfig
	ServiceDeps

	revokedMu sync.Mutex
	revoked   [][]int32
	revokedCh chan struct{}
}

// NewService 创建调度循环
func NewService(cfg ServiceConfig, deps ServiceDeps) (*Service, error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("scheduler service: source is required")
	case deps.Ownership == nil:
		return nil, fmt.Errorf("scheduler service: ownership is required")
	case deps.Processor == nil:
		return nil, fmt.Errorf("scheduler service: processor is required")
	case deps.Calculator == nil:
		return nil, fmt.Errorf("scheduler service: calculator is required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("scheduler service: dispatcher is required")
	case deps.Triggers == nil:
		return nil, fmt.Errorf("scheduler service: trigger factory is required")
	}
	if cfg.MaxScheduledTasks <= 0 {
		return nil, fmt.Errorf("scheduler service: max scheduled tasks must be positive")
	}
	if cfg.AdmissionPollInterval <= 0 {
		cfg.AdmissionPollInterval = DefaultAdmissionPollInterval
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry(deps.Logger)
	}
	if deps.Shutdown == nil {
		deps.Shutdown = shutdown.New(deps.Logger)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{
		cfg:         cfg,
		ServiceDeps: deps,
		revokedCh:   make(chan struct{}, 1),
	}, nil
}

// Run 运行调度循环直到 ctx 结束。循环内 panic 视为致命错误：中断通道、触发进程关闭并返回错误。
func (s *Service) Run(ctx context.Context) (err error) {
	var wg sync.WaitGroup
	revCtx, stopRevocations := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.serveRevocations(revCtx)
	}()
	defer func() {
		stopRevocations()
		wg.Wait()
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduling loop panic: %v", r)
			s.Logger.Error("unexpected error in scheduling loop, shutting down", zap.Any("panic", r))
			s.Source.Interrupt()
			s.Shutdown.Trigger(err)
		}
	}()

	s.Logger.Info("scheduling loop started",
		zap.Int("maxScheduledTasks", s.cfg.MaxScheduledTasks),
		zap.Int64("speedupFactor", s.Calculator.Speedup()))

	for {
		if !s.awaitAdmission(ctx) {
			return nil
		}

		msg, err := s.Source.Get(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, channel.ErrInterrupted) {
				s.Shutdown.Trigger(err)
			}
			return fmt.Errorf("scheduling loop: %w", err)
		}

		s.handle(msg)
	}
}

// awaitAdmission 执行器积压超过上限时按固定间隔等待，这是唯一的背压点
func (s *Service) awaitAdmission(ctx context.Context) bool {
	for s.Dispatcher.Pending() > s.cfg.MaxScheduledTasks {
		select {
		case <-time.After(s.cfg.AdmissionPollInterval):
		case <-ctx.Done():
			return false
		case <-s.Shutdown.Done():
			return false
		}
	}
	return ctx.Err() == nil && !s.Shutdown.IsShutdown()
}

func (s *Service) handle(msg *kafka.RawMessage) {
	if !s.Ownership.Contains(msg.Partition) {
		recordsTotal.WithLabelValues(statusNotOnWhitelist).Inc()
		s.Logger.Info("skipping record of partition not owned",
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Stringer("owned", stringerOf(s.Ownership)))
		return
	}

	pairs, err := s.Processor.Process(msg.Value)
	if err != nil {
		recordsTotal.WithLabelValues(statusProcessorError).Inc()
		s.Logger.Warn("record processor failed, dropping record",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return
	}

	for _, pair := range pairs {
		s.Registry.Register(msg.Partition, s.scheduleEvent(pair))
	}
	recordsTotal.WithLabelValues(statusScheduled).Inc()
}

func (s *Service) scheduleEvent(pair processor.EventAndRequest) *Task {
	delay := s.Calculator.Compute(pair.Event.Timestamp())
	if delay.IsNegative() {
		recordsTotal.WithLabelValues(statusNegativeDelay).Inc()
		return NoopTask()
	}

	decorator := NewTriggerDecorator(pair.Event, delay, s.Logger)
	task, err := s.Dispatcher.ScheduleAt(decorator.Decorate(s.Triggers.CreateTrigger(pair)), delay.FireTime())
	if err != nil {
		recordsTotal.WithLabelValues(statusDispatchFailed).Inc()
		s.Logger.Warn("dispatcher rejected task", zap.Error(err))
		return NoopTask()
	}
	return task
}

// NotifyRevoked 通知分区丢失，立即返回；取消由独立协程完成
func (s *Service) NotifyRevoked(partitions []int32) {
	if len(partitions) == 0 {
		return
	}
	cp := append([]int32(nil), partitions...)
	s.revokedMu.Lock()
	s.revoked = append(s.revoked, cp)
	s.revokedMu.Unlock()
	select {
	case s.revokedCh <- struct{}{}:
	default:
	}
}

func (s *Service) serveRevocations(ctx context.Context) {
	for {
		select {
		case <-s.revokedCh:
			s.revokedMu.Lock()
			batches := s.revoked
			s.revoked = nil
			s.revokedMu.Unlock()
			for _, partitions := range batches {
				n := s.Registry.CancelPartitions(partitions)
				revokedPartitions.Add(float64(len(partitions)))
				s.Logger.Info("partitions revoked",
					zap.Int32s("partitions", partitions),
					zap.Int("cancelledTasks", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

type stringerFunc func() string

func (f stringerFunc) String() string { return f() }

func stringerOf(v interface{}) fmt.Stringer {
	if s, ok := v.(fmt.Stringer); ok {
		return s
	}
	return stringerFunc(func() string { return fmt.Sprint(v) })
}
