package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/processor"
)

// TriggerFactory 为事件创建回放动作
type TriggerFactory interface {
	CreateTrigger(pair processor.EventAndRequest) Trigger
}

// TriggerFactoryFunc 函数适配器
type TriggerFactoryFunc func(pair processor.EventAndRequest) Trigger

func (f TriggerFactoryFunc) CreateTrigger(pair processor.EventAndRequest) Trigger {
	return f(pair)
}

// TriggerDecorator 为单个事件的回放动作附加调度精度统计与异常记录
type TriggerDecorator struct {
	event  processor.Event
	delay  ScheduleDelay
	logger *zap.Logger
	now    func() time.Time
}

// NewTriggerDecorator 创建装饰器
func NewTriggerDecorator(event processor.Event, delay ScheduleDelay, logger *zap.Logger) *TriggerDecorator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriggerDecorator{event: event, delay: delay, logger: logger, now: time.Now}
}

// MeasureAccuracy 记录实际执行时刻与计划触发时刻的偏差（毫秒，0 为准时，正数为迟到）
func (d *TriggerDecorator) MeasureAccuracy(trigger Trigger) Trigger {
	return func(ctx context.Context) error {
		now := d.now()
		lateness := d.delay.Lateness(now)
		accuracy.Observe(float64(lateness.Milliseconds()))

		if ce := d.logger.Check(zap.DebugLevel, "trigger fired"); ce != nil {
			ce.Write(
				zap.Time("scheduledFor", d.delay.FireTime()),
				zap.Time("now", now),
				zap.Int64("accuracyMs", lateness.Milliseconds()),
				zap.Time("eventTime", d.event.Timestamp()))
		}

		executedTotal.Inc()
		return trigger(ctx)
	}
}

// LogException 捕获 trigger 的错误与 panic，计数并记录，不向执行器传播
func (d *TriggerDecorator) LogException(trigger Trigger) Trigger {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("trigger panic: %v", r)
			}
			if err != nil {
				triggerFailures.Inc()
				d.logger.Warn("failed to execute trigger",
					zap.Any("event", d.event),
					zap.Time("eventTime", d.event.Timestamp()),
					zap.Error(err))
			}
			err = nil
		}()
		return trigger(ctx)
	}
}

// Decorate 依次套上精度统计与异常记录
func (d *TriggerDecorator) Decorate(trigger Trigger) Trigger {
	return d.LogException(d.MeasureAccuracy(trigger))
}
