package scheduler

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Calculator 原始时间线与回放时间线之间的线性变换：
//
//	fire-time = schedulingStart + (original - cutoff) / speedup
//	original  = cutoff + (fire-time - schedulingStart) * speedup
//
// 例如 cutoff=2019-10-28T00:00:00Z，schedulingStart=2019-10-29T00:00:00Z，speedup=2，
// 原始时间 2019-10-28T02:11:17.036Z 的相对时间为 1h05m38.518s，触发时间为 2019-10-29T01:05:38.518Z。
// 计算以毫秒为单位并向零截断。
type Calculator struct {
	speedup int64
	cutoff  time.Time
	start   time.Time
	now     func() time.Time
	logger  *zap.Logger
}

// CalculatorOption 可选项
type CalculatorOption func(*Calculator)

// WithClock 注入时钟
func WithClock(now func() time.Time) CalculatorOption {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCalculatorLogger 设置日志记录器
func WithCalculatorLogger(l *zap.Logger) CalculatorOption {
	return func(c *Calculator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCalculator 创建调度时间计算器
func NewCalculator(speedup int64, cutoff, start time.Time, opts ...CalculatorOption) (*Calculator, error) {
	if speedup < 1 {
		return nil, fmt.Errorf("speedup factor must be >= 1, got: %d", speedup)
	}
	c := &Calculator{
		speedup: speedup,
		cutoff:  cutoff,
		start:   start,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Compute 计算原始时间对应的调度延迟；早于截止时间返回 NegativeDelay
func (c *Calculator) Compute(original time.Time) ScheduleDelay {
	if original.Before(c.cutoff) {
		recordsTotal.WithLabelValues(statusTooEarly).Inc()
		return NegativeDelay
	}

	relative := time.Duration(original.Sub(c.cutoff).Milliseconds()/c.speedup) * time.Millisecond
	fireTime := c.start.Add(relative)
	delay := fireTime.Sub(c.now())

	if ce := c.logger.Check(zap.DebugLevel, "computed schedule delay"); ce != nil {
		ce.Write(
			zap.Time("originalStartTime", original),
			zap.Duration("relativeStartTime", relative),
			zap.Time("fireTime", fireTime),
			zap.Duration("delay", delay))
	}

	relativeTime.Observe(relative.Seconds())
	scheduleDelay.Observe(delay.Seconds())

	return NewScheduleDelay(delay, fireTime)
}

// Inverse 回放时间线上的时刻映射回原始时间线，用于新分配分区按时间戳定位
func (c *Calculator) Inverse(scheduleInstant time.Time) time.Time {
	sinceStart := time.Duration(scheduleInstant.Sub(c.start).Milliseconds()*c.speedup) * time.Millisecond
	return c.cutoff.Add(sinceStart)
}

// Speedup 加速倍数
func (c *Calculator) Speedup() int64 {
	return c.speedup
}
