package config

import (
	"fmt"
	"time"
)

// SchedulerConfig 回放调度配置
//
// 调度时间计算公式：
//
//	fire-time = schedulingStartTime + (original-start-time - queryCutoffTime) / speedupFactor
type SchedulerConfig struct {
	SpeedupFactor         int64         `mapstructure:"speedupFactor"`         // 加速倍数（>=1）
	QueryCutoffTime       string        `mapstructure:"queryCutoffTime"`       // 原始时间线参考点（RFC3339），早于此时间的事件不回放
	SchedulingStartTime   string        `mapstructure:"schedulingStartTime"`   // 回放时间线参考点（RFC3339），为空时取进程启动时间
	MaxScheduledTasks     int           `mapstructure:"maxScheduledTasks"`     // 准入上限：未触发任务的最大数量
	CorePoolSize          int           `mapstructure:"corePoolSize"`          // 定时执行器的工作协程数
	AdmissionPollInterval time.Duration `mapstructure:"admissionPollInterval"` // 超过准入上限时的轮询间隔
	ReapInterval          time.Duration `mapstructure:"reapInterval"`          // 已完成任务清理周期
}

var SchedulerConf = new(SchedulerConfig)

// SetDefaults 设置默认值
func (s *SchedulerConfig) SetDefaults() {
	if s.SpeedupFactor == 0 {
		s.SpeedupFactor = 1
	}
	if s.MaxScheduledTasks == 0 {
		s.MaxScheduledTasks = 100000
	}
	if s.CorePoolSize == 0 {
		s.CorePoolSize = 16
	}
	if s.AdmissionPollInterval == 0 {
		s.AdmissionPollInterval = time.Second
	}
	if s.ReapInterval == 0 {
		s.ReapInterval = 20 * time.Second
	}
}

// Validate 校验配置
func (s *SchedulerConfig) Validate() error {
	if s.SpeedupFactor < 1 {
		return fmt.Errorf("scheduler speedup factor must be >= 1, got: %d", s.SpeedupFactor)
	}
	if s.MaxScheduledTasks < 1 {
		return fmt.Errorf("scheduler max scheduled tasks must be positive")
	}
	if s.CorePoolSize < 1 {
		return fmt.Errorf("scheduler core pool size must be positive")
	}
	if _, err := s.CutoffTime(); err != nil {
		return err
	}
	if s.SchedulingStartTime != "" {
		if _, err := s.StartTime(time.Time{}); err != nil {
			return err
		}
	}
	return nil
}

// CutoffTime 解析 QueryCutoffTime
func (s *SchedulerConfig) CutoffTime() (time.Time, error) {
	if s.QueryCutoffTime == "" {
		return time.Time{}, fmt.Errorf("scheduler query cutoff time is required")
	}
	t, err := time.Parse(time.RFC3339Nano, s.QueryCutoffTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid scheduler query cutoff time %q: %w", s.QueryCutoffTime, err)
	}
	return t, nil
}

// StartTime 解析 SchedulingStartTime，未配置时返回 fallback
func (s *SchedulerConfig) StartTime(fallback time.Time) (time.Time, error) {
	if s.SchedulingStartTime == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.SchedulingStartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid scheduler scheduling start time %q: %w", s.SchedulingStartTime, err)
	}
	return t, nil
}
