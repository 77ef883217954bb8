package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultReapInterval 默认清理周期
const DefaultReapInterval = 20 * time.Second

// Reaper 按固定周期清理登记表中已结束的任务句柄，与调度循环相互独立
type Reaper struct {
	registry *Registry
	crontab  *cron.Cron
	logger   *zap.Logger
}

// NewReaper 创建清理器
func NewReaper(registry *Registry, interval time.Duration, logger *zap.Logger) (*Reaper, error) {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reaper{
		registry: registry,
		crontab:  cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		logger:   logger,
	}
	if _, err := r.crontab.AddFunc(fmt.Sprintf("@every %s", interval), r.reap); err != nil {
		return nil, fmt.Errorf("schedule reaper: %w", err)
	}
	return r, nil
}

// Start 启动周期清理
func (r *Reaper) Start() {
	r.crontab.Start()
}

// Stop 停止周期清理并等待正在进行的清理结束
func (r *Reaper) Stop() {
	<-r.crontab.Stop().Done()
}

func (r *Reaper) reap() {
	removed := r.registry.Sweep()
	if removed > 0 {
		r.logger.Debug("removed finished tasks",
			zap.Int("removed", removed),
			zap.Int("remaining", r.registry.Len()))
	}
}
