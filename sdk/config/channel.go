package config

import (
	"fmt"
	"time"
)

// ChannelConfig 读取端与调度循环之间的有界通道配置
type ChannelConfig struct {
	Capacity  int           `mapstructure:"capacity"`  // 通道容量
	WaitSlice time.Duration `mapstructure:"waitSlice"` // 单次入队/出队的最长等待时间
}

var ChannelConf = new(ChannelConfig)

// SetDefaults 设置默认值
func (c *ChannelConfig) SetDefaults() {
	if c.Capacity == 0 {
		c.Capacity = 10000
	}
	if c.WaitSlice == 0 {
		c.WaitSlice = 10 * time.Second
	}
}

// Validate 校验配置
func (c *ChannelConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("channel capacity must be positive, got: %d", c.Capacity)
	}
	if c.WaitSlice <= 0 {
		return fmt.Errorf("channel wait slice must be positive")
	}
	return nil
}
