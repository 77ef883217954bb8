package config

import (
	"fmt"
	"time"
)

// HTTPConfig 回放请求的 HTTP 客户端配置
type HTTPConfig struct {
	Timeout              time.Duration `mapstructure:"timeout" json:"timeout"`                           // 单个请求超时
	LogResponseBody      bool          `mapstructure:"logResponseBody" json:"logResponseBody"`           // 是否记录响应体
	MaxRequestsPerSecond float64       `mapstructure:"maxRequestsPerSecond" json:"maxRequestsPerSecond"` // 全局限速，0 表示不限速
	MaxIdleConnsPerHost  int           `mapstructure:"maxIdleConnsPerHost" json:"maxIdleConnsPerHost"`   // 每个目标主机的最大空闲连接数
	Breaker              BreakerConfig `mapstructure:"breaker" json:"breaker"`                           // 熔断配置
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled" json:"enabled"`                   // 是否启用熔断
	FailureThreshold uint32        `mapstructure:"failureThreshold" json:"failureThreshold"` // 连续失败多少次后熔断
	OpenTimeout      time.Duration `mapstructure:"openTimeout" json:"openTimeout"`           // 熔断后多久进入半开状态
}

var HttpConfig = new(HTTPConfig)

// SetDefaults 设置默认值
func (h *HTTPConfig) SetDefaults() {
	if h.Timeout == 0 {
		h.Timeout = 60 * time.Second
	}
	if h.MaxIdleConnsPerHost == 0 {
		h.MaxIdleConnsPerHost = 64
	}
	if h.Breaker.FailureThreshold == 0 {
		h.Breaker.FailureThreshold = 5
	}
	if h.Breaker.OpenTimeout == 0 {
		h.Breaker.OpenTimeout = 30 * time.Second
	}
}

// Validate 校验配置
func (h *HTTPConfig) Validate() error {
	if h.Timeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if h.MaxRequestsPerSecond < 0 {
		return fmt.Errorf("http max requests per second cannot be negative")
	}
	return nil
}
