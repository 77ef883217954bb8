package config

import "fmt"

// Extensions 扩展点配置：选择消息处理器实现
type Extensions struct {
	Provider string                 `mapstructure:"provider"` // 处理器注册名，例如 druid-query-log
	Settings map[string]interface{} `mapstructure:"settings"` // 传递给处理器工厂的参数
}

var ExtensionsConfig = new(Extensions)

// Validate 校验配置
func (e *Extensions) Validate() error {
	if e.Provider == "" {
		return fmt.Errorf("extensions provider is required")
	}
	return nil
}
