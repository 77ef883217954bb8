package config

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"` // 是否启动指标端点
	Addr    string `mapstructure:"addr" json:"addr"`       // 监听地址
	Path    string `mapstructure:"path" json:"path"`       // 指标路径
}

var MetricsConf = new(MetricsConfig)

// SetDefaults 设置默认值
func (m *MetricsConfig) SetDefaults() {
	if m.Addr == "" {
		m.Addr = ":9102"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}
