package config

// Application 应用程序配置
type Application struct {
	Name string `mapstructure:"name" json:"name"` // 应用名称，用于日志与指标
	Mode string `mapstructure:"mode" json:"mode"` // dev, test, prod
}

var ApplicationConfig = new(Application)

// SetDefaults 设置默认值
func (a *Application) SetDefaults() {
	if a.Name == "" {
		a.Name = "traffic-replay"
	}
	if a.Mode == "" {
		a.Mode = "prod"
	}
}
