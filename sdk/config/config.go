package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 REPLAY_SCHEDULER_SPEEDUPFACTOR=10
const EnvPrefix = "REPLAY"

// Config 顶层配置结构
type Config struct {
	Application *Application     `mapstructure:"application"`
	Logger      *Logger          `mapstructure:"logger"`
	Kafka       *KafkaConfig     `mapstructure:"kafka"`
	Channel     *ChannelConfig   `mapstructure:"channel"`
	Scheduler   *SchedulerConfig `mapstructure:"scheduler"`
	HTTP        *HTTPConfig      `mapstructure:"http"`
	Metrics     *MetricsConfig   `mapstructure:"metrics"`
	Extensions  *Extensions      `mapstructure:"extensions"`
}

var AppConfig = &Config{
	Application: ApplicationConfig,
	Logger:      LoggerConfig,
	Kafka:       KafkaConf,
	Channel:     ChannelConf,
	Scheduler:   SchedulerConf,
	HTTP:        HttpConfig,
	Metrics:     MetricsConf,
	Extensions:  ExtensionsConfig,
}

// New 创建一个所有子配置均已初始化的空配置
func New() *Config {
	return &Config{
		Application: new(Application),
		Logger:      new(Logger),
		Kafka:       new(KafkaConfig),
		Channel:     new(ChannelConfig),
		Scheduler:   new(SchedulerConfig),
		HTTP:        new(HTTPConfig),
		Metrics:     new(MetricsConfig),
		Extensions:  new(Extensions),
	}
}

// Setup 读取配置文件并填充全局 AppConfig
func Setup(configYml string) error {
	return load(configYml, AppConfig)
}

// Load 读取配置文件，返回独立的配置实例（不修改全局 AppConfig）
func Load(configYml string) (*Config, error) {
	cfg := New()
	if err := load(configYml, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(configYml string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(configYml)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 映射到Config
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.SetDefaults()
	return cfg.Validate()
}

// SetDefaults 为所有子配置设置默认值
func (c *Config) SetDefaults() {
	if c.Application == nil {
		c.Application = new(Application)
	}
	if c.Logger == nil {
		c.Logger = new(Logger)
	}
	if c.Kafka == nil {
		c.Kafka = new(KafkaConfig)
	}
	if c.Channel == nil {
		c.Channel = new(ChannelConfig)
	}
	if c.Scheduler == nil {
		c.Scheduler = new(SchedulerConfig)
	}
	if c.HTTP == nil {
		c.HTTP = new(HTTPConfig)
	}
	if c.Metrics == nil {
		c.Metrics = new(MetricsConfig)
	}
	if c.Extensions == nil {
		c.Extensions = new(Extensions)
	}

	c.Application.SetDefaults()
	c.Logger.SetDefaults()
	c.Kafka.SetDefaults()
	c.Channel.SetDefaults()
	c.Scheduler.SetDefaults()
	c.HTTP.SetDefaults()
	c.Metrics.SetDefaults()
}

// Validate 校验全部配置
func (c *Config) Validate() error {
	if err := c.Kafka.Validate(); err != nil {
		return err
	}
	if err := c.Channel.Validate(); err != nil {
		return err
	}
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.Extensions.Validate(); err != nil {
		return err
	}
	return nil
}
