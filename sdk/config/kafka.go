package config

import (
	"fmt"
	"time"
)

// KafkaConfig Kafka 消费端配置
type KafkaConfig struct {
	Brokers           []string      `mapstructure:"brokers"`           // Kafka集群地址
	Topics            []string      `mapstructure:"topics"`            // 订阅的主题列表
	GroupID           string        `mapstructure:"groupId"`           // 消费者组ID（即回放任务ID）
	UseTimestampSeek  bool          `mapstructure:"useTimestampSeek"`  // 新分配分区是否按时间戳定位
	SessionTimeout    time.Duration `mapstructure:"sessionTimeout"`    // 会话超时时间
	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"` // 心跳间隔
	RebalanceTimeout  time.Duration `mapstructure:"rebalanceTimeout"`  // 重平衡超时
	Version           string        `mapstructure:"version"`           // Kafka协议版本，例如 2.6.0
	ClientID          string        `mapstructure:"clientId"`          // 客户端ID
}

var KafkaConf = new(KafkaConfig)

// SetDefaults 设置默认值
func (k *KafkaConfig) SetDefaults() {
	if k.SessionTimeout == 0 {
		k.SessionTimeout = 10 * time.Second
	}
	if k.HeartbeatInterval == 0 {
		k.HeartbeatInterval = 3 * time.Second
	}
	if k.RebalanceTimeout == 0 {
		k.RebalanceTimeout = 60 * time.Second
	}
	if k.Version == "" {
		k.Version = "2.6.0"
	}
	if k.ClientID == "" {
		k.ClientID = "traffic-replay"
	}
}

// Validate 校验配置
func (k *KafkaConfig) Validate() error {
	if len(k.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if len(k.Topics) == 0 {
		return fmt.Errorf("kafka topics cannot be empty")
	}
	if k.GroupID == "" {
		return fmt.Errorf("kafka group id is required")
	}
	if k.HeartbeatInterval >= k.SessionTimeout {
		return fmt.Errorf("kafka heartbeat interval must be less than session timeout")
	}
	return nil
}
