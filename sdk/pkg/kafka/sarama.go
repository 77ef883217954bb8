package kafka

import (
	"fmt"

	"github.com/IBM/sarama"

	"github.com/ChenBigdata421/jxt-replay/sdk/config"
)

// configureSarama 按配置生成消费者组所需的 Sarama 配置
func configureSarama(cfg *config.KafkaConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid kafka version %q: %w", cfg.Version, err)
	}
	sc.Version = version

	// 消费者组配置
	sc.Consumer.Group.Session.Timeout = cfg.SessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = cfg.HeartbeatInterval
	sc.Consumer.Group.Rebalance.Timeout = cfg.RebalanceTimeout
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}

	// 无已提交偏移量时从最早位置开始；自动提交保证保留分区在重平衡后从原位置继续
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Return.Errors = true

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sarama config: %w", err)
	}
	return sc, nil
}
