package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

// RawMessage 从 broker 读到的一条原始记录，由读取端交给调度循环后不再修改
type RawMessage struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// FromConsumerMessage 转换 sarama 消息
func FromConsumerMessage(msg *sarama.ConsumerMessage) *RawMessage {
	return &RawMessage{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Timestamp: msg.Timestamp,
	}
}
