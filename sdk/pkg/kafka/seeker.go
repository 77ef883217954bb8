package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// offsetLookup sarama.Client 中按时间查询偏移量的部分
type offsetLookup interface {
	GetOffset(topic string, partitionID int32, time int64) (int64, error)
}

// offsetResetter sarama.ConsumerGroupSession 中移动偏移量的部分。
// MarkOffset 只能向前移动，ResetOffset 只能向后移动。
type offsetResetter interface {
	MarkOffset(topic string, partition int32, offset int64, metadata string)
	ResetOffset(topic string, partition int32, offset int64, metadata string)
}

// sessionSeeker 在消费者组会话 Setup 阶段重置分区的起始偏移量
type sessionSeeker struct {
	client  offsetLookup
	session offsetResetter
	logger  *zap.Logger
}

func newSessionSeeker(client offsetLookup, session offsetResetter, logger *zap.Logger) *sessionSeeker {
	return &sessionSeeker{client: client, session: session, logger: logger}
}

func (s *sessionSeeker) SeekToBeginning(partitions []TopicPartition) error {
	for _, tp := range partitions {
		offset, err := s.client.GetOffset(tp.Topic, tp.Partition, sarama.OffsetOldest)
		if err != nil {
			return fmt.Errorf("get oldest offset of %s/%d: %w", tp.Topic, tp.Partition, err)
		}
		s.reset(tp, offset)
	}
	return nil
}

// SeekToTimestamp 移动到时间戳不早于 ts 的第一条消息；不存在时移动到最新位置
func (s *sessionSeeker) SeekToTimestamp(partitions []TopicPartition, ts time.Time) error {
	for _, tp := range partitions {
		offset, err := s.client.GetOffset(tp.Topic, tp.Partition, ts.UnixMilli())
		if err != nil {
			return fmt.Errorf("get offset for time of %s/%d: %w", tp.Topic, tp.Partition, err)
		}
		if offset < 0 {
			offset, err = s.client.GetOffset(tp.Topic, tp.Partition, sarama.OffsetNewest)
			if err != nil {
				return fmt.Errorf("get newest offset of %s/%d: %w", tp.Topic, tp.Partition, err)
			}
		}
		s.reset(tp, offset)
	}
	return nil
}

func (s *sessionSeeker) reset(tp TopicPartition, offset int64) {
	s.logger.Info("moving partition to offset",
		zap.String("topic", tp.Topic),
		zap.Int32("partition", tp.Partition),
		zap.Int64("offset", offset))
	s.session.MarkOffset(tp.Topic, tp.Partition, offset, "")
	s.session.ResetOffset(tp.Topic, tp.Partition, offset, "")
}
