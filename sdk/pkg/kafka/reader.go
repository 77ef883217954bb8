package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-replay/sdk/config"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/shutdown"
)

// Sink 读取端的下游（有界通道）
type Sink interface {
	Put(ctx context.Context, msg *RawMessage) error
}

// TrafficReader 以消费者组订阅主题，把消息放入有界通道；
// 放入失败（通道被中断）视为致命错误并触发进程关闭。
type TrafficReader struct {
	cfg         *config.KafkaConfig
	client      sarama.Client
	group       sarama.ConsumerGroup
	sink        Sink
	coordinator *Coordinator
	shutdown    *shutdown.Signal
	logger      *zap.Logger

	mu       sync.Mutex
	fatalErr error
}

// NewTrafficReader 创建读取端并连接 broker
func NewTrafficReader(cfg *config.KafkaConfig, sink Sink, coordinator *Coordinator, signal *shutdown.Signal, logger *zap.Logger) (*TrafficReader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("kafka config cannot be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}

	saramaConfig, err := configureSarama(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure sarama: %w", err)
	}

	client, err := sarama.NewClient(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	group, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return newTrafficReader(cfg, client, group, sink, coordinator, signal, logger), nil
}

func newTrafficReader(cfg *config.KafkaConfig, client sarama.Client, group sarama.ConsumerGroup, sink Sink, coordinator *Coordinator, signal *shutdown.Signal, logger *zap.Logger) *TrafficReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if signal == nil {
		signal = shutdown.New(logger)
	}
	return &TrafficReader{
		cfg:         cfg,
		client:      client,
		group:       group,
		sink:        sink,
		coordinator: coordinator,
		shutdown:    signal,
		logger:      logger,
	}
}

// Run 消费直到 ctx 结束或发生致命错误
func (r *TrafficReader) Run(ctx context.Context) error {
	go r.drainErrors(ctx)

	handler := &consumerHandler{reader: r}
	r.logger.Info("subscribing to topics",
		zap.Strings("topics", r.cfg.Topics),
		zap.String("groupID", r.cfg.GroupID))

	for {
		if err := r.group.Consume(ctx, r.cfg.Topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return r.fatal()
			}
			r.logger.Error("consumer group consume error",
				zap.Strings("topics", r.cfg.Topics),
				zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second): // 避免快速重试
			}
		}
		if err := r.fatal(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			r.logger.Info("consumer context cancelled")
			return nil
		}
	}
}

// Close 关闭消费者组与客户端
func (r *TrafficReader) Close() error {
	var errs []error
	if err := r.group.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close consumer group: %w", err))
	}
	if err := r.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
		errs = append(errs, fmt.Errorf("close kafka client: %w", err))
	}
	return errors.Join(errs...)
}

func (r *TrafficReader) drainErrors(ctx context.Context) {
	for {
		select {
		case err, ok := <-r.group.Errors():
			if !ok {
				return
			}
			r.logger.Warn("consumer group error", zap.Error(err))
		case <-ctx.Done():
			return
		}
	}
}

func (r *TrafficReader) fail(err error) {
	r.mu.Lock()
	if r.fatalErr != nil {
		r.mu.Unlock()
		return
	}
	r.fatalErr = err
	r.mu.Unlock()

	r.logger.Error("traffic reader failed, shutting down", zap.Error(err))
	r.shutdown.Trigger(err)
}

func (r *TrafficReader) fatal() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatalErr
}

// consumerHandler sarama 消费者组回调
type consumerHandler struct {
	reader *TrafficReader
}

// Setup 会话开始：新分配的分区在开始消费前移动读取位置
func (h *consumerHandler) Setup(session sarama.ConsumerGroupSession) error {
	var assignment []TopicPartition
	for topic, partitions := range session.Claims() {
		for _, p := range partitions {
			assignment = append(assignment, TopicPartition{Topic: topic, Partition: p})
		}
	}
	seeker := newSessionSeeker(h.reader.client, session, h.reader.logger)
	return h.reader.coordinator.OnAssigned(assignment, seeker)
}

// Cleanup 会话结束：本会话的全部分区被回收
func (h *consumerHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	var revoked []int32
	for _, partitions := range session.Claims() {
		revoked = append(revoked, partitions...)
	}
	h.reader.coordinator.OnRevoked(revoked)
	return nil
}

// ConsumeClaim 把分区消息放入通道后标记位移
func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			consumedTotal.WithLabelValues(message.Topic).Inc()

			if err := h.reader.sink.Put(session.Context(), FromConsumerMessage(message)); err != nil {
				if session.Context().Err() != nil || h.reader.shutdown.IsShutdown() {
					// 重平衡或进程关闭，未标记的消息由下一位持有者重新读取
					return nil
				}
				h.reader.fail(fmt.Errorf("put record %s/%d@%d: %w", message.Topic, message.Partition, message.Offset, err))
				return err
			}
			producedTotal.WithLabelValues(message.Topic).Inc()
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
