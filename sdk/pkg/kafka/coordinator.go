package kafka

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TopicPartition 主题分区
type TopicPartition struct {
	Topic     string
	Partition int32
}

// Seeker 移动新分配分区的读取位置
type Seeker interface {
	SeekToBeginning(partitions []TopicPartition) error
	SeekToTimestamp(partitions []TopicPartition, ts time.Time) error
}

// Inverter 把回放时间线上的时刻映射回原始时间线
type Inverter interface {
	Inverse(scheduleInstant time.Time) time.Time
}

// RevocationListener 接收丢失分区的通知，不得阻塞
type RevocationListener interface {
	NotifyRevoked(partitions []int32)
}

// CoordinatorConfig 协调器配置
type CoordinatorConfig struct {
	UseTimestampSeek bool
	Now              func() time.Time
}

// Coordinator 重平衡协调器：跨重平衡记录上一次分配，新分配的分区移动读取位置，
// 重新拿回的分区保持原位置与已调度任务，丢失的分区通知调度循环取消任务。
type Coordinator struct {
	cfg       CoordinatorConfig
	ownership *Ownership
	inverter  Inverter
	listener  RevocationListener
	logger    *zap.Logger

	mu       sync.Mutex
	previous map[TopicPartition]struct{}
}

// NewCoordinator 创建协调器
func NewCoordinator(cfg CoordinatorConfig, ownership *Ownership, inverter Inverter, listener RevocationListener, logger *zap.Logger) (*Coordinator, error) {
	if ownership == nil {
		return nil, fmt.Errorf("coordinator: ownership is required")
	}
	if cfg.UseTimestampSeek && inverter == nil {
		return nil, fmt.Errorf("coordinator: timestamp seek requires an inverter")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:       cfg,
		ownership: ownership,
		inverter:  inverter,
		listener:  listener,
		logger:    logger,
		previous:  make(map[TopicPartition]struct{}),
	}, nil
}

// OnAssigned 处理新的分区分配：移动新增分区的读取位置 → 替换 Ownership → 通知丢失分区
func (c *Coordinator) OnAssigned(assignment []TopicPartition, seeker Seeker) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rebalancesTotal.WithLabelValues("assigned").Inc()

	current := make(map[TopicPartition]struct{}, len(assignment))
	assigned := make(map[int32]struct{}, len(assignment))
	var gained []TopicPartition
	for _, tp := range assignment {
		current[tp] = struct{}{}
		assigned[tp.Partition] = struct{}{}
		if _, ok := c.previous[tp]; !ok {
			gained = append(gained, tp)
		}
	}
	lostSet := make(map[int32]struct{})
	for tp := range c.previous {
		if _, ok := assigned[tp.Partition]; !ok {
			lostSet[tp.Partition] = struct{}{}
		}
	}
	lost := sortedKeys(lostSet)
	assignedList := sortedKeys(assigned)

	c.logger.Info("partition assignment",
		zap.Int32s("assigned", assignedList),
		zap.Int32s("newlyAssigned", partitionsOf(gained)),
		zap.Int32s("noLongerOwned", lost))

	if len(gained) > 0 {
		if err := c.seek(gained, seeker); err != nil {
			return err
		}
	}

	c.ownership.Replace(assignedList)
	if len(lost) > 0 && c.listener != nil {
		c.listener.NotifyRevoked(lost)
	}
	c.previous = current
	return nil
}

// OnRevoked 会话结束时移除分区，重平衡期间缓冲区中这些分区的消息会被过滤
func (c *Coordinator) OnRevoked(partitions []int32) {
	rebalancesTotal.WithLabelValues("revoked").Inc()
	c.ownership.Remove(partitions...)
	c.logger.Info("removed partitions from ownership",
		zap.Int32s("revoked", partitions),
		zap.Stringer("owned", c.ownership))
}

func (c *Coordinator) seek(partitions []TopicPartition, seeker Seeker) error {
	if seeker == nil {
		return fmt.Errorf("coordinator: seeker is required")
	}
	if c.cfg.UseTimestampSeek {
		ts := c.inverter.Inverse(c.cfg.Now())
		c.logger.Info("seeking to offsets for timestamp",
			zap.Time("timestamp", ts),
			zap.Int32s("partitions", partitionsOf(partitions)))
		if err := seeker.SeekToTimestamp(partitions, ts); err != nil {
			return fmt.Errorf("seek to timestamp: %w", err)
		}
		seeksTotal.WithLabelValues("timestamp").Add(float64(len(partitions)))
		return nil
	}

	c.logger.Info("seeking to beginning", zap.Int32s("partitions", partitionsOf(partitions)))
	if err := seeker.SeekToBeginning(partitions); err != nil {
		return fmt.Errorf("seek to beginning: %w", err)
	}
	seeksTotal.WithLabelValues("beginning").Add(float64(len(partitions)))
	return nil
}

func partitionsOf(tps []TopicPartition) []int32 {
	out := make([]int32, 0, len(tps))
	for _, tp := range tps {
		out = append(out, tp.Partition)
	}
	return out
}

func sortedKeys(m map[int32]struct{}) []int32 {
	out := make([]int32, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
