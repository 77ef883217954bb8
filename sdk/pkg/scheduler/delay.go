package scheduler

import (
	"fmt"
	"time"
)

// ScheduleDelay 一次调度的延迟与绝对触发时间。
// 非哨兵值满足 FireTime == 计算时刻 + Delay；Delay 为负表示回放已落后于实时，仍需立即执行。
type ScheduleDelay struct {
	delay    time.Duration
	fireTime time.Time
	negative bool
}

// NegativeDelay 哨兵值：事件早于截止时间，不回放
var NegativeDelay = ScheduleDelay{delay: -time.Millisecond, negative: true}

// NewScheduleDelay 创建调度延迟
func NewScheduleDelay(delay time.Duration, fireTime time.Time) ScheduleDelay {
	return ScheduleDelay{delay: delay, fireTime: fireTime}
}

// IsNegative 是否为哨兵值，只有哨兵值表示跳过
func (d ScheduleDelay) IsNegative() bool {
	return d.negative
}

func (d ScheduleDelay) Delay() time.Duration {
	return d.delay
}

func (d ScheduleDelay) FireTime() time.Time {
	return d.fireTime
}

// Lateness 实际执行时刻相对计划触发时刻的偏差，0 为准时，正数为迟到
func (d ScheduleDelay) Lateness(now time.Time) time.Duration {
	return now.Sub(d.fireTime)
}

func (d ScheduleDelay) String() string {
	if d.negative {
		return "ScheduleDelay{negative}"
	}
	return fmt.Sprintf("ScheduleDelay{delay=%s, fireTime=%s}", d.delay, d.fireTime.Format(time.RFC3339Nano))
}
