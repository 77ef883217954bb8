package druid

import "time"

// Event 一条 Druid 查询日志
type Event struct {
	StartTime  time.Time
	RemoteAddr string
	Query      string
	Latency    time.Duration // 原始响应时间（query/time）
}

func (e *Event) Timestamp() time.Time {
	return e.StartTime
}

func (e *Event) ResponseTime() (time.Duration, bool) {
	return e.Latency, true
}

func (e *Event) String() string {
	return e.StartTime.Format(time.RFC3339Nano) + " " + e.RemoteAddr + " " + e.Query
}
