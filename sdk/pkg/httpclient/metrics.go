package httpclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess     = "success"
	outcomeFailure     = "failure"
	outcomeBreakerOpen = "breaker-open"

	kindNew = "new"
	kindOld = "old"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traffic_replay",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Replayed requests by outcome",
	}, []string{"outcome"})

	responseTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "traffic_replay",
		Subsystem: "http",
		Name:      "response_time_ms",
		Help:      "Response time in milliseconds, new is the replayed request, old is the recorded one",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 5000, 10000, 30000, 60000, 120000},
	}, []string{"kind"})

	responseTimeDiff = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "traffic_replay",
		Subsystem: "http",
		Name:      "response_time_diff_ms",
		Help:      "New minus old response time in milliseconds",
		Buckets:   []float64{-30000, -5000, -1000, -250, -50, 0, 50, 250, 1000, 5000, 30000},
	})

	responseTimeWindows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traffic_replay",
		Subsystem: "http",
		Name:      "response_time_window_total",
		Help:      "Responses per response-time window",
	}, []string{"kind", "window"})
)

type timeWindow struct {
	start, end int64 // 秒，左闭右开
	name       string
}

var timeWindows = []timeWindow{
	{0, 1, "under-1s"},
	{1, 5, "1-5s"},
	{5, 10, "5-10s"},
	{10, 30, "10-30s"},
	{30, 60, "30-60s"},
	{60, 1<<63 - 1, "above-60s"},
}

// windowOf 按整秒数归入时间窗，负数不归入任何窗口
func windowOf(d time.Duration) (string, bool) {
	sec := int64(d / time.Second)
	for _, w := range timeWindows {
		if w.start <= sec && sec < w.end {
			return w.name, true
		}
	}
	return "", false
}

func reportResponseTime(kind string, d time.Duration) {
	responseTime.WithLabelValues(kind).Observe(float64(d.Milliseconds()))
	if name, ok := windowOf(d); ok {
		responseTimeWindows.WithLabelValues(kind, name).Inc()
	}
}
