package scheduler

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusTooEarly       = "too-early"
	statusNegativeDelay  = "negative-delay"
	statusScheduled      = "scheduled"
	statusNotOnWhitelist = "not-on-whitelist"
	statusProcessorError = "processor-error"
	statusDispatchFailed = "dispatch-rejected"
)

var (
	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traffic_replay",
		Subsystem: "scheduling",
		Name:      "records_total",
		Help:      "Records handled by the scheduling loop, by outcome",
	}, []string{"status"})

	relativeTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "traffic_replay",
		Subsystem: "scheduling",
		Name:      "relative_time_seconds",
		Help:      "Offset of the fire time from the scheduling start time",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})

	scheduleDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "traffic_replay",
		Subsystem: "scheduling",
		Name:      "delay_seconds",
		Help:      "Delay from computation to fire time; negative values mean replay is behind",
		Buckets:   []float64{-60, -10, -1, 0, 1, 10, 60, 300, 900, 3600, 14400},
	})

	accuracy = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "traffic_replay",
		Subsystem: "scheduling",
		Name:      "accuracy_ms",
		Help:      "Difference between actual and planned fire time in milliseconds, 0 is perfect, positive is late",
		Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
	})

	executedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "traffic_replay",
		Subsystem: "scheduling",
		Name:      "executed_total",
		Help:      "Triggers executed by the dispatcher",
	})

	triggerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "traffic_replay",
		Subsystem: "scheduling",
		Name:      "trigger_failures_total",
		Help:      "Triggers that returned an error or panicked",
	})

	pendingTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "traffic_replay",
		Subsystem: "dispatcher",
		Name:      "pending_tasks",
		Help:      "Tasks waiting for their fire time",
	})

	activeTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "traffic_replay",
		Subsystem: "dispatcher",
		Name:      "active_tasks",
		Help:      "Triggers currently executing",
	})

	completedTasks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "traffic_replay",
		Subsystem: "dispatcher",
		Name:      "completed_tasks_total",
		Help:      "Triggers that finished executing",
	})

	registeredTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "traffic_replay",
		Subsystem: "registry",
		Name:      "tasks",
		Help:      "Task handles registered per partition",
	}, []string{"partition"})

	sweptTasks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "traffic_replay",
		Subsystem: "registry",
		Name:      "swept_tasks_total",
		Help:      "Finished task handles removed by the reaper",
	})

	revokedPartitions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "traffic_replay",
		Subsystem: "registry",
		Name:      "revoked_partitions_total",
		Help:      "Partitions whose tasks were cancelled after ownership was lost",
	})
)

func partitionLabel(p int32) string {
	return strconv.FormatInt(int64(p), 10)
}
