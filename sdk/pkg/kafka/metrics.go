package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traffic_replay",
		Subsystem: "kafka",
		Name:      "consumed_total",
		Help:      "Records received from the broker",
	}, []string{"topic"})

	producedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traffic_replay",
		Subsystem: "kafka",
		Name:      "produced_total",
		Help:      "Records handed to the scheduling channel",
	}, []string{"topic"})

	ownedPartitions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "traffic_replay",
		Subsystem: "kafka",
		Name:      "owned_partitions",
		Help:      "Partitions currently owned by this process",
	})

	rebalancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traffic_replay",
		Subsystem: "kafka",
		Name:      "rebalance_events_total",
		Help:      "Rebalance callbacks by kind",
	}, []string{"kind"})

	seeksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traffic_replay",
		Subsystem: "kafka",
		Name:      "seeks_total",
		Help:      "Partitions repositioned after assignment, by mode",
	}, []string{"mode"})
)
