package channel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	depth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "traffic_replay",
		Subsystem: "channel",
		Name:      "depth",
		Help:      "Number of records buffered between the broker reader and the scheduling loop",
	}, []string{"channel"})

	fullWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traffic_replay",
		Subsystem: "channel",
		Name:      "full_waits_total",
		Help:      "Number of put wait slices that expired because the channel was full",
	}, []string{"channel"})
)
