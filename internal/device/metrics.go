package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ld = promauto.NewCounter(prometheus.CounterOpts{
		Name: "device_late_downlink_count",
		Help: "The number of downlink frames dropped because they arrived after their scheduled tx time.",
	})

	id = promauto.NewCounter(prometheus.CounterOpts{
		Name: "device_immediate_downlink_count",
		Help: "The number of downlink frames dropped because they used the unsupported \"immediate\" timing marker.",
	})
)

func lateDownlinkCounter() prometheus.Counter {
	return ld
}

func immediateDownlinkCounter() prometheus.Counter {
	return id
}
