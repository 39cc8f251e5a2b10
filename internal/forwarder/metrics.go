package forwarder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pw = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forwarder_udp_write_count",
		Help: "The number of UDP packets sent to the network server (per packet type).",
	}, []string{"type"})

	pr = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forwarder_udp_read_count",
		Help: "The number of UDP packets received from the network server (per packet type).",
	}, []string{"type"})

	dd = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forwarder_downlink_dropped_count",
		Help: "The number of downlink frames dropped because a subscriber did not keep up.",
	})
)

func packetWriteCounter(t string) prometheus.Counter {
	return pw.With(prometheus.Labels{"type": t})
}

func packetReadCounter(t string) prometheus.Counter {
	return pr.With(prometheus.Labels{"type": t})
}

func downlinkDroppedCounter() prometheus.Counter {
	return dd
}
