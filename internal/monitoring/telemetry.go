package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "device_downlink_timeout_count",
		Help: "The number of confirmed uplinks that were never acknowledged (per device).",
	}, []string{"device"})

	dr = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "device_downlink_response_latency_ms",
		Help:    "The margin in milliseconds by which downlink frames arrived before their scheduled delivery instant (per device).",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"device"})
)

// Telemetry implements the device.Telemetry stats sink on top of
// prometheus.
type Telemetry struct{}

// NewTelemetry creates a Telemetry.
func NewTelemetry() *Telemetry {
	return &Telemetry{}
}

// DownlinkTimeout implements device.Telemetry.
func (t *Telemetry) DownlinkTimeout(device string) {
	dt.With(prometheus.Labels{"device": device}).Inc()
}

// DownlinkResponse implements device.Telemetry.
func (t *Telemetry) DownlinkResponse(device string, latencyMs uint64) {
	dr.With(prometheus.Labels{"device": device}).Observe(float64(latencyMs))
}
