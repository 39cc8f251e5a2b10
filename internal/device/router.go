package device

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lorawan-sim/virtual-lorawan-device/internal/forwarder"
)

// deliveryGuardMs is added to every scheduled downlink delivery so that an
// event never reaches the engine before its target instant, whatever the
// scheduling jitter of the runtime.
const deliveryGuardMs = 50

// Runtime bridges the forwarder's downlink subscription into time-scheduled
// internal events. The forwarder only fans out downlink data records, so
// every received frame qualifies for scheduling.
type Runtime struct {
	downlinks <-chan forwarder.TXPK
	events    chan<- internalEvent
	start     time.Time
}

func newRuntime(downlinks <-chan forwarder.TXPK, events chan<- internalEvent, start time.Time) *Runtime {
	return &Runtime{
		downlinks: downlinks,
		events:    events,
		start:     start,
	}
}

// Run consumes the downlink subscription until it is closed. Each qualifying
// frame spawns its own delayed-delivery goroutine; deliveries are unordered
// among themselves and synchronize only on the shared clock and the internal
// event queue.
func (r *Runtime) Run() {
	for frame := range r.downlinks {
		if frame.Tmst == nil {
			// only clock-synchronized delivery is supported
			log.Warning("device: downlink with \"immediate\" timing marker, dropping")
			immediateDownlinkCounter().Inc()
			continue
		}

		scheduledMs := *frame.Tmst / 1000
		nowMs := uint64(time.Since(r.start) / time.Millisecond)

		if scheduledMs <= nowMs {
			log.WithFields(log.Fields{
				"late_ms": nowMs - scheduledMs,
			}).Warning("device: downlink received after its tx time, dropping")
			lateDownlinkCounter().Inc()
			continue
		}

		delay := scheduledMs - nowMs
		events := r.events
		f := frame
		go func() {
			time.Sleep(time.Duration(delay+deliveryGuardMs) * time.Millisecond)
			events <- inboundFrame{frame: f, delayMs: delay}
		}()
	}
}
