// Package device implements the bridge between the packet-forwarder
// transport and a synchronous LoRaWAN MAC engine: timestamp-synchronized
// downlink delivery, jitter injection, perpetual uplink-retry orchestration
// and PHY wire translation.
package device

import (
	"encoding/hex"
	"math/rand"
	"strings"
	"time"

	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"

	"github.com/lorawan-sim/virtual-lorawan-device/internal/forwarder"
	"github.com/lorawan-sim/virtual-lorawan-device/internal/logging"
)

// eventQueueSize defines the capacity of the internal event queue. Many
// producers (router deliveries, timers, retry scheduling), one consumer.
const eventQueueSize = 100

// demoPayload is the fixed uplink payload of the simulated application.
var demoPayload = []byte{12, 3, 54, 54, 123, 23, 13, 14, 15, 16}

// internalEvent is the closed set of events flowing through the internal
// queue. Events are immutable once constructed and consumed exactly once by
// the driver loop.
type internalEvent interface {
	isInternalEvent()
}

type newSession struct{}

type sendPacket struct{}

type timeoutEvent struct{}

type inboundFrame struct {
	frame   forwarder.TXPK
	delayMs uint64
}

func (newSession) isInternalEvent()   {}
func (sendPacket) isInternalEvent()   {}
func (timeoutEvent) isInternalEvent() {}
func (inboundFrame) isInternalEvent() {}

// Telemetry is the optional stats sink fed by the driver loop.
type Telemetry interface {
	DownlinkTimeout(device string)
	DownlinkResponse(device string, latencyMs uint64)
}

// Options configures a simulated device.
type Options struct {
	// TransmitDelay is the base delay before the next uplink is scheduled.
	TransmitDelay time.Duration

	// Jitter enables the random 0-127 ms de-synchronization delay.
	Jitter bool

	UplinkFPort     uint8
	UplinkConfirmed bool

	// Telemetry may be nil.
	Telemetry Telemetry
}

// Device owns one engine instance and the internal event queue, and pumps
// events between the transport and the engine.
type Device struct {
	engine  Engine
	radio   *UDPRadio
	runtime *Runtime
	events  chan internalEvent

	opts  Options
	label string
	log   *log.Entry
}

// New creates a Device bridging the given transport channels. The engine is
// constructed through newEngine so that it captures the device's radio. One
// shared monotonic clock origin is captured here and passed to every
// component; it is never reset.
func New(txPacketChan chan<- forwarder.RXPK, downlinks <-chan forwarder.TXPK, newEngine func(Radio) Engine, opts Options) *Device {
	start := time.Now()
	events := make(chan internalEvent, eventQueueSize)

	r := newUDPRadio(txPacketChan, events, start)
	d := Device{
		engine:  newEngine(r),
		radio:   r,
		runtime: newRuntime(downlinks, events, start),
		events:  events,
		opts:    opts,
	}
	d.label = Label(d.engine.DevEUI())
	d.log = logging.NewDeviceEntry(d.label)

	return &d
}

// Label derives the display label for the given device identity: reversed
// byte order, hex-encoded, uppercased, last 12 characters.
func Label(devEUI lorawan.EUI64) string {
	b := make([]byte, len(devEUI))
	for i, v := range devEUI {
		b[len(devEUI)-1-i] = v
	}
	s := strings.ToUpper(hex.EncodeToString(b))
	if len(s) > 12 {
		s = s[len(s)-12:]
	}
	return s
}

// Radio returns the device radio, for diagnostics.
func (d *Device) Radio() *UDPRadio {
	return d.radio
}

// Run starts the event router and runs the driver loop. It never returns:
// the device is a perpetual retry engine, generating uplinks for as long as
// the process lives.
func (d *Device) Run() {
	go d.runtime.Run()

	// bootstrap the device immediately
	select {
	case d.events <- newSession{}:
	default:
		fatalf("device: event queue overflow on bootstrap")
	}

	for ev := range d.events {
		d.handleEvent(ev)
	}
}

func (d *Device) handleEvent(ev internalEvent) {
	// delay-to-spare of the downlink that triggered this cycle, when there
	// is one; reported as response latency
	var frameDelayMs *uint64

	var engine Engine
	var resp Response
	var err error

	switch ev := ev.(type) {
	case newSession:
		if d.opts.Jitter {
			time.Sleep(jitterDelay())
		}
		d.log.Info("device: creating session")
		engine, resp, err = d.engine.HandleEvent(NewSessionEvent{})
	case sendPacket:
		d.log.Info("device: sending uplink")
		engine, resp, err = d.engine.HandleEvent(SendDataEvent{
			Data:      demoPayload,
			FPort:     d.opts.UplinkFPort,
			Confirmed: d.opts.UplinkConfirmed,
		})
	case inboundFrame:
		frameDelayMs = &ev.delayMs
		engine, resp, err = d.engine.HandleEvent(PhyEvent{Frame: ev.frame})
	case timeoutEvent:
		engine, resp, err = d.engine.HandleEvent(TimeoutEvent{})
	}

	// ownership of the engine moves through every call
	d.engine = engine

	if err != nil {
		d.handleError(err)
		return
	}
	d.handleResponse(resp, frameDelayMs)
}

func (d *Device) handleResponse(resp Response, frameDelayMs *uint64) {
	switch resp := resp.(type) {
	case TimeoutRequest:
		d.radio.Timer(resp.AtMs)
	case NoJoinAccept:
		d.log.Info("device: no join-accept received, retrying")
		d.events <- newSession{}
	case JoinedNetwork:
		if frameDelayMs != nil {
			d.log.WithField("ms_to_spare", *frameDelayMs).Info("device: join success")
		} else {
			d.log.Info("device: join success")
		}
		d.scheduleSendPacket(d.opts.TransmitDelay)
	case Idle:
	case NoAck:
		d.log.Info("device: no ack received")
		if d.opts.Telemetry != nil {
			d.opts.Telemetry.DownlinkTimeout(d.label)
		}
		d.scheduleSendPacket(d.opts.TransmitDelay)
	case ReadyToSend:
		d.log.Debug("device: no downlink received but none expected, ready to send again")
		d.scheduleSendPacket(d.opts.TransmitDelay)
	case DownlinkReceived:
		if frameDelayMs != nil {
			d.log.WithFields(log.Fields{
				"ms_to_spare": *frameDelayMs,
				"f_cnt_down":  resp.FCntDown,
			}).Info("device: downlink received")
			if d.opts.Telemetry != nil {
				d.opts.Telemetry.DownlinkResponse(d.label, *frameDelayMs)
			}
		}
		delay := d.opts.TransmitDelay
		if d.opts.Jitter {
			delay += jitterDelay()
		}
		d.scheduleSendPacket(delay)
	case Receiving:
		d.log.Debug("device: receiving")
	}
}

func (d *Device) handleError(err error) {
	switch err := err.(type) {
	case RadioError:
		// expected, non-fatal
	case SessionError:
		if !err.Kind.stale() {
			fatalf("device %s: session error: %s", d.label, err.Kind)
		}
	case NoSessionError:
		if !err.Kind.stale() {
			fatalf("device %s: no-session error: %s", d.label, err.Kind)
		}
	default:
		fatalf("device %s: unexpected engine error: %s", d.label, err)
	}
}

func (d *Device) scheduleSendPacket(delay time.Duration) {
	events := d.events
	go func() {
		time.Sleep(delay)
		events <- sendPacket{}
	}()
}

// jitterDelay returns a uniformly random delay of 0-127 ms.
func jitterDelay() time.Duration {
	return time.Duration(rand.Intn(128)) * time.Millisecond
}
