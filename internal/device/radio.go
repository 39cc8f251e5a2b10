package device

import (
	"encoding/base64"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lorawan-sim/virtual-lorawan-device/internal/forwarder"
	"github.com/lorawan-sim/virtual-lorawan-device/internal/radio"
)

const (
	// rxBufferSize defines the fixed capacity of the receive buffer.
	rxBufferSize = 256

	// rxWindowOffsetMs and rxWindowDurationMs are the timing constants the
	// engine uses to schedule its receive windows. They are fixed, not
	// derived from the RF configuration.
	rxWindowOffsetMs   = 20
	rxWindowDurationMs = 100

	// Synthetic signal quality. No real RF path exists, so transmitted
	// frames report a fixed SNR/RSSI and received frames a fixed quality
	// pair.
	uplinkSNR    = 5.5
	uplinkRSSI   = -112
	downlinkRSSI = -115
	downlinkSNR  = 4
)

// fatalf terminates the process on an unrecoverable fault. Indirected so
// tests can intercept the fatal path.
var fatalf = log.Fatalf

// UDPRadio implements the Radio capability on top of the packet-forwarder
// transport. All scheduling offsets are computed against the shared
// monotonic clock captured at device construction.
type UDPRadio struct {
	txPacketChan chan<- forwarder.RXPK
	events       chan<- internalEvent

	rxBuffer []byte
	config   radio.RFConfig
	start    time.Time

	// windowStart records the delay of the most recently armed timer, for
	// diagnostics.
	windowStart uint32
}

func newUDPRadio(txPacketChan chan<- forwarder.RXPK, events chan<- internalEvent, start time.Time) *UDPRadio {
	return &UDPRadio{
		txPacketChan: txPacketChan,
		events:       events,
		rxBuffer:     make([]byte, 0, rxBufferSize),
		start:        start,
	}
}

func (r *UDPRadio) elapsedMs() uint32 {
	return uint32(time.Since(r.start) / time.Millisecond)
}

// Transmit implements the Radio interface. A full outbound channel is fatal:
// back-pressure cannot be propagated through the engine's synchronous call
// contract, and a silent drop would corrupt the simulation.
func (r *UDPRadio) Transmit(cfg radio.TXConfig, payload []byte) uint32 {
	pk := forwarder.RXPK{
		Chan: 0,
		CodR: cfg.RF.CodingRate.String(),
		Data: base64.StdEncoding.EncodeToString(payload),
		DatR: cfg.RF.DataRate(),
		Freq: cfg.RF.FrequencyMHz(),
		LSNR: uplinkSNR,
		Modu: "LORA",
		RFCh: 0,
		RSSI: uplinkRSSI,
		Size: uint16(len(payload)),
		Stat: 1,
		Tmst: uint64(time.Since(r.start) / time.Microsecond),
	}

	select {
	case r.txPacketChan <- pk:
	default:
		fatalf("device: uplink queue overflow")
	}

	return r.elapsedMs()
}

// PrepareReceive implements the Radio interface.
func (r *UDPRadio) PrepareReceive(cfg radio.RFConfig) {
	r.config = cfg
}

// CancelReceive implements the Radio interface.
func (r *UDPRadio) CancelReceive() {}

// OnPhysicalEvent implements the Radio interface. Inbound frames in this
// closed simulation are assumed well-formed; a decode failure or a payload
// exceeding the buffer capacity indicates a bug and is fatal.
func (r *UDPRadio) OnPhysicalEvent(frame forwarder.TXPK) RXQuality {
	data, err := base64.StdEncoding.DecodeString(frame.Data)
	if err != nil {
		fatalf("device: downlink payload decode error: %s", err)
		return RXQuality{}
	}
	if len(data) > rxBufferSize {
		fatalf("device: rx buffer overflow: %d bytes", len(data))
		return RXQuality{}
	}

	r.rxBuffer = r.rxBuffer[:0]
	r.rxBuffer = append(r.rxBuffer, data...)

	return RXQuality{RSSI: downlinkRSSI, SNR: downlinkSNR}
}

// ReceivedPayload implements the Radio interface.
func (r *UDPRadio) ReceivedPayload() []byte {
	return r.rxBuffer
}

// RXWindowOffsetMs implements the Radio interface.
func (r *UDPRadio) RXWindowOffsetMs() int32 {
	return rxWindowOffsetMs
}

// RXWindowDurationMs implements the Radio interface.
func (r *UDPRadio) RXWindowDurationMs() uint32 {
	return rxWindowDurationMs
}

// Timer arms a single-shot timer delivering a Timeout event at the given
// millisecond offset on the shared clock. There is no cancel: a stale fire
// is absorbed by the driver loop's stale-event tolerance.
func (r *UDPRadio) Timer(futureMs uint32) {
	var delay uint32
	if now := r.elapsedMs(); futureMs > now {
		delay = futureMs - now
	}

	events := r.events
	go func() {
		time.Sleep(time.Duration(delay) * time.Millisecond)
		events <- timeoutEvent{}
	}()

	r.windowStart = delay
}

// WindowStart returns the delay of the most recently armed timer.
func (r *UDPRadio) WindowStart() uint32 {
	return r.windowStart
}
