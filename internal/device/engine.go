package device

import (
	"fmt"

	"github.com/brocaar/lorawan"

	"github.com/lorawan-sim/virtual-lorawan-device/internal/forwarder"
	"github.com/lorawan-sim/virtual-lorawan-device/internal/radio"
)

// Event is the closed set of events the driver loop delivers to the MAC
// engine.
type Event interface {
	isEvent()
}

// NewSessionEvent requests the engine to start a new join flow.
type NewSessionEvent struct{}

// SendDataEvent requests the engine to transmit an uplink.
type SendDataEvent struct {
	Data      []byte
	FPort     uint8
	Confirmed bool
}

// PhyEvent carries a downlink frame received on the simulated radio.
type PhyEvent struct {
	Frame forwarder.TXPK
}

// TimeoutEvent signals that a previously requested timer fired.
type TimeoutEvent struct{}

func (NewSessionEvent) isEvent() {}
func (SendDataEvent) isEvent()   {}
func (PhyEvent) isEvent()        {}
func (TimeoutEvent) isEvent()    {}

// Response is the closed set of responses the engine yields after handling
// an event.
type Response interface {
	isResponse()
}

// TimeoutRequest asks the driver to arm a timer firing at the given
// millisecond offset on the shared clock.
type TimeoutRequest struct {
	AtMs uint32
}

// JoinedNetwork reports a successfully established session.
type JoinedNetwork struct{}

// NoJoinAccept reports that the join windows closed without a join-accept.
type NoJoinAccept struct{}

// Idle reports that no follow-up action is required.
type Idle struct{}

// NoAck reports that a confirmed uplink was not acknowledged.
type NoAck struct{}

// ReadyToSend reports that no downlink was received but none was expected.
type ReadyToSend struct{}

// DownlinkReceived reports a received and validated downlink frame.
type DownlinkReceived struct {
	FCntDown uint32
}

// Receiving reports that the radio is listening for a downlink.
type Receiving struct{}

func (TimeoutRequest) isResponse()   {}
func (JoinedNetwork) isResponse()    {}
func (NoJoinAccept) isResponse()     {}
func (Idle) isResponse()             {}
func (NoAck) isResponse()            {}
func (ReadyToSend) isResponse()      {}
func (DownlinkReceived) isResponse() {}
func (Receiving) isResponse()        {}

// StateErrorKind identifies the cause of a session / no-session state error.
type StateErrorKind int

// Available state error kinds. EventWhileIdle and
// EventWhileWaitingForWindow are benign races between a stale timer or
// frame and a state transition that already happened; everything else is an
// invariant violation.
const (
	EventWhileIdle StateErrorKind = iota
	EventWhileWaitingForWindow
	NotJoined
	UnexpectedEvent
)

func (k StateErrorKind) String() string {
	switch k {
	case EventWhileIdle:
		return "event while idle"
	case EventWhileWaitingForWindow:
		return "event while waiting for window"
	case NotJoined:
		return "not joined"
	case UnexpectedEvent:
		return "unexpected event"
	}
	return "unknown"
}

// stale returns true for the two tolerated stale-event kinds.
func (k StateErrorKind) stale() bool {
	return k == EventWhileIdle || k == EventWhileWaitingForWindow
}

// RadioError wraps a radio-layer error. Radio errors are expected and
// non-fatal.
type RadioError struct {
	Cause error
}

func (e RadioError) Error() string {
	return fmt.Sprintf("radio error: %s", e.Cause)
}

// SessionError is returned by an engine holding a session.
type SessionError struct {
	Kind StateErrorKind
}

func (e SessionError) Error() string {
	return fmt.Sprintf("session error: %s", e.Kind)
}

// NoSessionError is returned by an engine without a session.
type NoSessionError struct {
	Kind StateErrorKind
}

func (e NoSessionError) Error() string {
	return fmt.Sprintf("no-session error: %s", e.Kind)
}

// RXQuality holds the synthetic signal quality reported for a received
// frame.
type RXQuality struct {
	RSSI int16
	SNR  float64
}

// Radio is the capability the MAC engine drives. It is implemented by
// UDPRadio.
type Radio interface {
	// Transmit encodes and publishes the given payload and returns the
	// elapsed milliseconds on the shared clock at transmit completion.
	Transmit(cfg radio.TXConfig, payload []byte) uint32

	// PrepareReceive stores cfg as the active receive configuration.
	PrepareReceive(cfg radio.RFConfig)

	// CancelReceive stops listening. It always succeeds.
	CancelReceive()

	// OnPhysicalEvent decodes the frame payload into the receive buffer and
	// returns the synthetic signal quality.
	OnPhysicalEvent(frame forwarder.TXPK) RXQuality

	// ReceivedPayload returns the contents of the receive buffer.
	ReceivedPayload() []byte

	// RXWindowOffsetMs returns the offset subtracted from the nominal
	// receive-window start.
	RXWindowOffsetMs() int32

	// RXWindowDurationMs returns the receive-window duration.
	RXWindowDurationMs() uint32
}

// Engine is the opaque MAC state machine owned by the driver loop. Each
// HandleEvent call transfers ownership in and returns the new state;
// exactly one live engine instance exists per device.
type Engine interface {
	HandleEvent(ev Event) (Engine, Response, error)
	DevEUI() lorawan.EUI64
}
