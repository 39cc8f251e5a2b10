// Package mac implements a class-A LoRaWAN 1.0.x end-device MAC engine
// behind the device.Engine boundary: OTAA join, session-key derivation,
// (un)confirmed uplinks and the RX1/RX2 receive windows.
package mac

import (
	"math/rand"

	"github.com/brocaar/lorawan"

	"github.com/lorawan-sim/virtual-lorawan-device/internal/device"
	"github.com/lorawan-sim/virtual-lorawan-device/internal/radio"
)

// Receive-window delays in milliseconds (LoRaWAN 1.0.x regional defaults).
const (
	joinAcceptDelay1Ms = 5000
	receiveDelay1Ms    = 1000
	windowSpacingMs    = 1000
)

type state int

const (
	stateIdle state = iota
	stateWaitingForWindow
	stateWaitingForRX
)

// Config holds the credentials and RF parameters of one device.
type Config struct {
	DevEUI lorawan.EUI64
	AppEUI lorawan.EUI64
	AppKey lorawan.AES128Key

	// Uplink holds the TX parameters used for every uplink; RX1 listens on
	// the same parameters.
	Uplink radio.TXConfig

	// RX2 holds the RF parameters of the second receive window.
	RX2 radio.RFConfig
}

// Engine is a class-A MAC state machine. It implements device.Engine.
type Engine struct {
	radio device.Radio
	cfg   Config

	session  *session
	devNonce uint16

	state   state
	window  int
	joining bool

	// elapsed ms on the shared clock when the last uplink completed, the
	// origin for both receive windows
	txDoneMs uint32

	pendingConfirmed bool
}

// New creates an Engine driving the given radio.
func New(r device.Radio, cfg Config) *Engine {
	return &Engine{
		radio:    r,
		cfg:      cfg,
		devNonce: uint16(rand.Uint32()),
	}
}

// DevEUI implements device.Engine.
func (e *Engine) DevEUI() lorawan.EUI64 {
	return e.cfg.DevEUI
}

// FCntUp returns the current uplink frame counter, 0 when no session is
// established.
func (e *Engine) FCntUp() uint32 {
	if e.session == nil {
		return 0
	}
	return e.session.fCntUp
}

// HandleEvent implements device.Engine.
func (e *Engine) HandleEvent(ev device.Event) (device.Engine, device.Response, error) {
	switch ev := ev.(type) {
	case device.NewSessionEvent:
		return e.handleNewSession()
	case device.SendDataEvent:
		return e.handleSendData(ev)
	case device.TimeoutEvent:
		return e.handleTimeout()
	case device.PhyEvent:
		return e.handlePhy(ev)
	}
	return e, nil, e.stateError(device.UnexpectedEvent)
}

func (e *Engine) handleNewSession() (device.Engine, device.Response, error) {
	if e.state != stateIdle {
		return e, nil, e.stateError(device.UnexpectedEvent)
	}

	e.devNonce++
	e.session = nil
	e.joining = true

	phy := buildJoinRequest(e.cfg.AppEUI, e.cfg.DevEUI, e.devNonce, e.cfg.AppKey)
	e.txDoneMs = e.radio.Transmit(e.cfg.Uplink, phy)
	e.window = 1
	e.state = stateWaitingForWindow

	return e, device.TimeoutRequest{AtMs: e.windowOpenMs()}, nil
}

func (e *Engine) handleSendData(ev device.SendDataEvent) (device.Engine, device.Response, error) {
	if e.session == nil {
		return e, nil, device.NoSessionError{Kind: device.NotJoined}
	}
	if e.state != stateIdle {
		return e, nil, device.SessionError{Kind: device.UnexpectedEvent}
	}

	phy, err := buildDataUp(e.session, ev.Confirmed, ev.FPort, ev.Data)
	if err != nil {
		return e, nil, device.SessionError{Kind: device.UnexpectedEvent}
	}
	e.session.fCntUp++

	e.txDoneMs = e.radio.Transmit(e.cfg.Uplink, phy)
	e.pendingConfirmed = ev.Confirmed
	e.window = 1
	e.state = stateWaitingForWindow

	return e, device.TimeoutRequest{AtMs: e.windowOpenMs()}, nil
}

func (e *Engine) handleTimeout() (device.Engine, device.Response, error) {
	switch e.state {
	case stateWaitingForWindow:
		e.radio.PrepareReceive(e.rxConfig())
		e.state = stateWaitingForRX
		return e, device.TimeoutRequest{AtMs: e.windowCloseMs()}, nil

	case stateWaitingForRX:
		e.radio.CancelReceive()
		if e.window == 1 {
			e.window = 2
			e.state = stateWaitingForWindow
			return e, device.TimeoutRequest{AtMs: e.windowOpenMs()}, nil
		}

		e.state = stateIdle
		if e.joining {
			e.joining = false
			return e, device.NoJoinAccept{}, nil
		}
		if e.pendingConfirmed {
			e.pendingConfirmed = false
			return e, device.NoAck{}, nil
		}
		return e, device.ReadyToSend{}, nil
	}

	return e, nil, e.stateError(device.EventWhileIdle)
}

func (e *Engine) handlePhy(ev device.PhyEvent) (device.Engine, device.Response, error) {
	switch e.state {
	case stateIdle:
		return e, nil, e.stateError(device.EventWhileIdle)
	case stateWaitingForWindow:
		return e, nil, e.stateError(device.EventWhileWaitingForWindow)
	}

	e.radio.OnPhysicalEvent(ev.Frame)
	phy := e.radio.ReceivedPayload()

	if e.joining {
		s, err := decodeJoinAccept(phy, e.cfg.AppKey, e.devNonce)
		if err != nil {
			// frame for another device or corrupted at the MAC level;
			// keep listening until the window closes
			return e, nil, device.RadioError{Cause: err}
		}

		e.session = s
		e.joining = false
		e.state = stateIdle
		return e, device.JoinedNetwork{}, nil
	}

	fCntDown, _, _, err := decodeDataDown(e.session, phy)
	if err != nil {
		return e, nil, device.RadioError{Cause: err}
	}

	e.session.fCntDown = fCntDown
	e.pendingConfirmed = false
	e.state = stateIdle
	return e, device.DownlinkReceived{FCntDown: fCntDown}, nil
}

// windowOpenMs returns the clock offset at which the current receive window
// opens, the fixed offset subtracted to accommodate scheduling latency.
func (e *Engine) windowOpenMs() uint32 {
	delay := uint32(receiveDelay1Ms)
	if e.joining {
		delay = joinAcceptDelay1Ms
	}
	open := e.txDoneMs + delay + uint32(e.window-1)*windowSpacingMs
	return open - uint32(e.radio.RXWindowOffsetMs())
}

func (e *Engine) windowCloseMs() uint32 {
	return e.windowOpenMs() + e.radio.RXWindowDurationMs()
}

func (e *Engine) rxConfig() radio.RFConfig {
	if e.window == 1 {
		return e.cfg.Uplink.RF
	}
	return e.cfg.RX2
}

func (e *Engine) stateError(kind device.StateErrorKind) error {
	if e.session == nil {
		return device.NoSessionError{Kind: kind}
	}
	return device.SessionError{Kind: kind}
}
