// Package forwarder implements the gateway side of the Semtech UDP
// packet-forwarder protocol. It relays uplink frames produced by the
// simulated devices to the network server and fans received downlink frames
// out to all subscribed devices.
package forwarder

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lorawan-sim/virtual-lorawan-device/internal/config"
)

const (
	// txPacketChanSize defines the capacity of the outbound uplink channel.
	// Producers use non-blocking sends; a full channel means the simulation
	// has fallen behind.
	txPacketChanSize = 100

	// subscriberChanSize defines the per-device downlink buffer.
	subscriberChanSize = 16
)

// Backend implements an UDP packet-forwarder backend.
type Backend struct {
	sync.RWMutex

	conn              *net.UDPConn
	gatewayID         lorawan.EUI64
	keepAliveInterval time.Duration

	txPacketChan chan RXPK
	subscribers  []chan TXPK

	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewBackend creates a new Backend, connected to the network server
// configured under forwarder.server.
func NewBackend(c config.Config) (*Backend, error) {
	addr, err := net.ResolveUDPAddr("udp", c.Forwarder.Server)
	if err != nil {
		return nil, errors.Wrap(err, "resolve udp addr error")
	}

	log.WithFields(log.Fields{
		"server":     c.Forwarder.Server,
		"gateway_id": c.Forwarder.GatewayID,
	}).Info("forwarder: connecting to network server")

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, errors.Wrap(err, "dial udp error")
	}

	b := Backend{
		conn:              conn,
		gatewayID:         c.Forwarder.GatewayID,
		keepAliveInterval: c.Forwarder.KeepAliveInterval,
		txPacketChan:      make(chan RXPK, txPacketChanSize),
		done:              make(chan struct{}),
	}

	b.wg.Add(3)
	go b.readLoop()
	go b.writeLoop()
	go b.keepAliveLoop()

	return &b, nil
}

// TXPacketChan returns the channel on which uplink frames must be published.
// The channel is bounded; callers must use a non-blocking send and treat a
// full channel as an unrecoverable fault.
func (b *Backend) TXPacketChan() chan RXPK {
	return b.txPacketChan
}

// Subscribe returns a channel receiving every downlink frame pushed by the
// network server. Frames for slow subscribers are dropped.
func (b *Backend) Subscribe() <-chan TXPK {
	b.Lock()
	defer b.Unlock()

	c := make(chan TXPK, subscriberChanSize)
	b.subscribers = append(b.subscribers, c)
	return c
}

// Close closes the backend. Note that this closes the uplink path only, so
// downlinks still in flight can be delivered.
func (b *Backend) Close() error {
	log.Info("forwarder: closing backend")

	b.Lock()
	b.closed = true
	b.Unlock()
	close(b.done)

	if err := b.conn.Close(); err != nil {
		return errors.Wrap(err, "close udp connection error")
	}
	b.wg.Wait()

	b.Lock()
	defer b.Unlock()
	for _, c := range b.subscribers {
		close(c)
	}
	b.subscribers = nil
	return nil
}

func (b *Backend) readLoop() {
	defer b.wg.Done()

	buf := make([]byte, 65507)
	for {
		n, err := b.conn.Read(buf)
		if err != nil {
			b.RLock()
			closed := b.closed
			b.RUnlock()
			if closed {
				return
			}
			log.WithError(err).Error("forwarder: udp read error")
			continue
		}
		if n < 4 || buf[0] != ProtocolVersion2 {
			log.WithField("size", n).Warning("forwarder: unexpected udp packet")
			continue
		}

		pt := PacketType(buf[3])
		packetReadCounter(pt.String()).Inc()

		switch pt {
		case PushACK, PullACK:
			// keepalive bookkeeping only
		case PullResp:
			data := make([]byte, n)
			copy(data, buf[:n])
			b.handlePullResp(data)
		default:
			log.WithField("type", pt).Warning("forwarder: unexpected packet type")
		}
	}
}

func (b *Backend) handlePullResp(data []byte) {
	var p PullRespPacket
	if err := p.UnmarshalBinary(data); err != nil {
		log.WithError(err).Error("forwarder: unmarshal PULL_RESP error")
		return
	}

	ack := TXAckPacket{
		Token:     p.Token,
		GatewayID: b.gatewayID,
	}
	if err := b.writePacket(TXACK, ack); err != nil {
		log.WithError(err).Error("forwarder: send TX_ACK error")
	}

	b.RLock()
	defer b.RUnlock()
	for _, c := range b.subscribers {
		select {
		case c <- p.Payload.TXPK:
		default:
			downlinkDroppedCounter().Inc()
			log.Warning("forwarder: subscriber not keeping up, downlink dropped")
		}
	}
}

func (b *Backend) writeLoop() {
	defer b.wg.Done()

	for {
		var pk RXPK
		select {
		case <-b.done:
			return
		case pk = <-b.txPacketChan:
		}

		p := PushDataPacket{
			Token:     uint16(rand.Uint32()),
			GatewayID: b.gatewayID,
		}
		p.Payload.RXPK = []RXPK{pk}

		if err := b.writePacket(PushData, p); err != nil {
			b.RLock()
			closed := b.closed
			b.RUnlock()
			if closed {
				return
			}
			log.WithError(err).Error("forwarder: send PUSH_DATA error")
		}
	}
}

func (b *Backend) keepAliveLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.keepAliveInterval)
	defer ticker.Stop()

	// the first PULL_DATA opens the downlink path immediately
	for {
		p := PullDataPacket{
			Token:     uint16(rand.Uint32()),
			GatewayID: b.gatewayID,
		}
		if err := b.writePacket(PullData, p); err != nil {
			b.RLock()
			closed := b.closed
			b.RUnlock()
			if closed {
				return
			}
			log.WithError(err).Error("forwarder: send PULL_DATA error")
		}

		select {
		case <-b.done:
			return
		case <-ticker.C:
		}
	}
}

type binaryMarshaler interface {
	MarshalBinary() ([]byte, error)
}

func (b *Backend) writePacket(pt PacketType, p binaryMarshaler) error {
	bb, err := p.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "marshal packet error")
	}
	if _, err := b.conn.Write(bb); err != nil {
		return errors.Wrap(err, "udp write error")
	}
	packetWriteCounter(pt.String()).Inc()
	return nil
}

func init() {
	rand.Seed(time.Now().UnixNano())
}
