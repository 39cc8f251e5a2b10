package forwarder

import (
	"encoding/binary"
	"encoding/json"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
)

// ProtocolVersion2 identifies version 2 of the Semtech packet-forwarder
// protocol.
const ProtocolVersion2 uint8 = 2

// PacketType identifies the packet-forwarder packet type.
type PacketType uint8

// Available packet types.
const (
	PushData PacketType = iota
	PushACK
	PullData
	PullACK
	PullResp
	TXACK
)

// String implements fmt.Stringer.
func (t PacketType) String() string {
	switch t {
	case PushData:
		return "PUSH_DATA"
	case PushACK:
		return "PUSH_ACK"
	case PullData:
		return "PULL_DATA"
	case PullACK:
		return "PULL_ACK"
	case PullResp:
		return "PULL_RESP"
	case TXACK:
		return "TX_ACK"
	}
	return "UNKNOWN"
}

// RXPK contains an uplink frame as reported by the packet forwarder to the
// network server.
type RXPK struct {
	Chan uint8   `json:"chan"`
	CodR string  `json:"codr"`
	Data string  `json:"data"`
	DatR string  `json:"datr"`
	Freq float64 `json:"freq"`
	LSNR float64 `json:"lsnr"`
	Modu string  `json:"modu"`
	RFCh uint8   `json:"rfch"`
	RSSI int16   `json:"rssi"`
	Size uint16  `json:"size"`
	Stat int8    `json:"stat"`
	Tmst uint64  `json:"tmst"`
}

// TXPK contains a downlink frame scheduled by the network server. Tmst and
// Imme are mutually exclusive: a nil Tmst with Imme set means the frame must
// be sent immediately.
type TXPK struct {
	Imme bool    `json:"imme,omitempty"`
	Tmst *uint64 `json:"tmst,omitempty"`
	Freq float64 `json:"freq"`
	RFCh uint8   `json:"rfch"`
	Powe uint8   `json:"powe,omitempty"`
	Modu string  `json:"modu"`
	DatR string  `json:"datr"`
	CodR string  `json:"codr,omitempty"`
	IPol bool    `json:"ipol,omitempty"`
	Size uint16  `json:"size"`
	Data string  `json:"data"`
}

type pushDataPayload struct {
	RXPK []RXPK `json:"rxpk"`
}

type pullRespPayload struct {
	TXPK TXPK `json:"txpk"`
}

type txAckPayload struct {
	TXPKAck struct {
		Error string `json:"error"`
	} `json:"txpk_ack"`
}

// PushDataPacket wraps one or multiple RXPK records.
type PushDataPacket struct {
	Token     uint16
	GatewayID lorawan.EUI64
	Payload   pushDataPayload
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p PushDataPacket) MarshalBinary() ([]byte, error) {
	pb, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal push data payload error")
	}

	out := make([]byte, 4, 12+len(pb))
	out[0] = ProtocolVersion2
	binary.LittleEndian.PutUint16(out[1:3], p.Token)
	out[3] = byte(PushData)
	out = append(out, p.GatewayID[:]...)
	return append(out, pb...), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *PushDataPacket) UnmarshalBinary(data []byte) error {
	if len(data) < 12 || PacketType(data[3]) != PushData {
		return errors.New("invalid PUSH_DATA packet")
	}
	p.Token = binary.LittleEndian.Uint16(data[1:3])
	copy(p.GatewayID[:], data[4:12])
	return json.Unmarshal(data[12:], &p.Payload)
}

// PullDataPacket is the keepalive the gateway sends to open the downlink
// path.
type PullDataPacket struct {
	Token     uint16
	GatewayID lorawan.EUI64
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p PullDataPacket) MarshalBinary() ([]byte, error) {
	out := make([]byte, 4, 12)
	out[0] = ProtocolVersion2
	binary.LittleEndian.PutUint16(out[1:3], p.Token)
	out[3] = byte(PullData)
	return append(out, p.GatewayID[:]...), nil
}

// PullRespPacket contains a downlink frame, pushed by the network server in
// response to an earlier PULL_DATA.
type PullRespPacket struct {
	Token   uint16
	Payload pullRespPayload
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *PullRespPacket) UnmarshalBinary(data []byte) error {
	if len(data) < 5 || PacketType(data[3]) != PullResp {
		return errors.New("invalid PULL_RESP packet")
	}
	p.Token = binary.LittleEndian.Uint16(data[1:3])
	return json.Unmarshal(data[4:], &p.Payload)
}

// TXAckPacket acknowledges a PULL_RESP towards the network server.
type TXAckPacket struct {
	Token     uint16
	GatewayID lorawan.EUI64
	Error     string
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p TXAckPacket) MarshalBinary() ([]byte, error) {
	var pl txAckPayload
	pl.TXPKAck.Error = p.Error

	pb, err := json.Marshal(pl)
	if err != nil {
		return nil, errors.Wrap(err, "marshal tx ack payload error")
	}

	out := make([]byte, 4, 12+len(pb))
	out[0] = ProtocolVersion2
	binary.LittleEndian.PutUint16(out[1:3], p.Token)
	out[3] = byte(TXACK)
	out = append(out, p.GatewayID[:]...)
	return append(out, pb...), nil
}
