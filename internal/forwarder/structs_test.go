package forwarder

import (
	"encoding/json"
	"testing"

	"github.com/brocaar/lorawan"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPushDataPacket(t *testing.T) {
	Convey("Given a PushDataPacket with one rxpk", t, func() {
		p := PushDataPacket{
			Token:     1234,
			GatewayID: lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8},
		}
		p.Payload.RXPK = []RXPK{
			{
				Chan: 0,
				CodR: "4/5",
				Data: "AAEC",
				DatR: "SF7BW125",
				Freq: 868.1,
				LSNR: 5.5,
				Modu: "LORA",
				RSSI: -112,
				Size: 3,
				Stat: 1,
				Tmst: 1000000,
			},
		}

		Convey("When marshaling to binary", func() {
			b, err := p.MarshalBinary()
			So(err, ShouldBeNil)

			Convey("Then the header is well-formed", func() {
				So(b[0], ShouldEqual, ProtocolVersion2)
				So(b[1], ShouldEqual, byte(1234%256))
				So(b[2], ShouldEqual, byte(1234/256))
				So(b[3], ShouldEqual, byte(PushData))
				So(b[4:12], ShouldResemble, []byte{1, 2, 3, 4, 5, 6, 7, 8})
			})

			Convey("Then the payload is the expected json object", func() {
				var pl pushDataPayload
				So(json.Unmarshal(b[12:], &pl), ShouldBeNil)
				So(pl.RXPK, ShouldResemble, p.Payload.RXPK)
			})

			Convey("Then it unmarshals back to an equal packet", func() {
				var out PushDataPacket
				So(out.UnmarshalBinary(b), ShouldBeNil)
				So(out, ShouldResemble, p)
			})
		})
	})
}

func TestPullDataPacket(t *testing.T) {
	Convey("Given a PullDataPacket", t, func() {
		p := PullDataPacket{
			Token:     256,
			GatewayID: lorawan.EUI64{8, 7, 6, 5, 4, 3, 2, 1},
		}

		Convey("Then MarshalBinary returns the 12 byte keepalive", func() {
			b, err := p.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldResemble, []byte{2, 0, 1, byte(PullData), 8, 7, 6, 5, 4, 3, 2, 1})
		})
	})
}

func TestPullRespPacket(t *testing.T) {
	Convey("Given the binary of a PULL_RESP packet", t, func() {
		tmst := uint64(5000000)
		pl := pullRespPayload{
			TXPK: TXPK{
				Tmst: &tmst,
				Freq: 868.1,
				Powe: 14,
				Modu: "LORA",
				DatR: "SF7BW125",
				CodR: "4/5",
				IPol: true,
				Size: 17,
				Data: "IKu70cumKom2nV5x9lGfUuE=",
			},
		}
		jb, err := json.Marshal(pl)
		So(err, ShouldBeNil)

		b := append([]byte{2, 57, 5, byte(PullResp)}, jb...)

		Convey("When unmarshaling", func() {
			var p PullRespPacket
			So(p.UnmarshalBinary(b), ShouldBeNil)

			Convey("Then the token and txpk are decoded", func() {
				So(p.Token, ShouldEqual, uint16(0x0539))
				So(p.Payload.TXPK.Tmst, ShouldNotBeNil)
				So(*p.Payload.TXPK.Tmst, ShouldEqual, tmst)
				So(p.Payload.TXPK.Data, ShouldEqual, pl.TXPK.Data)
				So(p.Payload.TXPK.Imme, ShouldBeFalse)
			})
		})

		Convey("When unmarshaling a packet of the wrong type", func() {
			b[3] = byte(PushACK)
			var p PullRespPacket
			So(p.UnmarshalBinary(b), ShouldNotBeNil)
		})
	})
}

func TestTXAckPacket(t *testing.T) {
	Convey("Given a TXAckPacket", t, func() {
		p := TXAckPacket{
			Token:     123,
			GatewayID: lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8},
		}

		Convey("Then MarshalBinary prefixes the txpk_ack payload with a header", func() {
			b, err := p.MarshalBinary()
			So(err, ShouldBeNil)
			So(b[0], ShouldEqual, ProtocolVersion2)
			So(b[3], ShouldEqual, byte(TXACK))

			var pl txAckPayload
			So(json.Unmarshal(b[12:], &pl), ShouldBeNil)
			So(pl.TXPKAck.Error, ShouldEqual, "")
		})
	})
}
