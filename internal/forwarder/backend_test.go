package forwarder

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/brocaar/lorawan"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/lorawan-sim/virtual-lorawan-device/internal/config"
)

type testServer struct {
	conn *net.UDPConn
	addr *net.UDPAddr
}

func newTestServer() (*testServer, error) {
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &testServer{conn: conn, addr: conn.LocalAddr().(*net.UDPAddr)}, nil
}

// readPacket returns the next packet of the given type, skipping keepalives.
func (s *testServer) readPacket(pt PacketType) ([]byte, *net.UDPAddr, error) {
	buf := make([]byte, 65507)
	for {
		s.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return nil, nil, err
		}
		if n < 4 || PacketType(buf[3]) != pt {
			continue
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, addr, nil
	}
}

func TestBackend(t *testing.T) {
	Convey("Given a test udp server and a connected backend", t, func() {
		server, err := newTestServer()
		So(err, ShouldBeNil)
		defer server.conn.Close()

		var c config.Config
		c.Forwarder.Server = server.addr.String()
		c.Forwarder.GatewayID = lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8}
		c.Forwarder.KeepAliveInterval = 100 * time.Millisecond

		backend, err := NewBackend(c)
		So(err, ShouldBeNil)
		defer backend.Close()

		downlinks := backend.Subscribe()

		Convey("Then the backend sends PULL_DATA keepalives", func() {
			b, _, err := server.readPacket(PullData)
			So(err, ShouldBeNil)
			So(b, ShouldHaveLength, 12)
			So(b[0], ShouldEqual, ProtocolVersion2)
			So(b[4:12], ShouldResemble, []byte{1, 2, 3, 4, 5, 6, 7, 8})
		})

		Convey("When publishing an uplink frame", func() {
			backend.TXPacketChan() <- RXPK{
				CodR: "4/5",
				Data: "AAEC",
				DatR: "SF7BW125",
				Freq: 868.1,
				LSNR: 5.5,
				Modu: "LORA",
				RSSI: -112,
				Size: 3,
				Stat: 1,
			}

			Convey("Then the server receives it as PUSH_DATA", func() {
				b, _, err := server.readPacket(PushData)
				So(err, ShouldBeNil)

				var p PushDataPacket
				So(p.UnmarshalBinary(b), ShouldBeNil)
				So(p.GatewayID, ShouldEqual, lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8})
				So(p.Payload.RXPK, ShouldHaveLength, 1)
				So(p.Payload.RXPK[0].Data, ShouldEqual, "AAEC")
			})
		})

		Convey("When the server pushes a PULL_RESP", func() {
			// learn the backend address from its keepalive first
			_, addr, err := server.readPacket(PullData)
			So(err, ShouldBeNil)

			tmst := uint64(1000000)
			pl := pullRespPayload{
				TXPK: TXPK{
					Tmst: &tmst,
					Freq: 868.1,
					Modu: "LORA",
					DatR: "SF7BW125",
					Data: "IKu7",
					Size: 3,
				},
			}
			p := PullRespPacket{Token: 4242, Payload: pl}

			b := marshalPullResp(t, p)
			_, err = server.conn.WriteToUDP(b, addr)
			So(err, ShouldBeNil)

			Convey("Then the subscriber receives the txpk", func() {
				select {
				case frame := <-downlinks:
					So(frame.Data, ShouldEqual, "IKu7")
					So(frame.Tmst, ShouldNotBeNil)
					So(*frame.Tmst, ShouldEqual, tmst)
				case <-time.After(time.Second):
					t.Fatal("timeout waiting for downlink")
				}
			})

			Convey("Then the backend acknowledges with TX_ACK", func() {
				b, _, err := server.readPacket(TXACK)
				So(err, ShouldBeNil)
				So(b[1], ShouldEqual, byte(4242%256))
				So(b[2], ShouldEqual, byte(4242/256))
			})
		})
	})
}

func marshalPullResp(t *testing.T, p PullRespPacket) []byte {
	t.Helper()

	jb, err := json.Marshal(p.Payload)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 4, 4+len(jb))
	out[0] = ProtocolVersion2
	out[1] = byte(p.Token % 256)
	out[2] = byte(p.Token / 256)
	out[3] = byte(PullResp)
	return append(out, jb...)
}
