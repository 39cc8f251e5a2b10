package device

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/lorawan-sim/virtual-lorawan-device/internal/forwarder"
	"github.com/lorawan-sim/virtual-lorawan-device/internal/radio"
)

// interceptFatalf replaces the fatal path with a recorder for the duration of
// a test.
func interceptFatalf() (*[]string, func()) {
	var calls []string
	orig := fatalf
	fatalf = func(format string, args ...interface{}) {
		calls = append(calls, fmt.Sprintf(format, args...))
	}
	return &calls, func() { fatalf = orig }
}

func TestUDPRadioTransmit(t *testing.T) {
	Convey("Given a radio bound to an uplink channel", t, func() {
		txChan := make(chan forwarder.RXPK, 1)
		events := make(chan internalEvent, 10)
		r := newUDPRadio(txChan, events, time.Now())

		cfg := radio.TXConfig{
			RF: radio.RFConfig{
				Frequency:       868100000,
				SpreadingFactor: radio.SF7,
				Bandwidth:       radio.BW125,
				CodingRate:      radio.CR45,
			},
			Power: 14,
		}

		Convey("When transmitting a payload", func() {
			payload := []byte{1, 2, 3, 4}
			doneMs := r.Transmit(cfg, payload)

			Convey("Then the published rxpk carries the payload and synthetic quality", func() {
				pk := <-txChan
				So(pk.Data, ShouldEqual, base64.StdEncoding.EncodeToString(payload))
				So(pk.Size, ShouldEqual, uint16(4))
				So(pk.DatR, ShouldEqual, "SF7BW125")
				So(pk.CodR, ShouldEqual, "4/5")
				So(pk.Freq, ShouldEqual, 868.1)
				So(pk.Modu, ShouldEqual, "LORA")
				So(pk.LSNR, ShouldEqual, 5.5)
				So(pk.RSSI, ShouldEqual, int16(-112))
				So(pk.Stat, ShouldEqual, int8(1))
			})

			Convey("Then the returned clock offset is near zero", func() {
				So(doneMs, ShouldBeLessThan, uint32(1000))
			})
		})

		Convey("When the uplink channel is full", func() {
			calls, restore := interceptFatalf()
			defer restore()

			txChan <- forwarder.RXPK{}
			r.Transmit(cfg, []byte{1})

			Convey("Then the overflow is fatal", func() {
				So(*calls, ShouldHaveLength, 1)
				So((*calls)[0], ShouldContainSubstring, "uplink queue overflow")
			})
		})
	})
}

func TestUDPRadioReceive(t *testing.T) {
	Convey("Given a radio", t, func() {
		txChan := make(chan forwarder.RXPK, 1)
		events := make(chan internalEvent, 10)
		r := newUDPRadio(txChan, events, time.Now())

		Convey("When a well-formed frame arrives", func() {
			payload := []byte{0x20, 0xab, 0xcd}
			q := r.OnPhysicalEvent(forwarder.TXPK{
				Data: base64.StdEncoding.EncodeToString(payload),
			})

			Convey("Then the buffer holds the decoded payload", func() {
				So(r.ReceivedPayload(), ShouldResemble, payload)
			})

			Convey("Then the synthetic downlink quality is reported", func() {
				So(q.RSSI, ShouldEqual, int16(-115))
				So(q.SNR, ShouldEqual, 4.0)
			})

			Convey("Then a second frame replaces the buffer contents", func() {
				r.OnPhysicalEvent(forwarder.TXPK{
					Data: base64.StdEncoding.EncodeToString([]byte{9}),
				})
				So(r.ReceivedPayload(), ShouldResemble, []byte{9})
			})
		})

		Convey("When the frame payload is not valid base64", func() {
			calls, restore := interceptFatalf()
			defer restore()

			r.OnPhysicalEvent(forwarder.TXPK{Data: "not base64!!"})

			Convey("Then the decode failure is fatal", func() {
				So(*calls, ShouldHaveLength, 1)
				So((*calls)[0], ShouldContainSubstring, "decode error")
			})
		})

		Convey("When the frame payload fills the buffer exactly", func() {
			calls, restore := interceptFatalf()
			defer restore()

			payload := make([]byte, 256)
			r.OnPhysicalEvent(forwarder.TXPK{
				Data: base64.StdEncoding.EncodeToString(payload),
			})

			Convey("Then it is accepted", func() {
				So(*calls, ShouldBeEmpty)
				So(r.ReceivedPayload(), ShouldHaveLength, 256)
			})
		})

		Convey("When the frame payload exceeds the buffer", func() {
			calls, restore := interceptFatalf()
			defer restore()

			payload := make([]byte, 257)
			r.OnPhysicalEvent(forwarder.TXPK{
				Data: base64.StdEncoding.EncodeToString(payload),
			})

			Convey("Then the overflow is fatal", func() {
				So(*calls, ShouldHaveLength, 1)
				So((*calls)[0], ShouldContainSubstring, "rx buffer overflow")
			})
		})
	})
}

func TestUDPRadioTimer(t *testing.T) {
	Convey("Given a radio with a shared clock origin", t, func() {
		txChan := make(chan forwarder.RXPK, 1)
		events := make(chan internalEvent, 10)
		r := newUDPRadio(txChan, events, time.Now())

		Convey("When arming a timer in the near future", func() {
			r.Timer(r.elapsedMs() + 20)

			Convey("Then it fires a timeout event", func() {
				select {
				case ev := <-events:
					So(ev, ShouldHaveSameTypeAs, timeoutEvent{})
				case <-time.After(time.Second):
					t.Fatal("timer did not fire")
				}
			})

			Convey("Then the armed delay is recorded", func() {
				So(r.WindowStart(), ShouldBeBetweenOrEqual, uint32(1), uint32(20))
			})
		})

		Convey("When arming a timer in the past", func() {
			time.Sleep(5 * time.Millisecond)
			r.Timer(0)

			Convey("Then it fires immediately", func() {
				So(r.WindowStart(), ShouldEqual, uint32(0))
				select {
				case <-events:
				case <-time.After(time.Second):
					t.Fatal("timer did not fire")
				}
			})
		})
	})
}
