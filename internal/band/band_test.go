package band

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/lorawan-sim/virtual-lorawan-device/internal/config"
	"github.com/lorawan-sim/virtual-lorawan-device/internal/radio"
)

func TestBand(t *testing.T) {
	Convey("Given the EU868 band is configured", t, func() {
		var c config.Config
		c.Simulator.Band.Name = "EU868"
		So(Setup(c), ShouldBeNil)

		Convey("Then the default tx config uses the first channel at its highest data-rate", func() {
			tx, err := DefaultTXConfig()
			So(err, ShouldBeNil)
			So(tx.RF, ShouldResemble, radio.RFConfig{
				Frequency:       868100000,
				SpreadingFactor: radio.SF7,
				Bandwidth:       radio.BW125,
				CodingRate:      radio.CR45,
			})
			So(tx.Power, ShouldEqual, 14)
		})

		Convey("Then the rx2 config uses the band defaults", func() {
			rf, err := RX2Config()
			So(err, ShouldBeNil)
			So(rf, ShouldResemble, radio.RFConfig{
				Frequency:       869525000,
				SpreadingFactor: radio.SF12,
				Bandwidth:       radio.BW125,
				CodingRate:      radio.CR45,
			})
		})
	})

	Convey("Given an unknown band name", t, func() {
		var c config.Config
		c.Simulator.Band.Name = "XX000"

		Convey("Then Setup returns an error", func() {
			So(Setup(c), ShouldNotBeNil)
		})
	})
}
