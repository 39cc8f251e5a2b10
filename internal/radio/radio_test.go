package radio

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRFConfig(t *testing.T) {
	Convey("Given a set of RF configurations", t, func() {
		tests := []struct {
			Name            string
			RFConfig        RFConfig
			ExpectedDataR   string
			ExpectedCodR    string
			ExpectedFreqMHz float64
		}{
			{
				Name: "EU868 default channel",
				RFConfig: RFConfig{
					Frequency:       868100000,
					SpreadingFactor: SF7,
					Bandwidth:       BW125,
					CodingRate:      CR45,
				},
				ExpectedDataR:   "SF7BW125",
				ExpectedCodR:    "4/5",
				ExpectedFreqMHz: 868.1,
			},
			{
				Name: "US915 500 kHz channel",
				RFConfig: RFConfig{
					Frequency:       903000000,
					SpreadingFactor: SF8,
					Bandwidth:       BW500,
					CodingRate:      CR48,
				},
				ExpectedDataR:   "SF8BW500",
				ExpectedCodR:    "4/8",
				ExpectedFreqMHz: 903,
			},
			{
				Name: "EU868 RX2 window",
				RFConfig: RFConfig{
					Frequency:       869525000,
					SpreadingFactor: SF12,
					Bandwidth:       BW125,
					CodingRate:      CR45,
				},
				ExpectedDataR:   "SF12BW125",
				ExpectedCodR:    "4/5",
				ExpectedFreqMHz: 869.525,
			},
		}

		for _, test := range tests {
			Convey("Testing: "+test.Name, func() {
				So(test.RFConfig.DataRate(), ShouldEqual, test.ExpectedDataR)
				So(test.RFConfig.CodingRate.String(), ShouldEqual, test.ExpectedCodR)
				So(test.RFConfig.FrequencyMHz(), ShouldEqual, test.ExpectedFreqMHz)
			})
		}
	})
}

func TestSpreadingFactor(t *testing.T) {
	Convey("Given all spreading factors", t, func() {
		tests := map[SpreadingFactor]string{
			SF7:  "SF7",
			SF8:  "SF8",
			SF9:  "SF9",
			SF10: "SF10",
			SF11: "SF11",
			SF12: "SF12",
		}
		for sf, expected := range tests {
			So(sf.String(), ShouldEqual, expected)
		}

		Convey("Then an out of range value has no representation", func() {
			So(SpreadingFactor(6).String(), ShouldEqual, "")
		})
	})
}
