package band

import (
	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"
	loraband "github.com/brocaar/lorawan/band"

	"github.com/lorawan-sim/virtual-lorawan-device/internal/config"
	"github.com/lorawan-sim/virtual-lorawan-device/internal/radio"
)

var band loraband.Band

// Setup sets up the band with the given configuration.
func Setup(c config.Config) error {
	bandConfig, err := loraband.GetConfig(c.Simulator.Band.Name, false, lorawan.DwellTimeNoLimit)
	if err != nil {
		return errors.Wrap(err, "get band config error")
	}
	band = bandConfig
	return nil
}

// Band returns the configured band.
func Band() loraband.Band {
	return band
}

// DefaultTXConfig returns the TX parameters the simulated device uses for
// its uplinks: the band's first enabled uplink channel at its highest
// data-rate.
func DefaultTXConfig() (radio.TXConfig, error) {
	indices := band.GetEnabledUplinkChannelIndices()
	if len(indices) == 0 {
		return radio.TXConfig{}, errors.New("no enabled uplink channels")
	}

	c, err := band.GetUplinkChannel(indices[0])
	if err != nil {
		return radio.TXConfig{}, errors.Wrap(err, "get uplink channel error")
	}

	rf, err := rfConfig(int(c.Frequency), c.MaxDR)
	if err != nil {
		return radio.TXConfig{}, err
	}
	return radio.TXConfig{RF: rf, Power: 14}, nil
}

// RX2Config returns the RF parameters of the band's RX2 receive window.
func RX2Config() (radio.RFConfig, error) {
	defaults := band.GetDefaults()
	return rfConfig(int(defaults.RX2Frequency), defaults.RX2DataRate)
}

func rfConfig(frequency, drIndex int) (radio.RFConfig, error) {
	dr, err := band.GetDataRate(drIndex)
	if err != nil {
		return radio.RFConfig{}, errors.Wrap(err, "get data-rate error")
	}
	if dr.Modulation != loraband.LoRaModulation {
		return radio.RFConfig{}, errors.New("data-rate is not lora modulated")
	}

	return radio.RFConfig{
		Frequency:       frequency,
		SpreadingFactor: radio.SpreadingFactor(dr.SpreadFactor),
		Bandwidth:       radio.Bandwidth(dr.Bandwidth),
		CodingRate:      radio.CR45,
	}, nil
}
