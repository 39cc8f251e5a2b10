// Package radio models the LoRa RF parameters of the simulated device and
// their packet-forwarder string representations.
package radio

// SpreadingFactor defines the LoRa spreading factor.
type SpreadingFactor int

// Available spreading factors.
const (
	SF7  SpreadingFactor = 7
	SF8  SpreadingFactor = 8
	SF9  SpreadingFactor = 9
	SF10 SpreadingFactor = 10
	SF11 SpreadingFactor = 11
	SF12 SpreadingFactor = 12
)

// String implements fmt.Stringer.
func (sf SpreadingFactor) String() string {
	switch sf {
	case SF7:
		return "SF7"
	case SF8:
		return "SF8"
	case SF9:
		return "SF9"
	case SF10:
		return "SF10"
	case SF11:
		return "SF11"
	case SF12:
		return "SF12"
	}
	return ""
}

// Bandwidth defines the LoRa bandwidth in kHz.
type Bandwidth int

// Available bandwidths.
const (
	BW125 Bandwidth = 125
	BW250 Bandwidth = 250
	BW500 Bandwidth = 500
)

// String implements fmt.Stringer.
func (bw Bandwidth) String() string {
	switch bw {
	case BW125:
		return "BW125"
	case BW250:
		return "BW250"
	case BW500:
		return "BW500"
	}
	return ""
}

// CodingRate defines the LoRa forward error-correction rate.
type CodingRate int

// Available coding rates.
const (
	CR45 CodingRate = iota
	CR46
	CR47
	CR48
)

// String implements fmt.Stringer. The returned value matches the codr field
// of the packet-forwarder protocol (e.g. "4/5").
func (cr CodingRate) String() string {
	switch cr {
	case CR45:
		return "4/5"
	case CR46:
		return "4/6"
	case CR47:
		return "4/7"
	case CR48:
		return "4/8"
	}
	return ""
}

// RFConfig holds the RF parameters for a transmission or receive window.
type RFConfig struct {
	Frequency       int
	SpreadingFactor SpreadingFactor
	Bandwidth       Bandwidth
	CodingRate      CodingRate
}

// DataRate returns the packet-forwarder datr string (e.g. "SF7BW125").
func (c RFConfig) DataRate() string {
	return c.SpreadingFactor.String() + c.Bandwidth.String()
}

// FrequencyMHz returns the frequency in MHz.
func (c RFConfig) FrequencyMHz() float64 {
	return float64(c.Frequency) / 1000000.0
}

// TXConfig holds the parameters of a transmit request.
type TXConfig struct {
	RF    RFConfig
	Power int
}
