package config

import (
	"time"

	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
)

// Version defines the virtual-lorawan-device version.
var Version string

// Config defines the configuration structure.
type Config struct {
	General struct {
		LogLevel int `mapstructure:"log_level"`
	}

	Monitoring struct {
		Bind                string `mapstructure:"bind"`
		PrometheusEndpoint  bool   `mapstructure:"prometheus_endpoint"`
		HealthcheckEndpoint bool   `mapstructure:"healthcheck_endpoint"`
	} `mapstructure:"monitoring"`

	Forwarder struct {
		// Server holds the host:port of the network-server UDP endpoint.
		Server string `mapstructure:"server"`

		GatewayID         lorawan.EUI64 `mapstructure:"-"`
		GatewayIDString   string        `mapstructure:"gateway_id"`
		KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
	} `mapstructure:"forwarder"`

	Simulator struct {
		Band struct {
			Name band.Name
		}

		// TransmitDelay defines the base delay between the handling of a
		// device response and the next scheduled uplink.
		TransmitDelay time.Duration `mapstructure:"transmit_delay"`

		// Jitter adds a random 0-127 ms delay to session bootstrap and
		// post-downlink uplink scheduling, de-synchronizing simulated
		// devices.
		Jitter bool `mapstructure:"jitter"`

		UplinkFPort     uint8 `mapstructure:"uplink_f_port"`
		UplinkConfirmed bool  `mapstructure:"uplink_confirmed"`

		Devices []DeviceConfig `mapstructure:"devices"`
	} `mapstructure:"simulator"`
}

// DeviceConfig holds the credentials of a single simulated device.
type DeviceConfig struct {
	DevEUI lorawan.EUI64     `mapstructure:"-"`
	AppEUI lorawan.EUI64     `mapstructure:"-"`
	AppKey lorawan.AES128Key `mapstructure:"-"`

	DevEUIString string `mapstructure:"dev_eui"`
	AppEUIString string `mapstructure:"app_eui"`
	AppKeyString string `mapstructure:"app_key"`
}

// C holds the global configuration.
var C Config
