package cmd

import (
	"os"
	"text/template"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lorawan-sim/virtual-lorawan-device/internal/config"
)

const configTemplate = `[general]
# Log level
#
# debug=5, info=4, warning=3, error=2, fatal=1, panic=0
log_level={{ .General.LogLevel }}


# Monitoring settings.
[monitoring]
# Bind
#
# The ip:port to bind the monitoring endpoint to. When left blank, the
# monitoring endpoint is disabled.
bind="{{ .Monitoring.Bind }}"

# Prometheus metrics endpoint.
#
# When set to true, Prometheus metrics are served at '/metrics'.
prometheus_endpoint={{ .Monitoring.PrometheusEndpoint }}

# Health check endpoint.
#
# When set to true, a health check endpoint is served at '/health'.
healthcheck_endpoint={{ .Monitoring.HealthcheckEndpoint }}


# Packet-forwarder settings.
#
# The simulator presents itself to the network server as a single gateway
# speaking the Semtech UDP packet-forwarder protocol.
[forwarder]
# Server.
#
# The host:port of the network server UDP listener.
server="{{ .Forwarder.Server }}"

# Gateway ID.
#
# The 8 byte gateway identifier (hex encoded) under which all simulated
# traffic is reported.
gateway_id="{{ .Forwarder.GatewayIDString }}"

# Keep-alive interval.
#
# Interval at which PULL_DATA keep-alive frames are sent, so that the
# network server keeps routing downlinks to this gateway.
keep_alive_interval="{{ .Forwarder.KeepAliveInterval }}"


# Simulator settings.
[simulator]
# Transmit delay.
#
# Delay between the completion of one uplink cycle and the start of the
# next one.
transmit_delay="{{ .Simulator.TransmitDelay }}"

# Jitter.
#
# When set to true, a random delay of up to 127ms is added before each
# join-request and scheduled uplink, so that multiple devices do not
# transmit in lockstep.
jitter={{ .Simulator.Jitter }}

# Uplink FPort.
uplink_f_port={{ .Simulator.UplinkFPort }}

# Uplink confirmed.
#
# When set to true, uplinks request an acknowledgement from the network
# server.
uplink_confirmed={{ .Simulator.UplinkConfirmed }}

  # Band configuration.
  [simulator.band]
  # Name of the band.
  #
  # Valid values: AS923, AU915, CN470, CN779, EU433, EU868, IN865, KR920,
  # RU864, US915.
  name="{{ .Simulator.Band.Name }}"

{{ range $i, $element := .Simulator.Devices }}
  # Device credentials.
  [[simulator.devices]]
  # Device EUI (hex encoded).
  dev_eui="{{ $element.DevEUIString }}"

  # Application EUI / JoinEUI (hex encoded).
  app_eui="{{ $element.AppEUIString }}"

  # Application key (hex encoded).
  app_key="{{ $element.AppKeyString }}"
{{ end }}
`

var configCmd = &cobra.Command{
	Use:   "configfile",
	Short: "Print the Virtual LoRaWAN Device configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := template.Must(template.New("config").Parse(configTemplate))
		err := t.Execute(os.Stdout, &config.C)
		if err != nil {
			return errors.Wrap(err, "execute config template error")
		}
		return nil
	},
}
