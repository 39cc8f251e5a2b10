package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lorawan-sim/virtual-lorawan-device/internal/band"
	"github.com/lorawan-sim/virtual-lorawan-device/internal/config"
	"github.com/lorawan-sim/virtual-lorawan-device/internal/device"
	"github.com/lorawan-sim/virtual-lorawan-device/internal/forwarder"
	"github.com/lorawan-sim/virtual-lorawan-device/internal/mac"
	"github.com/lorawan-sim/virtual-lorawan-device/internal/monitoring"
)

var backend *forwarder.Backend

func run(cmd *cobra.Command, args []string) error {
	tasks := []func() error{
		setLogLevel,
		printStartMessage,
		setupBand,
		setupMonitoring,
		setupForwarder,
		startDevices,
	}

	for _, t := range tasks {
		if err := t(); err != nil {
			log.Fatal(err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.WithField("signal", <-sigChan).Info("signal received")
	log.Warning("stopping virtual-lorawan-device")
	if err := backend.Close(); err != nil {
		log.Fatal(err)
	}

	return nil
}

func setLogLevel() error {
	log.SetLevel(log.Level(uint8(config.C.General.LogLevel)))
	return nil
}

func printStartMessage() error {
	log.WithFields(log.Fields{
		"version": version,
		"band":    config.C.Simulator.Band.Name,
		"devices": len(config.C.Simulator.Devices),
	}).Info("starting Virtual LoRaWAN Device")
	return nil
}

func setupBand() error {
	if err := band.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup band error")
	}
	return nil
}

func setupMonitoring() error {
	if err := monitoring.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup monitoring error")
	}
	return nil
}

func setupForwarder() error {
	var err error
	backend, err = forwarder.NewBackend(config.C)
	if err != nil {
		return errors.Wrap(err, "setup forwarder backend error")
	}
	return nil
}

func startDevices() error {
	if len(config.C.Simulator.Devices) == 0 {
		return errors.New("no devices configured")
	}

	txConfig, err := band.DefaultTXConfig()
	if err != nil {
		return errors.Wrap(err, "get default tx config error")
	}
	rx2Config, err := band.RX2Config()
	if err != nil {
		return errors.Wrap(err, "get rx2 config error")
	}

	telemetry := monitoring.NewTelemetry()

	for _, dc := range config.C.Simulator.Devices {
		macConfig := mac.Config{
			DevEUI: dc.DevEUI,
			AppEUI: dc.AppEUI,
			AppKey: dc.AppKey,
			Uplink: txConfig,
			RX2:    rx2Config,
		}

		d := device.New(
			backend.TXPacketChan(),
			backend.Subscribe(),
			func(r device.Radio) device.Engine {
				return mac.New(r, macConfig)
			},
			device.Options{
				TransmitDelay:   config.C.Simulator.TransmitDelay,
				Jitter:          config.C.Simulator.Jitter,
				UplinkFPort:     config.C.Simulator.UplinkFPort,
				UplinkConfirmed: config.C.Simulator.UplinkConfirmed,
				Telemetry:       telemetry,
			},
		)

		log.WithField("dev_eui", dc.DevEUI).Info("starting device")
		go d.Run()
	}

	return nil
}
