package cmd

import (
	"bytes"
	"io/ioutil"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lorawan-sim/virtual-lorawan-device/internal/config"
)

var (
	cfgFile string
	version string
)

var rootCmd = &cobra.Command{
	Use:   "virtual-lorawan-device",
	Short: "Virtual LoRaWAN Device",
	Long: `Virtual LoRaWAN Device simulates class-A LoRaWAN devices against a network
server, speaking the Semtech UDP packet-forwarder protocol instead of
driving real radio hardware.`,
	RunE: run,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file (optional)")
	rootCmd.PersistentFlags().Int("log-level", 4, "debug=5, info=4, error=2, fatal=1, panic=0")

	viper.BindPFlag("general.log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	// default values
	viper.SetDefault("monitoring.prometheus_endpoint", true)
	viper.SetDefault("monitoring.healthcheck_endpoint", true)

	viper.SetDefault("forwarder.server", "localhost:1680")
	viper.SetDefault("forwarder.gateway_id", "0102030405060708")
	viper.SetDefault("forwarder.keep_alive_interval", 10*time.Second)

	viper.SetDefault("simulator.band.name", "EU868")
	viper.SetDefault("simulator.transmit_delay", 5*time.Second)
	viper.SetDefault("simulator.jitter", true)
	viper.SetDefault("simulator.uplink_f_port", 2)
	viper.SetDefault("simulator.uplink_confirmed", true)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute executes the root command.
func Execute(v string) {
	version = v

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func initConfig() {
	config.Version = version

	if cfgFile != "" {
		b, err := ioutil.ReadFile(cfgFile)
		if err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(b)); err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
		}
	} else {
		viper.SetConfigName("virtual-lorawan-device")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/virtual-lorawan-device")
		viper.AddConfigPath("/etc/virtual-lorawan-device")
		if err := viper.ReadInConfig(); err != nil {
			switch err.(type) {
			case viper.ConfigFileNotFoundError:
				log.Warning("No configuration file found, using defaults.")
			default:
				log.WithError(err).Fatal("read configuration file error")
			}
		}
	}

	viperBindEnvs(config.C)

	viperHooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := viper.Unmarshal(&config.C, viper.DecodeHook(viperHooks)); err != nil {
		log.WithError(err).Fatal("unmarshal config error")
	}

	// decode gateway id
	if err := config.C.Forwarder.GatewayID.UnmarshalText([]byte(config.C.Forwarder.GatewayIDString)); err != nil {
		log.WithError(err).Fatal("decode gateway_id error")
	}

	// decode device credentials
	for i := range config.C.Simulator.Devices {
		d := &config.C.Simulator.Devices[i]
		if err := d.DevEUI.UnmarshalText([]byte(d.DevEUIString)); err != nil {
			log.WithError(err).WithField("dev_eui", d.DevEUIString).Fatal("decode dev_eui error")
		}
		if err := d.AppEUI.UnmarshalText([]byte(d.AppEUIString)); err != nil {
			log.WithError(err).WithField("app_eui", d.AppEUIString).Fatal("decode app_eui error")
		}
		if err := d.AppKey.UnmarshalText([]byte(d.AppKeyString)); err != nil {
			log.WithError(err).Fatal("decode app_key error")
		}
	}
}

func viperBindEnvs(iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)
	for i := 0; i < ift.NumField(); i++ {
		v := ifv.Field(i)
		t := ift.Field(i)
		tv, ok := t.Tag.Lookup("mapstructure")
		if !ok {
			tv = strings.ToLower(t.Name)
		}
		if tv == "-" {
			continue
		}

		switch v.Kind() {
		case reflect.Struct:
			viperBindEnvs(v.Interface(), append(parts, tv)...)
		default:
			// Bash doesn't allow env variable names with a dot so
			// bind the double underscore version.
			keyDot := strings.Join(append(parts, tv), ".")
			keyUnderscore := strings.Join(append(parts, tv), "__")
			viper.BindEnv(keyDot, strings.ToUpper(keyUnderscore))
		}
	}
}
