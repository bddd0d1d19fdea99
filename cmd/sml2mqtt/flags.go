package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"gitlab.com/d21d3q/gosml/internal/config"
)

const envPrefix = "SML2MQTT_"

type runFlags struct {
	configPath string
	device     string
	topic      string
	broker     string
	logLevel   string
	output     string
	once       bool
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "path to the TOML configuration file")
	fs.StringVar(&f.device, "device", "", "serial device of the optical head")
	fs.StringVar(&f.topic, "topic", "", "MQTT topic readings are published to")
	fs.StringVar(&f.broker, "broker", "", "MQTT broker as host:port")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	fs.StringVar(&f.output, "output", "", "mqtt, or json, csv or plain on stdout")
	fs.BoolVar(&f.once, "once", false, "exit after the first published reading")
}

// envOverride sets every flag not given on the command line from its
// SML2MQTT_<FLAG> environment variable, dashes becoming underscores.
func envOverride(fs *pflag.FlagSet, log logrus.FieldLogger) error {
	var firstErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		envName := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		value, ok := os.LookupEnv(envName)
		if !ok || value == "" {
			return
		}
		if err := fs.Set(f.Name, value); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("environment variable %s: %w", envName, err)
			}
			return
		}
		log.WithFields(logrus.Fields{"env": envName, "flag": f.Name}).Debug("environment overrides flag")
	})
	return firstErr
}

// apply overlays the flags that were set onto cfg.
func (f *runFlags) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	if fs.Changed("device") {
		cfg.Serial.Device = f.device
	}
	if fs.Changed("topic") {
		cfg.Broker.Topic = f.topic
	}
	if fs.Changed("broker") {
		host, port, err := net.SplitHostPort(f.broker)
		if err != nil {
			return fmt.Errorf("--broker: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("--broker port: %w", err)
		}
		cfg.Broker.Host, cfg.Broker.Port = host, p
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if fs.Changed("output") {
		switch out := strings.ToLower(f.output); out {
		case "mqtt":
			cfg.Output.Publisher = "mqtt"
		default:
			cfg.Output.Publisher = "writer"
			cfg.Output.Format = out
		}
	}
	return cfg.Validate()
}
