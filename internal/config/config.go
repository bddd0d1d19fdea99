// Package config loads the sml2mqtt TOML configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete service configuration.
type Config struct {
	Serial  Serial  `toml:"serial"`
	Broker  Broker  `toml:"broker"`
	Logging Logging `toml:"logging"`
	SML     SML     `toml:"sml"`
	Metrics Metrics `toml:"metrics"`
	Output  Output  `toml:"output"`
}

// Serial configures the optical head.
type Serial struct {
	Device           string        `toml:"device"`
	BaudRate         int           `toml:"baud_rate"`
	ReadTimeout      time.Duration `toml:"read_timeout"`
	InterByteTimeout time.Duration `toml:"inter_byte_timeout"`
	MaxBurst         int           `toml:"max_burst"`
}

// Broker configures the MQTT connection.
type Broker struct {
	Host           string        `toml:"host"`
	Port           int           `toml:"port"`
	ClientID       string        `toml:"client_id"`
	Username       string        `toml:"username"`
	Password       string        `toml:"password"`
	Topic          string        `toml:"topic"`
	QoS            int           `toml:"qos"`
	Retain         bool          `toml:"retain"`
	ConnectTimeout time.Duration `toml:"connect_timeout"`
	RetryInterval  time.Duration `toml:"retry_interval"`
}

// URL returns the paho server URL.
func (b Broker) URL() string {
	return "tcp://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// Logging configures the process logger.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File receives log output in append mode; empty means stdout.
	File string `toml:"file"`
}

// SML configures frame decoding and the reading cadence.
type SML struct {
	Decoder          string        `toml:"decoder"`
	Interval         time.Duration `toml:"interval"`
	KeyFormat        string        `toml:"key_format"`
	VerifyMessageCRC bool          `toml:"verify_message_crc"`
	MaxBuffer        int           `toml:"max_buffer"`
}

// Metrics configures the Prometheus endpoint. Empty Addr disables it.
type Metrics struct {
	Addr string `toml:"addr"`
}

// Output selects where readings go.
type Output struct {
	// Publisher is "mqtt" or "writer".
	Publisher string `toml:"publisher"`
	// Format is the writer format: json, csv or plain.
	Format string `toml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Serial: Serial{
			Device:           "/dev/ttyUSB0",
			BaudRate:         9600,
			ReadTimeout:      5 * time.Second,
			InterByteTimeout: 200 * time.Millisecond,
			MaxBurst:         16 * 1024,
		},
		Broker: Broker{
			Host:           "localhost",
			Port:           1883,
			ClientID:       "sml2mqtt",
			Topic:          "/SMARTHOME/DEFAULT",
			ConnectTimeout: 10 * time.Second,
			RetryInterval:  5 * time.Second,
		},
		Logging: Logging{Level: "info", Format: "text"},
		SML: SML{
			Decoder:   "sml",
			Interval:  15 * time.Second,
			KeyFormat: "short",
			MaxBuffer: 64 * 1024,
		},
		Output: Output{Publisher: "mqtt", Format: "json"},
	}
}

// Load overlays the TOML file at path onto the defaults and validates the
// result. Unknown keys are rejected. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Serial.Device == "" {
		errs = append(errs, errors.New("serial.device is empty"))
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate))
	}
	if c.Serial.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("serial.read_timeout must be positive, got %s", c.Serial.ReadTimeout))
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		errs = append(errs, fmt.Errorf("broker.port out of range: %d", c.Broker.Port))
	}
	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		errs = append(errs, fmt.Errorf("broker.qos must be 0, 1 or 2, got %d", c.Broker.QoS))
	}
	if c.Broker.Topic == "" && c.Output.Publisher == "mqtt" {
		errs = append(errs, errors.New("broker.topic is empty"))
	}
	if c.SML.Interval < 0 {
		errs = append(errs, fmt.Errorf("sml.interval must not be negative, got %s", c.SML.Interval))
	}
	switch strings.ToLower(c.SML.KeyFormat) {
	case "", "short", "full", "hex":
	default:
		errs = append(errs, fmt.Errorf("sml.key_format %q not one of short, full, hex", c.SML.KeyFormat))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q not one of text, json", c.Logging.Format))
	}
	switch c.Output.Publisher {
	case "mqtt", "writer":
	default:
		errs = append(errs, fmt.Errorf("output.publisher %q not one of mqtt, writer", c.Output.Publisher))
	}
	switch strings.ToLower(c.Output.Format) {
	case "json", "csv", "plain":
	default:
		errs = append(errs, fmt.Errorf("output.format %q not one of json, csv, plain", c.Output.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
