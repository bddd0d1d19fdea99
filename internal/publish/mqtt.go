package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"gitlab.com/d21d3q/gosml/internal/meter"
	"gitlab.com/d21d3q/gosml/internal/obis"
)

// ErrNotConnected is returned by Publish before Connect succeeded.
var ErrNotConnected = errors.New("publish: mqtt client not connected")

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	// Broker is a paho server URL such as tcp://localhost:1883.
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	KeyFormat      obis.Format
}

// client is the subset of mqtt.Client used here.
type client interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes readings as one JSON document per reading.
type MQTT struct {
	cfg    MQTTConfig
	client client
	log    logrus.FieldLogger
}

// MQTTOption customises an MQTT publisher.
type MQTTOption func(*MQTT)

// WithMQTTLogger sets the logger.
func WithMQTTLogger(log logrus.FieldLogger) MQTTOption {
	return func(m *MQTT) { m.log = log }
}

func withClient(c client) MQTTOption {
	return func(m *MQTT) { m.client = c }
}

// NewMQTT prepares a publisher. Call Connect before publishing.
func NewMQTT(cfg MQTTConfig, opts ...MQTTOption) *MQTT {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	m := &MQTT{cfg: cfg, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithFields(logrus.Fields{"component": "mqtt", "broker": cfg.Broker})
	if m.client == nil {
		m.client = mqtt.NewClient(m.clientOptions())
	}
	return m
}

func (m *MQTT) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.Broker).
		SetClientID(m.cfg.ClientID).
		SetConnectTimeout(m.cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			m.log.Info("connected to broker")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.log.WithError(err).Warn("connection to broker lost")
		})
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	return opts
}

// Connect dials the broker, retrying every RetryInterval until it succeeds
// or ctx is done.
func (m *MQTT) Connect(ctx context.Context) error {
	for {
		err := wait(ctx, m.client.Connect(), m.cfg.ConnectTimeout)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.log.WithError(err).WithField("retry_in", m.cfg.RetryInterval).Warn("cannot connect to broker")
		t := time.NewTimer(m.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Publish sends the reading payload to the configured topic.
func (m *MQTT) Publish(ctx context.Context, reading meter.Reading) error {
	if !m.client.IsConnected() {
		return ErrNotConnected
	}
	body, err := json.Marshal(Payload(reading.Records, m.cfg.KeyFormat))
	if err != nil {
		return fmt.Errorf("publish: encode payload: %w", err)
	}
	token := m.client.Publish(m.cfg.Topic, m.cfg.QoS, m.cfg.Retain, body)
	if err := wait(ctx, token, m.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("publish: topic %s: %w", m.cfg.Topic, err)
	}
	m.log.WithFields(logrus.Fields{"topic": m.cfg.Topic, "bytes": len(body)}).Debug("reading published")
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return fmt.Errorf("mqtt: no response within %s", timeout)
	}
}
