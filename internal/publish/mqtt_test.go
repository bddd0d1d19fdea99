package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"gitlab.com/d21d3q/gosml/internal/obis"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	connectErrs  []error
	connects     int
	connected    bool
	publishErr   error
	published    []published
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token {
	c.connects++
	if len(c.connectErrs) > 0 {
		err := c.connectErrs[0]
		c.connectErrs = c.connectErrs[1:]
		if err != nil {
			return newToken(err)
		}
	}
	c.connected = true
	return newToken(nil)
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, published{topic, qos, retained, payload.([]byte)})
	return newToken(c.publishErr)
}

func (c *fakeClient) Disconnect(uint) {
	c.connected = false
	c.disconnected = true
}

func newTestMQTT(c client) *MQTT {
	log, _ := test.NewNullLogger()
	return NewMQTT(MQTTConfig{
		Broker:        "tcp://localhost:1883",
		Topic:         "/SMARTHOME/DEFAULT",
		QoS:           1,
		Retain:        true,
		RetryInterval: time.Millisecond,
		KeyFormat:     obis.FormatShort,
	}, WithMQTTLogger(log), withClient(c))
}

func TestMQTTConnectRetries(t *testing.T) {
	c := &fakeClient{connectErrs: []error{errors.New("refused"), errors.New("refused")}}
	m := newTestMQTT(c)

	require.NoError(t, m.Connect(context.Background()))
	require.Equal(t, 3, c.connects)
	require.True(t, c.IsConnected())
}

func TestMQTTConnectCancelled(t *testing.T) {
	c := &fakeClient{connectErrs: []error{errors.New("refused")}}
	m := newTestMQTT(c)
	m.cfg.RetryInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, m.Connect(ctx), context.DeadlineExceeded)
}

func TestMQTTPublish(t *testing.T) {
	c := &fakeClient{}
	m := newTestMQTT(c)
	require.NoError(t, m.Connect(context.Background()))

	require.NoError(t, m.Publish(context.Background(), fixtureReading(t)))
	require.Len(t, c.published, 1)

	msg := c.published[0]
	require.Equal(t, "/SMARTHOME/DEFAULT", msg.topic)
	require.Equal(t, byte(1), msg.qos)
	require.True(t, msg.retained)

	var got map[string]Entry
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	require.InDelta(t, 290663.8, got["1.8.0"].DataValue, 1e-9)

	require.NoError(t, m.Close())
	require.True(t, c.disconnected)
}

func TestMQTTPublishErrors(t *testing.T) {
	c := &fakeClient{}
	m := newTestMQTT(c)
	require.ErrorIs(t, m.Publish(context.Background(), fixtureReading(t)), ErrNotConnected)

	require.NoError(t, m.Connect(context.Background()))
	c.publishErr = errors.New("broker gone")
	require.ErrorContains(t, m.Publish(context.Background(), fixtureReading(t)), "broker gone")
}
