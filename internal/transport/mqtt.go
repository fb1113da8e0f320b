package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/protocol"
)

// ErrTimeout is returned when the broker does not confirm in time.
var ErrTimeout = errors.New("mqtt: timed out")

// Publisher is the subset of mqtt.Client used to send commands.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Subscriber is the subset of mqtt.Client used to receive commands.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// MQTTLink publishes each command line on a topic with QoS 1.
type MQTTLink struct {
	pub     Publisher
	topic   string
	timeout time.Duration
	client  mqtt.Client // nil when built from a bare Publisher
}

// NewMQTTLink wraps an already connected publisher.
func NewMQTTLink(pub Publisher, topic string, timeout time.Duration) *MQTTLink {
	return &MQTTLink{pub: pub, topic: topic, timeout: timeout}
}

// Connect builds and connects a paho client.
func Connect(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)
	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect %s: %w", broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", broker, err)
	}
	debug.Info("Connected to MQTT broker %s as %s", broker, clientID)
	return c, nil
}

// DialMQTT connects to broker and returns a link publishing on topic.
func DialMQTT(broker, clientID, topic string, timeout time.Duration) (*MQTTLink, error) {
	c, err := Connect(broker, clientID, timeout)
	if err != nil {
		return nil, err
	}
	l := NewMQTTLink(c, topic, timeout)
	l.client = c
	return l, nil
}

func (l *MQTTLink) Send(c protocol.Command) error {
	token := l.pub.Publish(l.topic, 1, false, []byte(c.Line()))
	if !token.WaitTimeout(l.timeout) {
		return fmt.Errorf("publish %s: %w", c.Kind, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", c.Kind, err)
	}
	debug.Command("tx", c.String())
	return nil
}

func (l *MQTTLink) Close() error {
	if l.client != nil {
		l.client.Disconnect(250)
	}
	return nil
}

// MQTTSubscribe forwards every line of every message on topic to out.
// The callback runs on paho's goroutine and blocks while out is full.
func MQTTSubscribe(sub Subscriber, topic string, timeout time.Duration, out chan<- string) error {
	token := sub.Subscribe(topic, 1, func(_ mqtt.Client, m mqtt.Message) {
		for _, line := range strings.Split(string(m.Payload()), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out <- line
			}
		}
	})
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("subscribe %s: %w", topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	debug.Info("Subscribed to %s", topic)
	return nil
}
