package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultTopic       = "telemetry/frames"
	defaultMQTTTimeout = 5 * time.Second
	disconnectQuiesce  = 250 // milliseconds
)

// MQTTConfig describes a broker connection and the topic carrying frames,
// one frame per message.
type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"clientId"`
	Topic    string        `yaml:"topic"`
	QoS      byte          `yaml:"qos"`
	Timeout  time.Duration `yaml:"-"`
}

func (c *MQTTConfig) Validate() error {
	if c.Broker == "" {
		return errors.New("mqtt: broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt: invalid QoS %d", c.QoS)
	}
	return nil
}

func (c *MQTTConfig) topic() string {
	if c.Topic == "" {
		return DefaultTopic
	}
	return c.Topic
}

func (c *MQTTConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultMQTTTimeout
	}
	return c.Timeout
}

func connect(config MQTTConfig, defaultClientID string) (mqtt.Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clientID := config.ClientID
	if clientID == "" {
		clientID = defaultClientID
	}

	opts := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(config.timeout())

	client := mqtt.NewClient(opts)
	if err := wait(client.Connect(), config.timeout()); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", config.Broker, err)
	}
	return client, nil
}

func wait(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return errors.New("timed out")
	}
	return token.Error()
}

// MQTTSink publishes each frame as one message, without the line terminator.
type MQTTSink struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

func NewMQTTSink(config MQTTConfig) (*MQTTSink, error) {
	client, err := connect(config, "flight-telemetry-transmitter")
	if err != nil {
		return nil, err
	}

	return &MQTTSink{
		client:  client,
		topic:   config.topic(),
		qos:     config.QoS,
		timeout: config.timeout(),
	}, nil
}

func (s *MQTTSink) Send(frame []byte) error {
	payload := bytes.TrimRight(frame, "\r\n")
	if err := wait(s.client.Publish(s.topic, s.qos, false, payload), s.timeout); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", s.topic, err)
	}
	return nil
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(disconnectQuiesce)
	return nil
}

// mqttReader turns the messages of a subscription into a stream of newline
// terminated lines.
type mqttReader struct {
	*io.PipeReader
	pw      *io.PipeWriter
	client  mqtt.Client
	topic   string
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// SubscribeMQTT subscribes to the frame topic and returns its messages as a
// line stream. Reads block until a message arrives; Close ends the stream.
//
// Messages are handed over unbuffered: while the caller is not reading, the
// client's message router blocks and the broker connection applies
// back-pressure. Close releases a blocked delivery.
func SubscribeMQTT(config MQTTConfig) (io.ReadCloser, error) {
	client, err := connect(config, "flight-telemetry-receiver")
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	r := &mqttReader{PipeReader: pr, pw: pw, client: client, topic: config.topic(), timeout: config.timeout()}

	if err = wait(client.Subscribe(r.topic, config.QoS, lineHandler(pw)), config.timeout()); err != nil {
		client.Disconnect(disconnectQuiesce)
		return nil, fmt.Errorf("mqtt: subscribe to %s: %w", r.topic, err)
	}
	return r, nil
}

// Close ends the stream, then unsubscribes and disconnects. The pipe is
// closed first so the router can handle the unsubscribe. Later calls return
// the result of the first.
func (r *mqttReader) Close() error {
	r.closeOnce.Do(func() {
		err := errors.Join(r.PipeReader.Close(), r.pw.Close())

		if uerr := wait(r.client.Unsubscribe(r.topic), r.timeout); uerr != nil {
			err = errors.Join(err, fmt.Errorf("mqtt: unsubscribe from %s: %w", r.topic, uerr))
		}
		r.client.Disconnect(disconnectQuiesce)

		r.closeErr = err
	})
	return r.closeErr
}

// lineHandler writes every message payload to w as one line. Messages
// arriving after the reader was closed are dropped.
func lineHandler(w io.Writer) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		payload := bytes.TrimRight(msg.Payload(), "\r\n")

		line := make([]byte, 0, len(payload)+1)
		line = append(line, payload...)
		line = append(line, '\n')

		_, _ = w.Write(line)
	}
}
