// Package remote mirrors a clip matrix over MQTT. Slot updates are published
// as msgpack batches and slot commands are received on a command topic.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"go-surface/clip"
	"go-surface/config"
)

// Transport is the part of an MQTT client the bridge uses
type Transport interface {
	Publish(topic string, qos byte, payload []byte) error
	Subscribe(topic string, qos byte, handler func(payload []byte)) error
	Close()
}

// Bridge connects one matrix to a broker. Commands are queued by the MQTT
// goroutine and applied by the goroutine owning the matrix via Apply.
type Bridge struct {
	t        Transport
	prefix   string
	qos      byte
	matrixID string
	commands chan Command

	mu        sync.Mutex
	published uint64
	errors    uint64
	dropped   atomic.Uint64
}

// New creates a bridge for the matrix on top of t
func New(t Transport, cfg config.RemoteConfig, matrixID string) *Bridge {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "go-surface"
	}
	return &Bridge{
		t:        t,
		prefix:   prefix,
		qos:      cfg.QoS,
		matrixID: matrixID,
		commands: make(chan Command, 64),
	}
}

// UpdatesTopic is where update batches go
func (b *Bridge) UpdatesTopic() string {
	return fmt.Sprintf("%s/%s/updates", b.prefix, b.matrixID)
}

// CommandsTopic is where slot commands come from
func (b *Bridge) CommandsTopic() string {
	return fmt.Sprintf("%s/%s/commands", b.prefix, b.matrixID)
}

// Start subscribes to the command topic
func (b *Bridge) Start() error {
	if err := b.t.Subscribe(b.CommandsTopic(), b.qos, b.onCommand); err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.CommandsTopic(), err)
	}
	slog.Info("remote bridge started", "commands", b.CommandsTopic(), "updates", b.UpdatesTopic())
	return nil
}

func (b *Bridge) onCommand(payload []byte) {
	cmd, err := DecodeCommand(payload)
	if err != nil {
		slog.Warn("invalid remote command", "err", err)
		return
	}
	select {
	case b.commands <- cmd:
	default:
		b.dropped.Add(1)
		slog.Warn("remote command queue full, dropping command", "action", cmd.Action)
	}
}

// Apply executes up to n queued commands on the matrix. Failures are logged
// and counted.
func (b *Bridge) Apply(m *clip.Matrix, n int) int {
	for i := range n {
		select {
		case cmd := <-b.commands:
			if err := cmd.Apply(m); err != nil {
				b.mu.Lock()
				b.errors++
				b.mu.Unlock()
				slog.Warn("remote command failed", "action", cmd.Action, "column", cmd.Column, "row", cmd.Row, "err", err)
			}
		default:
			return i
		}
	}
	return n
}

// Forward publishes the batches of the hub subscription until ctx ends or
// the subscription closes
func (b *Bridge) Forward(ctx context.Context, hub *clip.Hub) {
	updates, unsubscribe := hub.Subscribe(b.matrixID, 16)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-updates:
			if !ok {
				return
			}
			b.Publish(batch)
		}
	}
}

// Publish sends one batch
func (b *Bridge) Publish(batch []clip.Update) error {
	payload, err := clip.EncodeUpdates(batch)
	if err == nil {
		err = b.t.Publish(b.UpdatesTopic(), b.qos, payload)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.errors++
		return fmt.Errorf("publishing updates: %w", err)
	}
	b.published++
	return nil
}

// Stats contains bridge statistics
type Stats struct {
	Published uint64
	Errors    uint64
	Dropped   uint64
}

func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Published: b.published, Errors: b.errors, Dropped: b.dropped.Load()}
}

func (b *Bridge) Close() {
	b.t.Close()
}

// mqttTransport adapts a paho client
type mqttTransport struct {
	client mqtt.Client
}

// Connect opens an MQTT connection to cfg.Broker (host:port)
func Connect(cfg config.RemoteConfig) (Transport, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID("go-surface-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		slog.Info("mqtt connection established", "broker", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	slog.Info("connecting to mqtt broker", "broker", cfg.Broker)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return &mqttTransport{client: client}, nil
}

func (t *mqttTransport) Publish(topic string, qos byte, payload []byte) error {
	token := t.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

func (t *mqttTransport) Subscribe(topic string, qos byte, handler func([]byte)) error {
	token := t.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscription timeout")
	}
	return token.Error()
}

func (t *mqttTransport) Close() {
	if t.client.IsConnected() {
		t.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
}
