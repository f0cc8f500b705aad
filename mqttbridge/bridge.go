// Package mqttbridge publishes P100 status pushes to MQTT and forwards raw
// commands received over MQTT to the device.
//
// Topics, under a configurable prefix (default "p100"):
//
//	<prefix>/status/<TOKEN>   status push, JSON {"token","value","text","raw"}
//	<prefix>/command          raw command in, e.g. "VOL(-300)" or "SRC?"
//	<prefix>/response         result of each command, JSON
//	<prefix>/availability     "online" / "offline" (retained, last will)
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/siegeld/steinway-lyngdorf/p100protocol"
)

// DefaultTopicPrefix is used when Config.TopicPrefix is empty.
const DefaultTopicPrefix = "p100"

// Config configures the broker connection and topics.
type Config struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string // random when empty
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration // broker operations and device commands
}

// Client is the subset of mqtt.Client the bridge uses.
type Client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Device is the subset of p100.Device the bridge uses.
type Device interface {
	SetStatusHandler(handler p100protocol.StatusHandler)
	SendRaw(ctx context.Context, command string) (string, error)
}

// StatusMessage is the payload published for a status push.
type StatusMessage struct {
	Token string `json:"token"`
	Value string `json:"value"`
	Text  string `json:"text,omitempty"`
	Raw   string `json:"raw"`
}

// ResponseMessage is the payload published after a forwarded command.
type ResponseMessage struct {
	Command  string `json:"command"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Bridge links one device to one broker.
type Bridge struct {
	cfg    Config
	dev    Device
	client Client
	logger *slog.Logger

	subscribeOnConnect bool

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// New creates a bridge with a paho client built from cfg.
func New(cfg Config, dev Device, logger *slog.Logger) *Bridge {
	cfg = withDefaults(cfg)
	b := newBridge(cfg, dev, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetWill(b.topic("availability"), "offline", cfg.QoS, true)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		b.logger.Info("connected to MQTT broker", "broker", cfg.Broker)
		if err := b.subscribe(); err != nil {
			b.logger.Error("subscribe failed", "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		b.logger.Warn("MQTT connection lost", "error", err)
	})

	b.client = mqtt.NewClient(opts)
	b.subscribeOnConnect = true
	return b
}

// NewWithClient creates a bridge around an existing client.
func NewWithClient(cfg Config, dev Device, client Client, logger *slog.Logger) *Bridge {
	b := newBridge(withDefaults(cfg), dev, logger)
	b.client = client
	return b
}

func newBridge(cfg Config, dev Device, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bridge{
		cfg:    cfg,
		dev:    dev,
		logger: logger.With("component", "mqttbridge"),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.ClientID == "" {
		cfg.ClientID = "p100-" + uuid.NewString()[:8]
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = p100protocol.DefaultTimeout
	}
	return cfg
}

// ClientID returns the MQTT client id in use.
func (b *Bridge) ClientID() string {
	return b.cfg.ClientID
}

func (b *Bridge) topic(parts ...string) string {
	return b.cfg.TopicPrefix + "/" + strings.Join(parts, "/")
}

// Start connects to the broker, subscribes to the command topic and starts
// publishing status pushes.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.New("bridge already running")
	}
	b.running = true
	b.mu.Unlock()

	if err := b.wait(ctx, b.client.Connect()); err != nil {
		b.setStopped()
		return fmt.Errorf("connecting to broker: %w", err)
	}
	if !b.subscribeOnConnect {
		if err := b.subscribe(); err != nil {
			b.client.Disconnect(250)
			b.setStopped()
			return err
		}
	}

	b.dev.SetStatusHandler(b.publishStatus)
	b.publish(b.topic("availability"), true, "online")
	b.logger.Info("bridge started", "prefix", b.cfg.TopicPrefix)
	return nil
}

// Stop unsubscribes, marks the device offline and disconnects. It waits
// for in-flight commands.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	b.dev.SetStatusHandler(nil)
	b.client.Unsubscribe(b.topic("command")).WaitTimeout(b.cfg.Timeout)
	b.wg.Wait()
	b.publish(b.topic("availability"), true, "offline")
	b.client.Disconnect(250)
	b.logger.Info("bridge stopped")
}

func (b *Bridge) setStopped() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

func (b *Bridge) subscribe() error {
	topic := b.topic("command")
	if err := b.wait(context.Background(), b.client.Subscribe(topic, b.cfg.QoS, b.onCommand)); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	b.logger.Debug("subscribed", "topic", topic)
	return nil
}

// wait blocks on token until it completes, ctx is done or the timeout
// passes.
func (b *Bridge) wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(b.cfg.Timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", b.cfg.Timeout)
	}
}

func (b *Bridge) publishStatus(reply p100protocol.Reply) {
	msg := StatusMessage{Token: reply.Token, Value: reply.Value, Text: reply.Text, Raw: reply.Raw}
	b.publishJSON(b.topic("status", reply.Token), true, msg)
}

func (b *Bridge) onCommand(_ mqtt.Client, msg mqtt.Message) {
	command := strings.TrimSpace(string(msg.Payload()))
	if command == "" {
		return
	}

	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()
	b.logger.Debug("command received", "topic", msg.Topic(), "command", command)

	// Queries can take up to the device timeout; keep the MQTT callback
	// goroutine free.
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
		defer cancel()

		resp := ResponseMessage{Command: command}
		out, err := b.dev.SendRaw(ctx, command)
		if err != nil {
			resp.Error = err.Error()
			b.logger.Warn("command failed", "command", command, "error", err)
		} else {
			resp.Response = out
		}
		b.publishJSON(b.topic("response"), false, resp)
	}()
}

func (b *Bridge) publishJSON(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("encoding payload", "topic", topic, "error", err)
		return
	}
	b.publish(topic, retained, payload)
}

func (b *Bridge) publish(topic string, retained bool, payload any) {
	token := b.client.Publish(topic, b.cfg.QoS, retained, payload)
	if err := b.wait(context.Background(), token); err != nil {
		b.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}
