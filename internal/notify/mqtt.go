package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/agni/internal/log"
)

// Presence payloads on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	// DefaultConnectTimeout bounds the initial broker connection.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultRetryInterval spaces connection attempts.
	DefaultRetryInterval = 5 * time.Second
)

// MQTTConfig configures the broker notifier.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"-"`
	// TopicPrefix defaults to "agni".
	TopicPrefix string `yaml:"topic_prefix"`
	// ConnectTimeout defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// RetryInterval defaults to DefaultRetryInterval.
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// AlertTopic returns the topic alerts for deviceID are published on.
func (c MQTTConfig) AlertTopic(deviceID string) string {
	return c.prefix() + "/" + deviceID + "/alert"
}

// StatusTopic returns the retained presence topic for deviceID.
func (c MQTTConfig) StatusTopic(deviceID string) string {
	return c.prefix() + "/" + deviceID + "/status"
}

func (c MQTTConfig) prefix() string {
	if c.TopicPrefix == "" {
		return "agni"
	}
	return c.TopicPrefix
}

// AlertPayload is the JSON body of an alert.
type AlertPayload struct {
	Alert AlertPayloadInner `json:"alert"`
}

// AlertPayloadInner carries the alert fields.
type AlertPayloadInner struct {
	Timestamp  string `json:"timestamp"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	Episode    string `json:"episode,omitempty"`
}

// FormatAlertPayload encodes msg for the alert topic.
func FormatAlertPayload(msg Message) ([]byte, error) {
	return json.Marshal(AlertPayload{
		Alert: AlertPayloadInner{
			Timestamp:  msg.At.UTC().Format(time.RFC3339),
			Title:      msg.Title,
			Body:       msg.Body,
			DeviceID:   msg.DeviceID,
			DeviceName: msg.DeviceName,
			Episode:    msg.Episode,
		},
	})
}

// MQTT publishes alerts to a broker and keeps a retained presence flag with
// a last-will of "offline".
type MQTT struct {
	cfg      MQTTConfig
	deviceID string
	client   paho.Client

	mu        sync.RWMutex
	connected bool
}

func clientOptions(cfg MQTTConfig, deviceID string) *paho.ClientOptions {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "agni-" + deviceID
	}
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retry).
		SetMaxReconnectInterval(30 * time.Second).
		SetWill(cfg.StatusTopic(deviceID), StatusOffline, 1, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	return opts
}

// NewMQTT connects to the broker and announces the device online.
func NewMQTT(cfg MQTTConfig, deviceID string) (*MQTT, error) {
	m := &MQTT{cfg: cfg, deviceID: deviceID}

	opts := clientOptions(cfg, deviceID)
	opts.OnConnect = func(c paho.Client) {
		m.setConnected(true)
		log.Info(log.Fields{"broker": cfg.Broker}, "mqtt connection established")
		// Retained presence is re-sent on every reconnect.
		c.Publish(cfg.StatusTopic(deviceID), 1, true, StatusOnline)
	}
	opts.OnConnectionLost = func(c paho.Client, err error) {
		m.setConnected(false)
		log.Warn(log.Fields{"broker": cfg.Broker, "error": err}, "mqtt connection lost, will auto-reconnect")
	}

	m.client = paho.NewClient(opts)
	token := m.client.Connect()
	if !token.WaitTimeout(m.connectTimeout()) {
		// Stop the retry loop so an abandoned client never comes online.
		m.client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		m.client.Disconnect(0)
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return m, nil
}

func (m *MQTT) connectTimeout() time.Duration {
	if m.cfg.ConnectTimeout > 0 {
		return m.cfg.ConnectTimeout
	}
	return DefaultConnectTimeout
}

func (m *MQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

// IsConnected reports the last known connection state.
func (m *MQTT) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Send publishes msg on the alert topic with QoS 1.
func (m *MQTT) Send(ctx context.Context, msg Message) error {
	payload, err := FormatAlertPayload(msg)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	token := m.client.Publish(m.cfg.AlertTopic(m.deviceID), 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close publishes "offline" and disconnects.
func (m *MQTT) Close() error {
	token := m.client.Publish(m.cfg.StatusTopic(m.deviceID), 1, true, StatusOffline)
	token.WaitTimeout(2 * time.Second)
	m.client.Disconnect(1000)
	return nil
}
