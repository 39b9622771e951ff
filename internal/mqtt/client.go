// Package mqtt receives device telemetry over MQTT. Devices publish one
// JSON document per sample to {prefix}/{deviceID}/telemetry; the client
// feeds every accepted payload into the ingest pipeline.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pondpal/pondpal-go/internal/conf"
	"github.com/pondpal/pondpal-go/internal/errors"
	"github.com/pondpal/pondpal-go/internal/ingest"
	"github.com/pondpal/pondpal-go/internal/logging"
)

const (
	connectTimeout   = 10 * time.Second
	reconnectMaxWait = 2 * time.Minute
	telemetryQoS     = 1
)

// Client is the MQTT telemetry ingest client.
type Client struct {
	settings conf.MQTTSettings
	pipeline *ingest.Pipeline
	client   pahomqtt.Client
	logger   *slog.Logger
}

// NewClient creates an MQTT ingest client.
func NewClient(settings conf.MQTTSettings, pipeline *ingest.Pipeline) *Client {
	return &Client{
		settings: settings,
		pipeline: pipeline,
		logger:   logging.ForService("mqtt"),
	}
}

// Connect establishes the broker connection and subscribes to the
// telemetry topic. The paho client keeps reconnecting and resubscribing on
// its own afterwards.
func (c *Client) Connect(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions().
		AddBroker(c.settings.Broker).
		SetClientID(c.settings.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(reconnectMaxWait).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	if c.settings.Username != "" {
		opts.SetUsername(c.settings.Username)
		opts.SetPassword(c.settings.Password)
	}

	c.client = pahomqtt.NewClient(opts)

	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return errors.Newf("connecting to MQTT broker %s: %w", c.settings.Broker, err).
			Component("mqtt").
			Category(errors.CategoryMQTT).
			Build()
	}
	return nil
}

// Disconnect closes the broker connection gracefully.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

func (c *Client) topic() string {
	return c.settings.TopicPrefix + "/+/telemetry"
}

func (c *Client) onConnect(client pahomqtt.Client) {
	topic := c.topic()
	token := client.Subscribe(topic, telemetryQoS, c.onTelemetry)
	token.Wait()
	if err := token.Error(); err != nil {
		c.logger.Error("telemetry subscription failed", "topic", topic, "error", err)
		return
	}
	c.logger.Info("connected to MQTT broker", "broker", c.settings.Broker, "topic", topic)
}

func (c *Client) onConnectionLost(client pahomqtt.Client, err error) {
	c.logger.Warn("MQTT connection lost, reconnecting", "broker", c.settings.Broker, "error", err)
}

func (c *Client) onTelemetry(client pahomqtt.Client, msg pahomqtt.Message) {
	deviceID, err := deviceFromTopic(c.settings.TopicPrefix, msg.Topic())
	if err != nil {
		c.logger.Warn("ignoring telemetry on unexpected topic", "topic", msg.Topic(), "error", err)
		return
	}

	reading, err := parsePayload(deviceID, msg.Payload())
	if err != nil {
		c.logger.Warn("ignoring malformed telemetry payload",
			"device_id", deviceID,
			"error", err,
		)
		return
	}

	if err := c.pipeline.Ingest(context.Background(), "mqtt", reading); err != nil {
		c.logger.Error("telemetry ingest failed",
			"device_id", deviceID,
			"error", err,
		)
	}
}

// deviceFromTopic extracts the device ID from {prefix}/{deviceID}/telemetry.
func deviceFromTopic(prefix, topic string) (string, error) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", fmt.Errorf("topic %q lacks prefix %q", topic, prefix)
	}
	deviceID, ok := strings.CutSuffix(rest, "/telemetry")
	if !ok || deviceID == "" || strings.Contains(deviceID, "/") {
		return "", fmt.Errorf("topic %q is not a telemetry topic", topic)
	}
	return deviceID, nil
}

// parsePayload decodes the telemetry document into a reading.
func parsePayload(deviceID string, payload []byte) (ingest.Reading, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return ingest.Reading{}, fmt.Errorf("decoding payload: %w", err)
	}
	return ingest.ParseDocument(deviceID, doc)
}
