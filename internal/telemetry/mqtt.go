// Package telemetry bridges the agent to an MQTT broker: bus events are
// published as JSON, and commands arriving on a topic drive the connection.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voxel-agent/agentlink/internal/config"
	"github.com/voxel-agent/agentlink/internal/connector"
	"github.com/voxel-agent/agentlink/internal/events"
	"github.com/voxel-agent/agentlink/internal/util"
)

// Topic suffixes, joined to the configured prefix.
const (
	TopicState         = "state"
	TopicChat          = "chat"
	TopicWorld         = "world"
	TopicStatus        = "status"
	TopicAdmin         = "admin"
	TopicCommand       = "command"
	TopicCommandResult = "command/result"
)

// Command is a JSON command received on the command topic.
type Command struct {
	Op    string      `json:"op"`
	Text  string      `json:"text,omitempty"`
	X     json.Number `json:"x"`
	Y     json.Number `json:"y"`
	Z     json.Number `json:"z"`
	Pitch *float32    `json:"pitch,omitempty"`
	Yaw   *float32    `json:"yaw,omitempty"`
	Item  uint16      `json:"item,omitempty"`
}

// position returns the coordinates as floats for movement.
func (c Command) position() (x, y, z float32, err error) {
	var out [3]float32
	for i, n := range []json.Number{c.X, c.Y, c.Z} {
		if n == "" {
			return 0, 0, 0, fmt.Errorf("%w: %s", errMissingCoordinate, axes[i])
		}
		v, err := strconv.ParseFloat(string(n), 32)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid %s coordinate %s", axes[i], n)
		}
		out[i] = float32(v)
	}
	return out[0], out[1], out[2], nil
}

// block returns the coordinates of a node. Fractional and out of range
// values are rejected.
func (c Command) block() (x, y, z int32, err error) {
	var out [3]int32
	for i, n := range []json.Number{c.X, c.Y, c.Z} {
		if n == "" {
			return 0, 0, 0, fmt.Errorf("%w: %s", errMissingCoordinate, axes[i])
		}
		v, err := strconv.ParseInt(string(n), 10, 32)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid %s block coordinate %s", axes[i], n)
		}
		out[i] = int32(v)
	}
	return out[0], out[1], out[2], nil
}

// CommandResult is published after every command.
type CommandResult struct {
	Op    string `json:"op"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// errUnknownOp is returned for commands with an unrecognized op.
var errUnknownOp = errors.New("unknown command op")

var errMissingCoordinate = errors.New("missing coordinate")

var axes = [3]string{"x", "y", "z"}

// MQTTHandler manages the MQTT connection, publishes bus events and
// executes remote commands.
type MQTTHandler struct {
	cfg       config.MQTTConfig
	eventBus  *events.EventBus
	commander connector.Commander
	client    mqtt.Client
	logger    zerolog.Logger

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a new MQTT bridge. It does not connect.
func NewMQTTHandler(cfg config.MQTTConfig, eventBus *events.EventBus, commander connector.Commander) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()
	h := &MQTTHandler{
		cfg:       cfg,
		eventBus:  eventBus,
		commander: commander,
		logger:    log.With().Str("component", "mqtt").Logger(),
		metadata: map[string]interface{}{
			"hostname":  sysInfo.Hostname,
			"os":        sysInfo.OS,
			"cpu_model": sysInfo.CPUModel,
			"cpu_cores": sysInfo.CPUCores,
			"memory_mb": sysInfo.TotalMemory,
		},
	}

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("agentlink-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)

	if cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		h.logger.Info().Msg("MQTT connected")
		// Subscriptions are dropped with a clean session, so renew them.
		token := client.Subscribe(h.topic(TopicCommand), 1, h.onCommandMessage)
		go func() {
			if token.Wait() && token.Error() != nil {
				h.logger.Warn().Err(token.Error()).Msg("MQTT subscribe failed")
			}
		}()
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		h.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	h.client = mqtt.NewClient(opts)
	return h, nil
}

// Start connects to the broker, subscribes to bus events and blocks until
// ctx is cancelled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	h.logger.Info().Msg("MQTT disconnected")
	return nil
}

// subscribeEvents registers event handlers for MQTT publishing.
func (h *MQTTHandler) subscribeEvents() {
	h.eventBus.Subscribe(events.EventConnectionState, "mqtt.state", h.forward(TopicState))
	h.eventBus.Subscribe(events.EventAccessDenied, "mqtt.denied", h.forward(TopicState))
	h.eventBus.Subscribe(events.EventChatMessage, "mqtt.chat", h.forward(TopicChat))
	h.eventBus.Subscribe(events.EventTimeOfDay, "mqtt.timeOfDay", h.forward(TopicWorld))
	h.eventBus.Subscribe(events.EventBlockData, "mqtt.blockData", h.forward(TopicWorld))
	h.eventBus.Subscribe(events.EventHeartbeat, "mqtt.heartbeat", h.forward(TopicStatus))
}

func (h *MQTTHandler) forward(suffix string) events.HandlerFunc {
	return func(ctx context.Context, event events.Event) error {
		h.publish(h.topic(suffix), map[string]interface{}{
			"event":   event.Type,
			"payload": event.Payload,
		})
		return nil
	}
}

func (h *MQTTHandler) topic(suffix string) string {
	return strings.TrimSuffix(h.cfg.TopicPrefix, "/") + "/" + suffix
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	if h.client == nil || !h.client.IsConnected() {
		return
	}

	data, err := json.Marshal(h.buildMessage(payload))
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

func (h *MQTTHandler) onCommandMessage(_ mqtt.Client, msg mqtt.Message) {
	result := h.handleCommand(msg.Payload())
	h.publish(h.topic(TopicCommandResult), result)
}

// handleCommand decodes and executes one command.
func (h *MQTTHandler) handleCommand(data []byte) CommandResult {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.logger.Warn().Err(err).Msg("ignoring malformed MQTT command")
		return CommandResult{OK: false, Error: fmt.Sprintf("malformed command: %v", err)}
	}

	err := h.execute(cmd)
	if err != nil {
		h.logger.Warn().Err(err).Str("op", cmd.Op).Msg("MQTT command failed")
		return CommandResult{Op: cmd.Op, OK: false, Error: err.Error()}
	}
	h.logger.Debug().Str("op", cmd.Op).Msg("MQTT command executed")
	return CommandResult{Op: cmd.Op, OK: true}
}

func (h *MQTTHandler) execute(cmd Command) error {
	switch cmd.Op {
	case "chat":
		return h.commander.SendChatMessage(cmd.Text)
	case "move":
		var opts []connector.LookOption
		if cmd.Pitch != nil {
			opts = append(opts, connector.WithPitch(*cmd.Pitch))
		}
		if cmd.Yaw != nil {
			opts = append(opts, connector.WithYaw(*cmd.Yaw))
		}
		x, y, z, err := cmd.position()
		if err != nil {
			return err
		}
		return h.commander.MoveTo(x, y, z, opts...)
	case "dig":
		x, y, z, err := cmd.block()
		if err != nil {
			return err
		}
		return h.commander.DigBlock(x, y, z)
	case "place":
		x, y, z, err := cmd.block()
		if err != nil {
			return err
		}
		return h.commander.PlaceBlock(x, y, z, cmd.Item)
	default:
		return fmt.Errorf("%w: %q", errUnknownOp, cmd.Op)
	}
}

// PublishShutdown sends a shutdown message to the MQTT broker.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(h.topic(TopicAdmin), map[string]interface{}{
		"event": events.EventShutdown,
	})
}
