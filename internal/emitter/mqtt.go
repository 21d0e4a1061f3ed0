package emitter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/washsense/washsense/internal/cue"
	"github.com/washsense/washsense/internal/fsm"
)

// Config carries the MQTT connection settings.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// Emitter publishes washing session events to an MQTT broker. Topics are
// {prefix}/transitions, {prefix}/score and {prefix}/health.
type Emitter struct {
	cfg    Config
	client mqtt.Client
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// Stats contains emitter counters.
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

type transitionPayload struct {
	SessionID string    `json:"session_id"`
	FromState fsm.State `json:"from_state"`
	ToState   fsm.State `json:"to_state"`
	Cues      cue.Map   `json:"cues,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type scorePayload struct {
	SessionID string    `json:"session_id"`
	Score     fsm.Score `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

type healthPayload struct {
	SessionID string    `json:"session_id"`
	State     fsm.State `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates an emitter. Call Connect before publishing.
func New(cfg Config, logger *slog.Logger) (*Emitter, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker cannot be empty")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("mqtt client id cannot be empty")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "washsense"
	}

	return &Emitter{
		cfg:       cfg,
		logger:    logger,
		published: make(map[string]uint64),
	}, nil
}

// Connect establishes the broker connection with auto-reconnect.
func (e *Emitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		e.logger.Info("MQTT connected",
			slog.String("broker", e.cfg.Broker),
			slog.String("client_id", e.cfg.ClientID),
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		e.logger.Warn("MQTT connection lost, auto-reconnecting",
			slog.String("broker", e.cfg.Broker),
			slog.String("error", err.Error()),
		)
	}

	e.client = mqtt.NewClient(opts)

	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// PublishTransition announces a state change.
func (e *Emitter) PublishTransition(sessionID string, tr fsm.Transition, cues cue.Map) error {
	return e.publish(e.cfg.TopicPrefix+"/transitions", transitionPayload{
		SessionID: sessionID,
		FromState: tr.From,
		ToState:   tr.To,
		Cues:      cues,
		Timestamp: time.Now(),
	})
}

// PublishScore announces the final session score.
func (e *Emitter) PublishScore(sessionID string, score fsm.Score) error {
	return e.publish(e.cfg.TopicPrefix+"/score", scorePayload{
		SessionID: sessionID,
		Score:     score,
		Timestamp: time.Now(),
	})
}

// PublishHealth announces liveness with the current state.
func (e *Emitter) PublishHealth(sessionID string, state fsm.State) error {
	return e.publish(e.cfg.TopicPrefix+"/health", healthPayload{
		SessionID: sessionID,
		State:     state,
		Timestamp: time.Now(),
	})
}

func (e *Emitter) publish(topic string, payload any) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	token := e.client.Publish(topic, e.cfg.QoS, false, data)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	e.logger.Debug("Published",
		slog.String("topic", topic),
		slog.Int("size", len(data)),
	)
	return nil
}

// Disconnect closes the broker connection.
func (e *Emitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.logger.Info("MQTT disconnected")
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
}

// GetStats returns emitter counters.
func (e *Emitter) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) countError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors++
}
