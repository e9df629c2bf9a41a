// SPDX-License-Identifier: MIT

// Package bus provides the single logical MQTT connection of the agent:
// topic conventions scoped by wall id, per-topic QoS/retention, Last-Will
// registration, and live switching between configured brokers.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/config"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/log"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/metrics"
)

const (
	connectTimeout = 15 * time.Second
	retryInterval  = 5 * time.Second
)

var (
	ErrUnknownBroker = errors.New("unknown broker id")
	ErrNotConfigured = errors.New("bus client has no brokers configured")
)

// Handler receives every inbound bus message.
type Handler func(topic string, payload []byte)

// ConnEvent describes a connection lifecycle change surfaced for logging and
// event emission.
type ConnEvent struct {
	Kind   string // "connected" | "reconnected" | "lost" | "switched"
	Broker string
	From   string
	To     string
	Reason string
}

// Publisher is the outbound surface components publish through.
type Publisher interface {
	Publish(topic string, qos byte, retain bool, payload any) error
}

// Client owns the active MQTT connection. All methods are safe for
// concurrent use.
type Client struct {
	topics Topics
	logger zerolog.Logger

	mu        sync.Mutex
	brokers   []config.Broker
	active    config.Broker
	cli       mqtt.Client
	onMessage Handler
	connected bool // set after first successful connect

	// OnConnEvent, StreamStatus and ClientID are fixed before Connect.
	OnConnEvent  func(ConnEvent)
	StreamStatus func() string
	ClientID     string

	newClient func(*mqtt.ClientOptions) mqtt.Client // test seam
}

// New creates a bus client for wallID over the given broker list. activeID
// selects the initial broker; empty means the first entry.
func New(wallID string, brokers []config.Broker, activeID string) (*Client, error) {
	if len(brokers) == 0 {
		return nil, ErrNotConfigured
	}
	active := brokers[0]
	if activeID != "" {
		found := false
		for _, b := range brokers {
			if b.ID == activeID {
				active, found = b, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBroker, activeID)
		}
	}
	return &Client{
		topics:    Topics{WallID: wallID},
		logger:    log.WithComponent("bus"),
		brokers:   brokers,
		active:    active,
		ClientID:  "vu-watchdog-" + wallID,
		newClient: mqtt.NewClient,
	}, nil
}

// Topics returns the topic builder for this wall.
func (c *Client) Topics() Topics { return c.topics }

// ActiveBroker returns the currently selected broker.
func (c *Client) ActiveBroker() config.Broker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Connect establishes the connection to the active broker, registers the
// offline Last-Will, publishes retained online status and subscribes to the
// inbound topics. onMessage receives every inbound message.
func (c *Client) Connect(onMessage Handler) error {
	c.mu.Lock()
	c.onMessage = onMessage
	broker := c.active
	c.mu.Unlock()
	return c.connectTo(broker)
}

func (c *Client) connectTo(broker config.Broker) error {
	will, _ := json.Marshal(c.statusPayload("offline"))

	opts := mqtt.NewClientOptions().
		AddBroker(broker.ServerURL).
		SetClientID(c.ClientID).
		SetUsername(broker.Username).
		SetPassword(broker.Password).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetConnectRetryInterval(retryInterval).
		SetOrderMatters(false).
		SetBinaryWill(c.topics.Status(), will, 1, true)

	first := true
	opts.SetOnConnectHandler(func(cli mqtt.Client) {
		kind := "reconnected"
		if first {
			first = false
			kind = "connected"
		}
		c.logger.Info().
			Str("event", "bus."+kind).
			Str(log.FieldBroker, broker.ID).
			Msg("broker connection established")
		c.announce(cli)
		c.subscribe(cli)
		if c.OnConnEvent != nil {
			c.OnConnEvent(ConnEvent{Kind: kind, Broker: broker.ID})
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn().Err(err).
			Str("event", "bus.connection_lost").
			Str(log.FieldBroker, broker.ID).
			Msg("broker connection lost, client will retry")
		if c.OnConnEvent != nil {
			c.OnConnEvent(ConnEvent{Kind: "lost", Broker: broker.ID})
		}
	})

	cli := c.newClient(opts)
	token := cli.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect to broker %s: timeout after %s", broker.ID, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker %s: %w", broker.ID, err)
	}

	c.mu.Lock()
	c.cli = cli
	c.active = broker
	c.connected = true
	c.mu.Unlock()
	return nil
}

// announce publishes the retained online status payload.
func (c *Client) announce(cli mqtt.Client) {
	payload, _ := json.Marshal(c.statusPayload("online"))
	cli.Publish(c.topics.Status(), 1, true, payload)
}

func (c *Client) subscribe(cli mqtt.Client) {
	forward := func(_ mqtt.Client, m mqtt.Message) {
		c.mu.Lock()
		h := c.onMessage
		c.mu.Unlock()
		if h != nil {
			h(m.Topic(), m.Payload())
		}
	}
	subs := map[string]byte{
		c.topics.CommandWildcard(): 1,
		c.topics.Lease():           1,
		c.topics.Control():         1,
		c.topics.WebRTCJoin():      1,
		c.topics.WebRTCAnswer():    1,
		c.topics.WebRTCIce():       1,
		c.topics.WebRTCLeave():     1,
	}
	for topic, qos := range subs {
		if token := cli.Subscribe(topic, qos, forward); token.WaitTimeout(connectTimeout) && token.Error() != nil {
			c.logger.Error().Err(token.Error()).
				Str("event", "bus.subscribe_failed").
				Str(log.FieldTopic, topic).
				Msg("subscription failed")
		}
	}
}

func (c *Client) statusPayload(status string) StatusPayload {
	stream := "stopped"
	if c.StreamStatus != nil {
		stream = c.StreamStatus()
	}
	return StatusPayload{
		Status:    status,
		WallID:    c.topics.WallID,
		Timestamp: time.Now().UnixMilli(),
		Stream:    StreamStatus{Status: stream},
	}
}

// Publish sends payload on topic. Non-[]byte payloads are JSON-encoded.
// Publishing while disconnected is a silent no-op so a broker outage cannot
// fan out into tight error loops.
func (c *Client) Publish(topic string, qos byte, retain bool, payload any) error {
	c.mu.Lock()
	cli := c.cli
	c.mu.Unlock()

	class := c.topics.Class(topic)
	if cli == nil || !cli.IsConnected() {
		metrics.RecordPublish(class, "skipped")
		return nil
	}

	raw, ok := payload.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			metrics.RecordPublish(class, "encode_error")
			return fmt.Errorf("encode payload for %s: %w", topic, err)
		}
	}

	token := cli.Publish(topic, qos, retain, raw)
	// QoS 0 tokens complete immediately; QoS 1 completion is left to the
	// client's background flow, errors surface via the connection handlers.
	if qos == 0 {
		token.Wait()
	}
	metrics.RecordPublish(class, "ok")
	return nil
}

// SwitchBroker disconnects from the active broker and connects to the broker
// with the given id. No synthetic offline status is published: the Last-Will
// is the offline contract. A switch to the already-active, connected broker
// is a no-op.
func (c *Client) SwitchBroker(id, reason string) error {
	c.mu.Lock()
	target, found := config.Broker{}, false
	for _, b := range c.brokers {
		if b.ID == id {
			target, found = b, true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownBroker, id)
	}
	from := c.active
	cli := c.cli
	if target.ID == from.ID && cli != nil && cli.IsConnected() {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if cli != nil {
		cli.Disconnect(250)
	}

	if err := c.connectTo(target); err != nil {
		return err
	}

	metrics.BrokerSwitchTotal.Inc()
	c.logger.Warn().
		Str("event", "bus.switched").
		Str("from", from.ID).
		Str("to", target.ID).
		Str("reason", reason).
		Msg("broker switched")
	if c.OnConnEvent != nil {
		c.OnConnEvent(ConnEvent{Kind: "switched", Broker: target.ID, From: from.ID, To: target.ID, Reason: reason})
	}
	return nil
}

// Disconnect publishes retained offline status and closes the connection.
// Used only on graceful shutdown; abrupt deaths rely on the Last-Will.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cli := c.cli
	c.cli = nil
	c.mu.Unlock()
	if cli == nil {
		return
	}
	if cli.IsConnected() {
		payload, _ := json.Marshal(c.statusPayload("offline"))
		cli.Publish(c.topics.Status(), 1, true, payload).WaitTimeout(2 * time.Second)
	}
	cli.Disconnect(500)
}
