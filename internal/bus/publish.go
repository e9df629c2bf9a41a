// SPDX-License-Identifier: MIT

package bus

// Typed publish helpers. The QoS and retention policy of each topic class
// lives here so call sites cannot drift from the topic contract:
//
//	telemetry  QoS 0, not retained
//	health     QoS 1, retained
//	config     QoS 0, retained
//	event      QoS 1, not retained
//	commands   QoS 0, not retained (realtime echo)
//	ack        QoS 1, not retained
//	stream     QoS 1, retained

// PublishTelemetry sends one telemetry record. Fire and forget.
func (c *Client) PublishTelemetry(rec any) error {
	return c.Publish(c.topics.Telemetry(), 0, false, rec)
}

// PublishHealth updates the retained health summary.
func (c *Client) PublishHealth(payload any) error {
	return c.Publish(c.topics.Health(), 1, true, payload)
}

// PublishConfig updates the retained sanitized configuration.
func (c *Client) PublishConfig(payload any) error {
	return c.Publish(c.topics.Config(), 0, true, payload)
}

// PublishEvent sends one edge-triggered or lifecycle event.
func (c *Client) PublishEvent(rec any) error {
	return c.Publish(c.topics.Event(), 1, false, rec)
}

// EchoCommand republishes an inbound command envelope for realtime
// observers.
func (c *Client) EchoCommand(payload []byte) error {
	return c.Publish(c.topics.Commands(), 0, false, payload)
}

// PublishAck sends one acknowledgement to the issuing client.
func (c *Client) PublishAck(clientID string, ack any) error {
	return c.Publish(c.topics.Ack(clientID), 1, false, ack)
}

// PublishStreamStatus updates the retained streaming state.
func (c *Client) PublishStreamStatus(state any) error {
	return c.Publish(c.topics.StreamStatus(), 1, true, state)
}
