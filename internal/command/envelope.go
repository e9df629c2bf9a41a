// SPDX-License-Identifier: MIT

// Package command parses inbound command envelopes and drives them through
// idempotency, TTL and lease checks to a registered handler, emitting the
// acknowledgement lifecycle along the way.
package command

import "encoding/json"

// Schema tags for version-gating subscribers.
const (
	SchemaCommand = "vu.watchdog.command.v1"
	SchemaAck     = "vu.watchdog.ack.v1"
)

// Envelope is an inbound command. CommandID is client-chosen and unique per
// intended effect; it is the idempotency key.
type Envelope struct {
	Schema    string          `json:"schema"`
	TS        int64           `json:"ts"`
	CommandID string          `json:"commandId"`
	TTLMs     int64           `json:"ttlMs"`
	Type      string          `json:"type"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// AckStatus enumerates acknowledgement states.
type AckStatus string

const (
	AckReceived AckStatus = "RECEIVED"
	AckAccepted AckStatus = "ACCEPTED"
	AckApplied  AckStatus = "APPLIED"
	AckRejected AckStatus = "REJECTED"
	AckFailed   AckStatus = "FAILED"
	AckExpired  AckStatus = "EXPIRED"
)

// Terminal reports whether the status ends the ack lifecycle of a command.
func (s AckStatus) Terminal() bool {
	switch s {
	case AckApplied, AckRejected, AckFailed, AckExpired:
		return true
	}
	return false
}

// Ack is one acknowledgement on the ack/{clientId} topic.
type Ack struct {
	Schema    string         `json:"schema"`
	TS        int64          `json:"ts"`
	CommandID string         `json:"commandId"`
	Status    AckStatus      `json:"status"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}
