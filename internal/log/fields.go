// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldWallID    = "wall_id"
	FieldClientID  = "client_id"
	FieldCommandID = "command_id"
	FieldViewerID  = "viewer_id"
	FieldOwner     = "owner"

	// Bus fields
	FieldBroker = "broker"
	FieldTopic  = "topic"
	FieldQoS    = "qos"

	// State fields
	FieldEvent    = "event"
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldMode     = "mode"

	// Process fields
	FieldPID  = "pid"
	FieldPort = "port"
)
