// SPDX-License-Identifier: MIT

package command

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// legacyActions is the fixed translation map for the transitional control
// topic. It is intentionally not extended; new callers target
// command/{clientId}.
var legacyActions = map[string]string{
	"restart":   TypeRestartVuos,
	"start":     TypeStartVuos,
	"stop":      TypeStopVuos,
	"quit":      TypeQuitWatchdog,
	"telemetry": TypeRequestTelemetry,
}

type legacyEnvelope struct {
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args,omitempty"`
}

var legacySeq atomic.Uint64

// HandleLegacy translates a legacy control message into the modern envelope
// and runs it through the normal path. Unknown actions are logged and
// dropped. Legacy commands are never local.
func (p *Processor) HandleLegacy(ctx context.Context, payload []byte) {
	var env legacyEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		p.logger.Warn().Err(err).
			Str("event", "command.legacy_malformed").
			Msg("dropping unparseable legacy control message")
		return
	}
	cmdType, ok := legacyActions[env.Action]
	if !ok {
		p.logger.Warn().
			Str("event", "command.legacy_unknown_action").
			Str("action", env.Action).
			Msg("dropping unknown legacy action")
		return
	}

	now := p.now()
	modern := Envelope{
		Schema:    SchemaCommand,
		TS:        now.UnixMilli(),
		CommandID: fmt.Sprintf("legacy-%d-%d", now.UnixMilli(), legacySeq.Add(1)),
		TTLMs:     localTTL.Milliseconds(),
		Type:      cmdType,
		Args:      env.Args,
	}
	p.logger.Info().
		Str("event", "command.legacy_translated").
		Str("action", env.Action).
		Str("type", cmdType).
		Msg("legacy control message translated")
	p.handleEnvelope(ctx, modern, "legacy", false)
}
