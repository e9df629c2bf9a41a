// SPDX-License-Identifier: MIT

package command

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/events"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/lease"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/log"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/metrics"
)

const (
	localClientID = "local-api"
	localTTL      = 15 * time.Second
)

// Authorizer answers lease queries. Satisfied by *lease.Manager.
type Authorizer interface {
	Validate(clientID string, isLocal, requiresLease, localBypass bool) lease.Decision
}

// AckSink delivers acks: the bus publish to ack/{clientId} plus the
// out-of-band dashboard broadcast.
type AckSink func(clientID string, ack Ack)

// Processor is the single entry point for inbound commands. It enforces
// at-most-once handler execution per commandId.
type Processor struct {
	registry *Registry
	auth     Authorizer
	emitter  *events.Emitter
	ackSink  AckSink
	store    *idemStore
	logger   zerolog.Logger

	localSeq atomic.Uint64
	now      func() time.Time
}

// NewProcessor wires a processor over the given registry and collaborators.
func NewProcessor(registry *Registry, auth Authorizer, emitter *events.Emitter, ackSink AckSink) *Processor {
	return &Processor{
		registry: registry,
		auth:     auth,
		emitter:  emitter,
		ackSink:  ackSink,
		store:    newIdemStore(),
		logger:   log.WithComponent("command"),
		now:      time.Now,
	}
}

// Handle processes one inbound command payload from clientID.
func (p *Processor) Handle(ctx context.Context, payload []byte, clientID string, isLocal bool) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.CommandID == "" {
		// Without a commandId there is nothing to ack against.
		p.logger.Warn().Err(err).
			Str("event", "command.malformed").
			Str(log.FieldClientID, clientID).
			Msg("dropping unparseable command envelope")
		return
	}
	p.handleEnvelope(ctx, env, clientID, isLocal)
}

func (p *Processor) handleEnvelope(ctx context.Context, env Envelope, clientID string, isLocal bool) {
	now := p.now()

	p.emitter.Lifecycle("COMMAND_RECEIVED", events.SeverityInfo, map[string]any{
		"type":      env.Type,
		"commandId": env.CommandID,
		"clientId":  clientID,
		"isLocal":   isLocal,
	})

	// Claim the commandId before any dispatch. QoS 1 redelivery can land a
	// duplicate while the first delivery's handler is still running; the
	// claim keeps it from reaching the handler a second time. The first
	// delivery's terminal ack still reaches the issuer.
	cached, res := p.store.reserve(env.CommandID, now)
	switch res {
	case reserveCached:
		p.logger.Info().
			Str("event", "command.duplicate").
			Str(log.FieldCommandID, env.CommandID).
			Msg("replaying cached terminal ack")
		p.deliver(clientID, cached)
		return
	case reserveInFlight:
		p.logger.Info().
			Str("event", "command.duplicate_in_flight").
			Str(log.FieldCommandID, env.CommandID).
			Msg("dropping redelivery of a command still running")
		return
	}

	// TTL: strict comparison so ttlMs=0 with ts=now is already expired.
	if env.TS+env.TTLMs < now.UnixMilli() {
		p.terminal(clientID, env, AckExpired, "Command expired in transit", nil, now)
		return
	}

	def, known := p.registry.Lookup(env.Type)
	if !known {
		p.terminal(clientID, env, AckRejected, "Unknown command", nil, now)
		return
	}

	decision := p.auth.Validate(clientID, isLocal, def.RequiresLease, def.LocalBypass)
	if !decision.Allowed {
		p.terminal(clientID, env, AckRejected, decision.Reason, nil, now)
		return
	}
	if decision.LocalOverride {
		p.emitter.Lifecycle("LOCAL_OVERRIDE_USED", events.SeverityWarn, map[string]any{
			"type":      env.Type,
			"commandId": env.CommandID,
		})
	}

	p.deliver(clientID, p.ack(env, AckReceived, "", nil, now))

	result, err := def.Handler(ctx, env.Args)
	now = p.now()
	if err != nil {
		// FAILED is not cached: the issuer may retry with a fresh commandId.
		p.terminal(clientID, env, AckFailed, err.Error(), nil, now)
		return
	}
	applied := p.ack(env, AckApplied, result.Message, result.Details, now)
	p.store.complete(env.CommandID, applied, now)
	metrics.RecordCommand(env.Type, string(AckApplied))
	p.deliver(clientID, applied)
}

// HandleLocal runs a locally originated command (HTTP/WebSocket surface)
// through the exact same path as bus commands. Returns the synthetic
// command id so the caller can correlate acks.
func (p *Processor) HandleLocal(ctx context.Context, cmdType string, args json.RawMessage) string {
	id := fmt.Sprintf("local-%d-%06x", p.localSeq.Add(1), rand.Intn(1<<24))
	env := Envelope{
		Schema:    SchemaCommand,
		TS:        p.now().UnixMilli(),
		CommandID: id,
		TTLMs:     localTTL.Milliseconds(),
		Type:      cmdType,
		Args:      args,
	}
	p.handleEnvelope(ctx, env, localClientID, true)
	return id
}

// terminal emits a terminal ack that is not cached (REJECTED, EXPIRED,
// FAILED paths) and releases the in-flight claim so the issuer may retry.
func (p *Processor) terminal(clientID string, env Envelope, status AckStatus, msg string, details map[string]any, now time.Time) {
	p.store.release(env.CommandID)
	metrics.RecordCommand(env.Type, string(status))
	p.logger.Info().
		Str("event", "command.terminal").
		Str(log.FieldCommandID, env.CommandID).
		Str("type", env.Type).
		Str("status", string(status)).
		Str("message", msg).
		Msg("command finished without dispatch")
	p.deliver(clientID, p.ack(env, status, msg, details, now))
}

func (p *Processor) ack(env Envelope, status AckStatus, msg string, details map[string]any, now time.Time) Ack {
	return Ack{
		Schema:    SchemaAck,
		TS:        now.UnixMilli(),
		CommandID: env.CommandID,
		Status:    status,
		Message:   msg,
		Details:   details,
	}
}

func (p *Processor) deliver(clientID string, ack Ack) {
	if p.ackSink != nil {
		p.ackSink(clientID, ack)
	}
}
