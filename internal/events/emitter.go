// SPDX-License-Identifier: MIT

// Package events turns successive condition evaluations into edge-triggered
// events: {id}_ON on activation, {id}_OFF on clearance, {id}_REMINDER while
// active, plus MODE_CHANGED transitions and imperative lifecycle markers.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/health"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/log"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/metrics"
)

// SchemaEvent versions event payloads.
const SchemaEvent = "vu.watchdog.event.v1"

// reminderInterval is the cadence of _REMINDER events while a condition
// stays active.
const reminderInterval = 10 * time.Minute

// Record is one event as published on the event topic.
type Record struct {
	Schema   string         `json:"schema"`
	TS       int64          `json:"ts"`
	WallID   string         `json:"wallId"`
	Type     string         `json:"type"`
	Severity Severity       `json:"severity"`
	Details  map[string]any `json:"details,omitempty"`
}

// Sink receives every emitted event (bus publish plus local broadcast).
type Sink func(Record)

// Emitter holds the edge-detection state between evaluations.
type Emitter struct {
	wallID string
	sink   Sink
	logger zerolog.Logger

	mu           sync.Mutex
	prevActive   map[string]bool
	lastReminder map[string]time.Time
	prevMode     health.Mode

	now func() time.Time
}

// New creates an emitter delivering into sink.
func New(wallID string, sink Sink) *Emitter {
	return &Emitter{
		wallID:       wallID,
		sink:         sink,
		logger:       log.WithComponent("events"),
		prevActive:   make(map[string]bool),
		lastReminder: make(map[string]time.Time),
		prevMode:     health.ModeStarting,
		now:          time.Now,
	}
}

// Observe consumes one evaluation round: condition states plus the derived
// mode. It emits the edge transitions since the previous round.
func (e *Emitter) Observe(states []health.State, mode health.Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()

	for _, s := range states {
		prev := e.prevActive[s.ID]
		switch {
		case !prev && s.Active:
			e.emit(Record{
				Type:     s.ID + "_ON",
				Severity: SeverityFor(s.ID),
				Details:  map[string]any{"condition": s.ID, "level": string(s.Level)},
			}, now)
			e.lastReminder[s.ID] = now
		case prev && !s.Active:
			e.emit(Record{
				Type:     s.ID + "_OFF",
				Severity: SeverityInfo,
				Details:  map[string]any{"condition": s.ID},
			}, now)
			delete(e.lastReminder, s.ID)
		case prev && s.Active:
			if now.Sub(e.lastReminder[s.ID]) >= reminderInterval {
				e.emit(Record{
					Type:     s.ID + "_REMINDER",
					Severity: SeverityFor(s.ID),
					Details:  map[string]any{"condition": s.ID, "activeSince": s.ActiveSince.UnixMilli()},
				}, now)
				e.lastReminder[s.ID] = now
			}
		}
		e.prevActive[s.ID] = s.Active
	}

	if mode != e.prevMode {
		e.emit(Record{
			Type:     "MODE_CHANGED",
			Severity: modeSeverity(mode),
			Details:  map[string]any{"from": string(e.prevMode), "to": string(mode)},
		}, now)
		e.prevMode = mode
	}
}

// Lifecycle emits a one-shot marker (startup, broker events, shutdown,
// command receipt, crash detection, explicit restart).
func (e *Emitter) Lifecycle(eventType string, severity Severity, details map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(Record{Type: eventType, Severity: severity, Details: details}, e.now())
}

// emit finalises and delivers one record. Callers hold e.mu.
func (e *Emitter) emit(rec Record, now time.Time) {
	rec.Schema = SchemaEvent
	rec.TS = now.UnixMilli()
	rec.WallID = e.wallID

	metrics.EventTotal.WithLabelValues(string(rec.Severity)).Inc()
	e.logger.Info().
		Str("event", "events.emitted").
		Str("type", rec.Type).
		Str("severity", string(rec.Severity)).
		Msg("watchdog event")
	if e.sink != nil {
		e.sink(rec)
	}
}
