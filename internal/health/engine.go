// SPDX-License-Identifier: MIT

package health

import (
	"sort"
	"time"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/collect"
)

// State is the mutable evaluation state of one condition.
//
// Invariants: Active implies RawActive and an elapsed duration of at least
// the debounce window while continuously triggered; !RawActive implies
// !Active and a zero ActiveSince.
type State struct {
	ID          string
	Level       Level
	RawActive   bool
	Active      bool
	ActiveSince time.Time
}

// Engine holds the per-condition states. States are created once and only
// mutated inside Evaluate.
type Engine struct {
	defs   []Definition
	states map[string]*State
}

// NewEngine creates an engine over the fixed condition set.
func NewEngine() *Engine {
	defs := Definitions()
	states := make(map[string]*State, len(defs))
	for _, d := range defs {
		states[d.ID] = &State{ID: d.ID, Level: d.Level}
	}
	return &Engine{defs: defs, states: states}
}

// Evaluate runs every predicate against rec at the given instant and applies
// debounce. The returned slice is a copy in definition order.
func (e *Engine) Evaluate(rec collect.TelemetryRecord, now time.Time) []State {
	out := make([]State, 0, len(e.defs))
	for _, d := range e.defs {
		s := e.states[d.ID]
		if d.Predicate(rec) {
			if !s.RawActive {
				s.RawActive = true
				s.ActiveSince = now
			}
			if now.Sub(s.ActiveSince) >= d.Debounce {
				s.Active = true
			}
		} else {
			s.RawActive = false
			s.Active = false
			s.ActiveSince = time.Time{}
		}
		out = append(out, *s)
	}
	return out
}

// ActiveIDs returns the ids of active conditions sorted lexicographically.
func ActiveIDs(states []State) []string {
	ids := make([]string, 0, len(states))
	for _, s := range states {
		if s.Active {
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids
}
