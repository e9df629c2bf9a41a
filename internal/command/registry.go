// SPDX-License-Identifier: MIT

package command

import (
	"context"
	"encoding/json"
	"sync"
)

// Standard command types.
const (
	TypeRestartVuos      = "RESTART_VUOS"
	TypeStartVuos        = "START_VUOS"
	TypeStopVuos         = "STOP_VUOS"
	TypeQuitWatchdog     = "QUIT_WATCHDOG"
	TypeSwitchBroker     = "SWITCH_BROKER"
	TypeRequestTelemetry = "REQUEST_TELEMETRY"
	TypeRequestConfig    = "REQUEST_CONFIG"
	TypeStartStream      = "START_STREAM"
	TypeStopStream       = "STOP_STREAM"
	TypeSetStreamQuality = "SET_STREAM_QUALITY"
)

// Result is a successful handler outcome.
type Result struct {
	Message string
	Details map[string]any
}

// Handler executes one command. Args are the raw envelope args; each handler
// decodes its own typed struct.
type Handler func(ctx context.Context, args json.RawMessage) (Result, error)

// Definition binds a command type to its policy and handler.
type Definition struct {
	Type          string
	RequiresLease bool
	LocalBypass   bool
	Handler       Handler
}

// Registry is the set of known commands, populated at startup.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds or replaces a command definition.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Type] = def
}

// Lookup returns the definition for a command type.
func (r *Registry) Lookup(cmdType string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[cmdType]
	return def, ok
}
