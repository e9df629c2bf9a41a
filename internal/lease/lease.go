// SPDX-License-Identifier: MIT

// Package lease arbitrates exclusive operator control. A single retained bus
// record of (owner, expiry) grants destructive-command authority to one
// owner at a time.
package lease

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/log"
)

// SchemaLease versions lease payloads.
const SchemaLease = "vu.watchdog.lease.v1"

// Payload is the wire form of the retained lease record.
type Payload struct {
	Schema    string `json:"schema"`
	TS        int64  `json:"ts"`
	Owner     string `json:"owner"`
	ExpiresTS int64  `json:"expiresTs"`
}

// Decision is the outcome of an authorization query.
type Decision struct {
	Allowed       bool
	LocalOverride bool   // local bypass path was used
	Reason        string // set when denied
}

// Manager holds the single process-wide lease record. Updated only from the
// retained lease topic.
type Manager struct {
	mu        sync.Mutex
	owner     string
	expiresTS int64 // unix ms; zero means never held

	logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates an empty lease manager.
func NewManager() *Manager {
	return &Manager{
		logger: log.WithComponent("lease"),
		now:    time.Now,
	}
}

// Apply processes an inbound lease payload. An update is accepted when no
// lease is currently active or the existing owner matches the incoming one;
// otherwise it is rejected silently (log only, no counter-publication).
func (m *Manager) Apply(raw []byte) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		m.logger.Warn().Err(err).Str("event", "lease.decode_failed").Msg("dropping malformed lease payload")
		return
	}
	if p.Owner == "" {
		m.logger.Debug().Str("event", "lease.cleared").Msg("lease record cleared")
		m.mu.Lock()
		m.owner, m.expiresTS = "", 0
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	nowMs := m.now().UnixMilli()
	if m.owner == "" || m.expiresTS <= nowMs || m.owner == p.Owner {
		m.owner = p.Owner
		m.expiresTS = p.ExpiresTS
		m.logger.Info().
			Str("event", "lease.updated").
			Str(log.FieldOwner, p.Owner).
			Int64("expires_ts", p.ExpiresTS).
			Msg("lease accepted")
		return
	}
	m.logger.Warn().
		Str("event", "lease.rejected").
		Str(log.FieldOwner, m.owner).
		Str("requested_owner", p.Owner).
		Msg("lease update rejected, another owner holds an active lease")
}

// IsActive reports whether a non-expired lease is held.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner != "" && m.expiresTS > m.now().UnixMilli()
}

// Current returns the lease record as last applied.
func (m *Manager) Current() (owner string, expiresTS int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner, m.expiresTS
}

// Validate answers an authorization query for the command processor.
func (m *Manager) Validate(clientID string, isLocal, requiresLease, localBypass bool) Decision {
	if !requiresLease {
		return Decision{Allowed: true}
	}
	if isLocal && localBypass {
		return Decision{Allowed: true, LocalOverride: true}
	}

	m.mu.Lock()
	owner := m.owner
	active := m.owner != "" && m.expiresTS > m.now().UnixMilli()
	m.mu.Unlock()

	if !active {
		return Decision{Reason: "No active lease"}
	}
	if owner != clientID {
		return Decision{Reason: fmt.Sprintf("Lease held by %s", owner)}
	}
	return Decision{Allowed: true}
}
