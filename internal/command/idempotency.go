// SPDX-License-Identifier: MIT

package command

import (
	"context"
	"sync"
	"time"
)

const (
	// idempotencyTTL is how long a terminal ack is replayed for duplicate
	// command ids. QoS 1 redelivery makes duplicates normal, not exceptional.
	idempotencyTTL = 60 * time.Second
	sweepInterval  = 30 * time.Second
)

type idemEntry struct {
	ack       Ack
	inFlight  bool
	expiresAt time.Time
}

// idemStore maps commandId to its cached terminal ack, or to an in-flight
// claim while the first delivery's handler is still running.
type idemStore struct {
	mu      sync.Mutex
	entries map[string]idemEntry
}

func newIdemStore() *idemStore {
	return &idemStore{entries: make(map[string]idemEntry)}
}

type reservation int

const (
	// reserveNew: the caller owns the dispatch and must finish with
	// complete or release.
	reserveNew reservation = iota
	// reserveInFlight: another delivery of the same commandId is still
	// running.
	reserveInFlight
	// reserveCached: a terminal ack is stored; the returned Ack is it.
	reserveCached
)

// reserve claims commandID for dispatch. The message callbacks run
// concurrently, so the claim must exist before the handler starts, not
// after it returns.
func (s *idemStore) reserve(commandID string, now time.Time) (Ack, reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[commandID]
	if ok && e.inFlight {
		return Ack{}, reserveInFlight
	}
	if ok && e.expiresAt.After(now) {
		return e.ack, reserveCached
	}
	s.entries[commandID] = idemEntry{inFlight: true}
	return Ack{}, reserveNew
}

// complete replaces the in-flight claim with the terminal ack to replay.
func (s *idemStore) complete(commandID string, ack Ack, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[commandID] = idemEntry{ack: ack, expiresAt: now.Add(idempotencyTTL)}
}

// release drops the in-flight claim without caching anything (the
// REJECTED, EXPIRED and FAILED paths).
func (s *idemStore) release(commandID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[commandID]; ok && e.inFlight {
		delete(s.entries, commandID)
	}
}

func (s *idemStore) get(commandID string, now time.Time) (Ack, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[commandID]
	if !ok || e.inFlight || e.expiresAt.Before(now) || e.expiresAt.Equal(now) {
		return Ack{}, false
	}
	return e.ack, true
}

func (s *idemStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, e := range s.entries {
		if !e.inFlight && !e.expiresAt.After(now) {
			delete(s.entries, id)
			evicted++
		}
	}
	return evicted
}

// RunSweeper evicts expired idempotency entries every sweepInterval until
// ctx is cancelled.
func (p *Processor) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := p.store.sweep(p.now()); n > 0 {
				p.logger.Debug().
					Str("event", "command.idempotency_swept").
					Int("evicted", n).
					Msg("expired idempotency entries evicted")
			}
		}
	}
}
