// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"sync"
	"time"
)

const (
	icePollInterval = 150 * time.Millisecond
	icePollCap      = 30 * time.Second
)

// viewer is one remote consumer's signaling session. At most one viewer
// exists per viewerId; a re-join supersedes the prior session.
type viewer struct {
	id          string
	peerID      string
	connectedAt time.Time

	mu             sync.Mutex
	answerReceived bool // latched: further answers are discarded
	sent           map[string]struct{}

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{} // closed when the polling goroutine returns
}

func newViewer(id, peerID string, now time.Time) *viewer {
	return &viewer{
		id:          id,
		peerID:      peerID,
		connectedAt: now,
		sent:        make(map[string]struct{}),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// latchAnswer returns true exactly once per viewer.
func (v *viewer) latchAnswer() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.answerReceived {
		return false
	}
	v.answerReceived = true
	return true
}

// markSent records a candidate and reports whether it was new. The sent set
// strictly grows until cleanup.
func (v *viewer) markSent(candidate string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, dup := v.sent[candidate]; dup {
		return false
	}
	v.sent[candidate] = struct{}{}
	return true
}

// stopPolling cancels the ICE polling goroutine. Idempotent.
func (v *viewer) stopPolling() {
	v.stopOnce.Do(func() { close(v.stop) })
}

// pollICE fetches new local candidates from the engine at the polling
// cadence and publishes each candidate at most once, until stopped or the
// 30 s safety cap fires.
func (b *Bridge) pollICE(v *viewer, engine MediaEngine) {
	defer close(v.done)
	ticker := time.NewTicker(icePollInterval)
	defer ticker.Stop()
	cutoff := time.NewTimer(icePollCap)
	defer cutoff.Stop()

	for {
		select {
		case <-v.stop:
			return
		case <-cutoff.C:
			b.logger.Debug().
				Str("event", "bridge.ice_poll_cutoff").
				Str("viewer_id", v.id).
				Msg("ICE polling reached safety cap")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			candidates, err := engine.IceCandidates(ctx, v.peerID)
			cancel()
			if err != nil {
				continue
			}
			for _, cand := range candidates {
				if !v.markSent(cand.Candidate) {
					continue
				}
				b.publishCandidate(v, cand)
			}
		}
	}
}
