// SPDX-License-Identifier: MIT

package command

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/events"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/lease"
)

type allowAll struct{}

func (allowAll) Validate(string, bool, bool, bool) lease.Decision {
	return lease.Decision{Allowed: true}
}

type ackRecorder struct {
	acks []Ack
}

func (r *ackRecorder) sink(_ string, ack Ack) { r.acks = append(r.acks, ack) }

func (r *ackRecorder) statuses() []AckStatus {
	out := make([]AckStatus, 0, len(r.acks))
	for _, a := range r.acks {
		out = append(out, a.Status)
	}
	return out
}

type eventRecorder struct {
	types []string
}

func (r *eventRecorder) sink(rec events.Record) { r.types = append(r.types, rec.Type) }

func newTestProcessor(t *testing.T, auth Authorizer) (*Processor, *Registry, *ackRecorder, *eventRecorder, *time.Time) {
	t.Helper()
	reg := NewRegistry()
	acks := &ackRecorder{}
	evts := &eventRecorder{}
	p := NewProcessor(reg, auth, events.New("wall-1", evts.sink), acks.sink)
	clock := time.Now()
	p.now = func() time.Time { return clock }
	return p, reg, acks, evts, &clock
}

func envelope(t *testing.T, clock time.Time, id, cmdType string, ttl time.Duration) []byte {
	t.Helper()
	raw, err := json.Marshal(Envelope{
		Schema:    SchemaCommand,
		TS:        clock.UnixMilli(),
		CommandID: id,
		TTLMs:     ttl.Milliseconds(),
		Type:      cmdType,
	})
	require.NoError(t, err)
	return raw
}

func TestDuplicateReplaysCachedAck(t *testing.T) {
	p, reg, acks, _, clock := newTestProcessor(t, allowAll{})

	runs := 0
	reg.Register(Definition{Type: "PING", Handler: func(context.Context, json.RawMessage) (Result, error) {
		runs++
		return Result{Message: "pong"}, nil
	}})

	raw := envelope(t, *clock, "c1", "PING", 10*time.Second)
	p.Handle(context.Background(), raw, "ops-1", false)
	p.Handle(context.Background(), raw, "ops-1", false)

	assert.Equal(t, 1, runs, "handler must execute at most once per commandId")
	assert.Equal(t, []AckStatus{AckReceived, AckApplied, AckApplied}, acks.statuses())
	assert.Equal(t, "pong", acks.acks[2].Message)
}

func TestConcurrentDuplicateRunsHandlerOnce(t *testing.T) {
	// The bus runs message callbacks concurrently, so a QoS 1 redelivery can
	// arrive while the first delivery's handler is still running. Only one
	// of the two may reach the handler.
	reg := NewRegistry()
	var mu sync.Mutex
	var statuses []AckStatus
	sink := func(_ string, ack Ack) {
		mu.Lock()
		statuses = append(statuses, ack.Status)
		mu.Unlock()
	}
	p := NewProcessor(reg, allowAll{}, events.New("wall-1", func(events.Record) {}), sink)

	var runs atomic.Int32
	release := make(chan struct{})
	reg.Register(Definition{Type: "SLOW", Handler: func(context.Context, json.RawMessage) (Result, error) {
		runs.Add(1)
		<-release
		return Result{Message: "done"}, nil
	}})

	raw := envelope(t, time.Now(), "c1", "SLOW", 10*time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Handle(context.Background(), raw, "ops-1", false)
		}()
	}
	// Give the redelivery time to hit the in-flight claim, then let the
	// handler finish.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load(), "handler must execute at most once per commandId")
	mu.Lock()
	got := append([]AckStatus(nil), statuses...)
	mu.Unlock()
	assert.Equal(t, []AckStatus{AckReceived, AckApplied}, got, "the redelivery is dropped, not re-acked")

	// A later duplicate, after the first run completed, replays the ack.
	p.Handle(context.Background(), raw, "ops-1", false)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []AckStatus{AckReceived, AckApplied, AckApplied}, statuses)
	assert.Equal(t, int32(1), runs.Load())
}

func TestIdempotencyEntryExpires(t *testing.T) {
	p, reg, _, _, clock := newTestProcessor(t, allowAll{})

	runs := 0
	reg.Register(Definition{Type: "PING", Handler: func(context.Context, json.RawMessage) (Result, error) {
		runs++
		return Result{}, nil
	}})

	p.Handle(context.Background(), envelope(t, *clock, "c1", "PING", 10*time.Minute), "ops-1", false)
	*clock = clock.Add(61 * time.Second)
	p.Handle(context.Background(), envelope(t, *clock, "c1", "PING", 10*time.Minute), "ops-1", false)

	assert.Equal(t, 2, runs, "entry past the 60 s idempotency TTL re-dispatches")
}

func TestExpiredEnvelope(t *testing.T) {
	p, reg, acks, _, clock := newTestProcessor(t, allowAll{})

	runs := 0
	reg.Register(Definition{Type: "PING", Handler: func(context.Context, json.RawMessage) (Result, error) {
		runs++
		return Result{}, nil
	}})

	// ts+ttl strictly before now: expired. ttlMs=0 at ts=now is already
	// expired only when ts+0 < now, so backdate by one tick.
	raw := envelope(t, clock.Add(-time.Second), "c1", "PING", 500*time.Millisecond)
	p.Handle(context.Background(), raw, "ops-1", false)

	assert.Zero(t, runs)
	assert.Equal(t, []AckStatus{AckExpired}, acks.statuses())
	assert.Equal(t, "Command expired in transit", acks.acks[0].Message)
}

func TestTTLBoundaryNotExpired(t *testing.T) {
	p, reg, acks, _, clock := newTestProcessor(t, allowAll{})
	reg.Register(Definition{Type: "PING", Handler: func(context.Context, json.RawMessage) (Result, error) {
		return Result{}, nil
	}})

	// ts+ttl == now is still valid: the comparison is strict.
	raw := envelope(t, clock.Add(-time.Second), "c1", "PING", time.Second)
	p.Handle(context.Background(), raw, "ops-1", false)

	assert.Equal(t, []AckStatus{AckReceived, AckApplied}, acks.statuses())
}

func TestUnknownCommandRejected(t *testing.T) {
	p, _, acks, _, clock := newTestProcessor(t, allowAll{})

	p.Handle(context.Background(), envelope(t, *clock, "c1", "NOT_A_COMMAND", 10*time.Second), "ops-1", false)

	assert.Equal(t, []AckStatus{AckRejected}, acks.statuses())
	assert.Equal(t, "Unknown command", acks.acks[0].Message)
}

func TestLeaseDenialRejected(t *testing.T) {
	p, reg, acks, _, clock := newTestProcessor(t, lease.NewManager())

	runs := 0
	reg.Register(Definition{Type: "RESTART_VUOS", RequiresLease: true, LocalBypass: true,
		Handler: func(context.Context, json.RawMessage) (Result, error) {
			runs++
			return Result{}, nil
		}})

	p.Handle(context.Background(), envelope(t, *clock, "r1", "RESTART_VUOS", 10*time.Second), "ops-42", false)

	assert.Zero(t, runs, "no subprocess activity on lease denial")
	assert.Equal(t, []AckStatus{AckRejected}, acks.statuses())
	assert.Equal(t, "No active lease", acks.acks[0].Message)
}

func TestLocalOverride(t *testing.T) {
	p, reg, acks, evts, _ := newTestProcessor(t, lease.NewManager())

	runs := 0
	reg.Register(Definition{Type: "RESTART_VUOS", RequiresLease: true, LocalBypass: true,
		Handler: func(context.Context, json.RawMessage) (Result, error) {
			runs++
			return Result{}, nil
		}})

	p.HandleLocal(context.Background(), "RESTART_VUOS", nil)

	assert.Equal(t, 1, runs)
	assert.Equal(t, []AckStatus{AckReceived, AckApplied}, acks.statuses())
	assert.Contains(t, evts.types, "LOCAL_OVERRIDE_USED")
}

func TestFailedNotCached(t *testing.T) {
	p, reg, acks, _, clock := newTestProcessor(t, allowAll{})

	runs := 0
	reg.Register(Definition{Type: "FLAKY", Handler: func(context.Context, json.RawMessage) (Result, error) {
		runs++
		if runs == 1 {
			return Result{}, errors.New("boom")
		}
		return Result{Message: "recovered"}, nil
	}})

	raw := envelope(t, *clock, "c1", "FLAKY", 10*time.Second)
	p.Handle(context.Background(), raw, "ops-1", false)
	p.Handle(context.Background(), raw, "ops-1", false)

	assert.Equal(t, 2, runs, "FAILED terminal acks are not cached")
	assert.Equal(t, []AckStatus{AckReceived, AckFailed, AckReceived, AckApplied}, acks.statuses())
	assert.Equal(t, "boom", acks.acks[1].Message)
}

func TestMissingCommandIDDropped(t *testing.T) {
	p, _, acks, _, _ := newTestProcessor(t, allowAll{})
	p.Handle(context.Background(), []byte(`{"type":"PING"}`), "ops-1", false)
	assert.Empty(t, acks.acks)
}

func TestCommandReceivedLifecycleEvent(t *testing.T) {
	p, reg, _, evts, clock := newTestProcessor(t, allowAll{})
	reg.Register(Definition{Type: "PING", Handler: func(context.Context, json.RawMessage) (Result, error) {
		return Result{}, nil
	}})

	p.Handle(context.Background(), envelope(t, *clock, "c1", "PING", 10*time.Second), "ops-1", false)
	assert.Contains(t, evts.types, "COMMAND_RECEIVED")
}

func TestLegacyShimTranslation(t *testing.T) {
	p, reg, acks, _, _ := newTestProcessor(t, allowAll{})

	got := ""
	reg.Register(Definition{Type: TypeRestartVuos, Handler: func(context.Context, json.RawMessage) (Result, error) {
		got = TypeRestartVuos
		return Result{}, nil
	}})

	p.HandleLegacy(context.Background(), []byte(`{"action":"restart"}`))

	assert.Equal(t, TypeRestartVuos, got)
	assert.Equal(t, []AckStatus{AckReceived, AckApplied}, acks.statuses())
}

func TestLegacyUnknownActionDropped(t *testing.T) {
	p, _, acks, evts, _ := newTestProcessor(t, allowAll{})
	p.HandleLegacy(context.Background(), []byte(`{"action":"format-disk"}`))
	assert.Empty(t, acks.acks)
	assert.Empty(t, evts.types)
}

func TestSweeperEvictsExpiredEntries(t *testing.T) {
	p, reg, _, _, clock := newTestProcessor(t, allowAll{})
	reg.Register(Definition{Type: "PING", Handler: func(context.Context, json.RawMessage) (Result, error) {
		return Result{}, nil
	}})

	p.Handle(context.Background(), envelope(t, *clock, "c1", "PING", 10*time.Minute), "ops-1", false)
	_, ok := p.store.get("c1", *clock)
	require.True(t, ok)

	*clock = clock.Add(2 * time.Minute)
	assert.Equal(t, 1, p.store.sweep(*clock))
	_, ok = p.store.get("c1", *clock)
	assert.False(t, ok)
}
