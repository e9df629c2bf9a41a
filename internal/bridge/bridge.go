// SPDX-License-Identifier: MIT

// Package bridge converts the single local WebRTC source into N independent
// viewer sessions by shuttling SDP and ICE between the message bus and the
// media engine's HTTP control API.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/bus"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/log"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/metrics"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/stream"
)

const (
	offerAttempts    = 3
	offerBackoff     = 500 * time.Millisecond
	offerTimeout     = 2 * time.Second
	rejoinDebounce   = 2 * time.Second
	engineCallBudget = 2 * time.Second
)

var ErrStreamNotRunning = errors.New("streaming is not running")

// MediaEngine is the control surface the bridge needs from the engine.
// Satisfied by *stream.EngineClient.
type MediaEngine interface {
	CreateOffer(ctx context.Context, peerID, captureURL string) (stream.SessionDescription, error)
	SetAnswer(ctx context.Context, peerID string, desc stream.SessionDescription) error
	IceCandidates(ctx context.Context, peerID string) ([]stream.IceCandidate, error)
	AddIceCandidate(ctx context.Context, peerID string, cand stream.IceCandidate) error
	Hangup(ctx context.Context, peerID string) error
}

// Bridge owns the per-viewer signaling state. Only the bridge mutates
// viewers and its own connection state.
type Bridge struct {
	topics     bus.Topics
	publish    bus.Publisher
	engine     func() MediaEngine // nil result means stream not running
	monitor    func() int
	stunServer string
	logger     zerolog.Logger

	// TURN credential providers, optional.
	TURNPrimary  CredentialFetcher
	TURNFallback CredentialFetcher

	mu          sync.Mutex
	connected   bool
	publisherID string
	iceServers  []ICEServer
	viewers     map[string]*viewer
	lastJoin    map[string]time.Time

	now func() time.Time
}

// New wires a bridge over the bus publisher and the engine accessor.
func New(publish bus.Publisher, topics bus.Topics, engine func() MediaEngine, monitor func() int, stunServer string) *Bridge {
	return &Bridge{
		topics:     topics,
		publish:    publish,
		engine:     engine,
		monitor:    monitor,
		stunServer: stunServer,
		logger:     log.WithComponent("bridge"),
		viewers:    make(map[string]*viewer),
		lastJoin:   make(map[string]time.Time),
		now:        time.Now,
	}
}

// Connected reports whether the bridge is accepting viewers.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// ViewerCount returns the number of live viewer sessions.
func (b *Bridge) ViewerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.viewers)
}

// Start requires a running stream. It records a fresh publisher id, embeds
// the discovered ICE configuration in a retained ready announcement, and
// begins accepting viewers.
func (b *Bridge) Start(ctx context.Context) error {
	if b.engine() == nil {
		return ErrStreamNotRunning
	}

	iceServers := b.discoverICEServers(ctx)

	b.mu.Lock()
	b.publisherID = uuid.NewString()
	b.iceServers = iceServers
	b.connected = true
	publisherID := b.publisherID
	b.mu.Unlock()

	ready := ReadyMessage{
		Type:       "ready",
		From:       publisherID,
		WallID:     b.topics.WallID,
		IceServers: iceServers,
	}
	if err := b.publish.Publish(b.topics.WebRTCOffer(), 1, true, ready); err != nil {
		return fmt.Errorf("publish ready announcement: %w", err)
	}
	b.logger.Info().
		Str("event", "bridge.started").
		Str("publisher_id", publisherID).
		Msg("signaling bridge connected")
	return nil
}

// Stop clears the retained offer channel, tears down every viewer and
// transitions to disconnected. After Stop returns no ICE polling timer
// remains live.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return
	}
	b.connected = false
	viewers := b.viewers
	b.viewers = make(map[string]*viewer)
	b.mu.Unlock()

	// Retained empty payload: a stale offer must not attract new joiners
	// after a restart. This is part of the bridge contract.
	_ = b.publish.Publish(b.topics.WebRTCOffer(), 1, true, []byte{})

	for _, v := range viewers {
		b.teardown(v, true)
	}
	metrics.Viewers.Set(0)
	b.logger.Info().Str("event", "bridge.stopped").Msg("signaling bridge disconnected")
}

// HandleJoin admits a viewer: fetch an offer from the engine, publish it
// targeted at the viewer, and start ICE polling. Rapid rejoins are
// debounced; an existing session for the same viewer is superseded.
func (b *Bridge) HandleJoin(payload []byte) {
	var msg PresenceMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.From == "" {
		b.logger.Warn().Err(err).Str("event", "bridge.join_malformed").Msg("dropping malformed join")
		return
	}
	engine := b.engine()

	b.mu.Lock()
	if !b.connected || engine == nil {
		b.mu.Unlock()
		b.logger.Debug().
			Str("event", "bridge.join_ignored").
			Str(log.FieldViewerID, msg.From).
			Msg("join while bridge not accepting viewers")
		return
	}
	now := b.now()
	if last, ok := b.lastJoin[msg.From]; ok && now.Sub(last) < rejoinDebounce {
		b.mu.Unlock()
		b.logger.Debug().
			Str("event", "bridge.join_debounced").
			Str(log.FieldViewerID, msg.From).
			Msg("ignoring rapid rejoin")
		return
	}
	b.lastJoin[msg.From] = now
	prior := b.viewers[msg.From]
	delete(b.viewers, msg.From)
	publisherID := b.publisherID
	iceServers := b.iceServers
	b.mu.Unlock()

	if prior != nil {
		b.teardown(prior, true)
	}

	peerID := uuid.NewString()
	captureURL := fmt.Sprintf("screen://%d", b.monitor())
	desc, err := b.fetchOffer(engine, peerID, captureURL)
	if err != nil {
		b.logger.Error().Err(err).
			Str("event", "bridge.offer_failed").
			Str(log.FieldViewerID, msg.From).
			Msg("could not obtain offer from media engine")
		return
	}

	offer := OfferMessage{
		Type:        "offer",
		Description: desc,
		IceServers:  iceServers,
		To:          msg.From,
		From:        publisherID,
	}
	if err := b.publish.Publish(b.topics.WebRTCOffer(), 1, true, offer); err != nil {
		b.logger.Error().Err(err).Str("event", "bridge.offer_publish_failed").Msg("offer publish failed")
		return
	}

	v := newViewer(msg.From, peerID, now)
	b.mu.Lock()
	if !b.connected {
		// Lost a race with Stop; the poller never started, so mark it done
		// before tearing down.
		b.mu.Unlock()
		close(v.done)
		b.teardown(v, true)
		return
	}
	b.viewers[msg.From] = v
	count := len(b.viewers)
	b.mu.Unlock()
	metrics.Viewers.Set(float64(count))

	go b.pollICE(v, engine)
	b.logger.Info().
		Str("event", "bridge.viewer_joined").
		Str(log.FieldViewerID, msg.From).
		Int("viewers", count).
		Msg("viewer admitted")
}

// fetchOffer asks the engine for an SDP offer with bounded retries.
func (b *Bridge) fetchOffer(engine MediaEngine, peerID, captureURL string) (stream.SessionDescription, error) {
	var lastErr error
	for attempt := 0; attempt < offerAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(offerBackoff)
		}
		ctx, cancel := context.WithTimeout(context.Background(), offerTimeout)
		desc, err := engine.CreateOffer(ctx, peerID, captureURL)
		cancel()
		if err == nil {
			return desc, nil
		}
		lastErr = err
	}
	return stream.SessionDescription{}, lastErr
}

// HandleAnswer forwards the first answer per viewer to the engine. Later
// answers from the same viewer are discarded.
func (b *Bridge) HandleAnswer(payload []byte) {
	var msg AnswerMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.From == "" {
		b.logger.Warn().Err(err).Str("event", "bridge.answer_malformed").Msg("dropping malformed answer")
		return
	}
	v := b.lookup(msg.From)
	if v == nil {
		b.logger.Warn().
			Str("event", "bridge.answer_unknown_viewer").
			Str(log.FieldViewerID, msg.From).
			Msg("answer from unknown viewer dropped")
		return
	}
	if !v.latchAnswer() {
		b.logger.Debug().
			Str("event", "bridge.answer_duplicate").
			Str(log.FieldViewerID, msg.From).
			Msg("duplicate answer discarded")
		return
	}
	engine := b.engine()
	if engine == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), engineCallBudget)
	defer cancel()
	if err := engine.SetAnswer(ctx, v.peerID, msg.Description); err != nil {
		b.logger.Error().Err(err).
			Str("event", "bridge.set_answer_failed").
			Str(log.FieldViewerID, msg.From).
			Msg("engine rejected answer")
	}
}

// HandleRemoteICE forwards a viewer candidate to the engine.
func (b *Bridge) HandleRemoteICE(payload []byte) {
	var msg CandidateMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.From == "" {
		return
	}
	b.mu.Lock()
	publisherID := b.publisherID
	b.mu.Unlock()
	if msg.From == publisherID {
		// Our own outbound candidates echo back on the shared topic.
		return
	}
	v := b.lookup(msg.From)
	if v == nil {
		b.logger.Debug().
			Str("event", "bridge.ice_unknown_viewer").
			Str(log.FieldViewerID, msg.From).
			Msg("candidate from unknown viewer dropped")
		return
	}
	engine := b.engine()
	if engine == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), engineCallBudget)
	defer cancel()
	if err := engine.AddIceCandidate(ctx, v.peerID, msg.Candidate); err != nil {
		b.logger.Warn().Err(err).
			Str("event", "bridge.add_candidate_failed").
			Str(log.FieldViewerID, msg.From).
			Msg("engine rejected candidate")
	}
}

// HandleLeave tears down the viewer's session.
func (b *Bridge) HandleLeave(payload []byte) {
	var msg PresenceMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.From == "" {
		return
	}
	b.mu.Lock()
	v := b.viewers[msg.From]
	delete(b.viewers, msg.From)
	count := len(b.viewers)
	b.mu.Unlock()
	if v == nil {
		return
	}
	metrics.Viewers.Set(float64(count))
	b.teardown(v, true)
	b.logger.Info().
		Str("event", "bridge.viewer_left").
		Str(log.FieldViewerID, msg.From).
		Int("viewers", count).
		Msg("viewer departed")
}

// publishCandidate sends one local candidate targeted at the viewer.
func (b *Bridge) publishCandidate(v *viewer, cand stream.IceCandidate) {
	b.mu.Lock()
	publisherID := b.publisherID
	b.mu.Unlock()
	msg := CandidateMessage{Candidate: cand, To: v.id, From: publisherID}
	_ = b.publish.Publish(b.topics.WebRTCIce(), 1, false, msg)
}

func (b *Bridge) lookup(viewerID string) *viewer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewers[viewerID]
}

// teardown stops polling, waits for the poller to exit, and hangs up the
// engine-side peer.
func (b *Bridge) teardown(v *viewer, hangup bool) {
	v.stopPolling()
	<-v.done
	if !hangup {
		return
	}
	if engine := b.engine(); engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), engineCallBudget)
		defer cancel()
		if err := engine.Hangup(ctx, v.peerID); err != nil {
			b.logger.Warn().Err(err).
				Str("event", "bridge.hangup_failed").
				Str(log.FieldViewerID, v.id).
				Msg("engine hangup failed")
		}
	}
}
