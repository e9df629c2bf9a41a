// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/bus"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/stream"
)

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) Publish(topic string, qos byte, retain bool, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, qos, retain, payload})
	return nil
}

func (p *fakePublisher) onTopic(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type fakeEngine struct {
	mu          sync.Mutex
	offers      int
	answers     int
	added       int
	hangups     int
	offerErr    error
	candidates  []stream.IceCandidate
	lastPeerIDs []string
}

func (e *fakeEngine) CreateOffer(_ context.Context, peerID, _ string) (stream.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offers++
	e.lastPeerIDs = append(e.lastPeerIDs, peerID)
	if e.offerErr != nil {
		return stream.SessionDescription{}, e.offerErr
	}
	return stream.SessionDescription{Type: "offer", SDP: "v=0"}, nil
}

func (e *fakeEngine) SetAnswer(_ context.Context, _ string, _ stream.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.answers++
	return nil
}

func (e *fakeEngine) IceCandidates(_ context.Context, _ string) ([]stream.IceCandidate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.candidates, nil
}

func (e *fakeEngine) AddIceCandidate(_ context.Context, _ string, _ stream.IceCandidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.added++
	return nil
}

func (e *fakeEngine) Hangup(_ context.Context, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hangups++
	return nil
}

func (e *fakeEngine) counts() (offers, answers, added, hangups int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offers, e.answers, e.added, e.hangups
}

func newTestBridge(engine MediaEngine) (*Bridge, *fakePublisher) {
	pub := &fakePublisher{}
	b := New(pub, bus.Topics{WallID: "wall-1"}, func() MediaEngine { return engine }, func() int { return 0 }, "stun.example.com:3478")
	return b, pub
}

func joinPayload(t *testing.T, viewerID string) []byte {
	t.Helper()
	raw, err := json.Marshal(PresenceMessage{From: viewerID})
	require.NoError(t, err)
	return raw
}

func TestStartRequiresRunningStream(t *testing.T) {
	b, _ := newTestBridge(nil)
	assert.ErrorIs(t, b.Start(context.Background()), ErrStreamNotRunning)
}

func TestStartPublishesRetainedReady(t *testing.T) {
	b, pub := newTestBridge(&fakeEngine{})
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	msgs := pub.onTopic(b.topics.WebRTCOffer())
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].retain)
	ready, ok := msgs[0].payload.(ReadyMessage)
	require.True(t, ok)
	assert.Equal(t, "ready", ready.Type)
	assert.NotEmpty(t, ready.From)
	require.NotEmpty(t, ready.IceServers, "public STUN fallback when no TURN provider is configured")
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, ready.IceServers[0].URLs)
}

func TestViewerLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	engine := &fakeEngine{candidates: []stream.IceCandidate{
		{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host"},
	}}
	b, pub := newTestBridge(engine)
	require.NoError(t, b.Start(context.Background()))

	b.HandleJoin(joinPayload(t, "viewer-1"))
	assert.Equal(t, 1, b.ViewerCount())

	offers := pub.onTopic(b.topics.WebRTCOffer())
	require.Len(t, offers, 2, "ready then viewer offer")
	offer, ok := offers[1].payload.(OfferMessage)
	require.True(t, ok)
	assert.Equal(t, "viewer-1", offer.To)
	assert.Equal(t, "v=0", offer.Description.SDP)

	// The same engine candidate is reported every poll; dedup keeps it to one
	// publish.
	time.Sleep(500 * time.Millisecond)
	ice := pub.onTopic(b.topics.WebRTCIce())
	assert.Len(t, ice, 1)

	answer, err := json.Marshal(AnswerMessage{
		From:        "viewer-1",
		Description: stream.SessionDescription{Type: "answer", SDP: "v=0"},
	})
	require.NoError(t, err)
	b.HandleAnswer(answer)
	b.HandleAnswer(answer) // latched: second answer is discarded

	b.HandleLeave(joinPayload(t, "viewer-1"))
	assert.Equal(t, 0, b.ViewerCount())

	_, answers, _, hangups := engine.counts()
	assert.Equal(t, 1, answers)
	assert.Equal(t, 1, hangups)

	b.Stop()
}

func TestJoinDebounce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	engine := &fakeEngine{}
	b, _ := newTestBridge(engine)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	b.HandleJoin(joinPayload(t, "viewer-1"))
	b.HandleJoin(joinPayload(t, "viewer-1")) // < 2 s since last: ignored

	offers, _, _, _ := engine.counts()
	assert.Equal(t, 1, offers)
	assert.Equal(t, 1, b.ViewerCount())
}

func TestRejoinSupersedesAfterDebounce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	engine := &fakeEngine{}
	b, _ := newTestBridge(engine)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	clock := time.Now()
	b.now = func() time.Time { return clock }
	b.HandleJoin(joinPayload(t, "viewer-1"))

	clock = clock.Add(3 * time.Second)
	b.HandleJoin(joinPayload(t, "viewer-1"))

	offers, _, _, hangups := engine.counts()
	assert.Equal(t, 2, offers)
	assert.Equal(t, 1, hangups, "prior session is hung up on supersede")
	assert.Equal(t, 1, b.ViewerCount())
}

func TestOfferFetchFailureDropsJoin(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	engine := &fakeEngine{offerErr: errors.New("engine busy")}
	b, _ := newTestBridge(engine)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	b.HandleJoin(joinPayload(t, "viewer-1"))

	offers, _, _, _ := engine.counts()
	assert.Equal(t, offerAttempts, offers, "bounded retries")
	assert.Equal(t, 0, b.ViewerCount())
}

func TestStopClearsRetainedOfferAndPollers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	engine := &fakeEngine{candidates: []stream.IceCandidate{{Candidate: "candidate:1"}}}
	b, pub := newTestBridge(engine)
	require.NoError(t, b.Start(context.Background()))

	b.HandleJoin(joinPayload(t, "viewer-1"))
	b.Stop()

	assert.Equal(t, 0, b.ViewerCount())
	offers := pub.onTopic(b.topics.WebRTCOffer())
	last := offers[len(offers)-1]
	assert.True(t, last.retain)
	raw, ok := last.payload.([]byte)
	require.True(t, ok)
	assert.Empty(t, raw, "retained empty payload clears the offer channel")

	// Stop is idempotent.
	b.Stop()
}

func TestRemoteICEOwnEchoDropped(t *testing.T) {
	engine := &fakeEngine{}
	b, _ := newTestBridge(engine)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	b.mu.Lock()
	self := b.publisherID
	b.mu.Unlock()

	echo, err := json.Marshal(CandidateMessage{From: self, Candidate: stream.IceCandidate{Candidate: "candidate:1"}})
	require.NoError(t, err)
	b.HandleRemoteICE(echo)

	_, _, added, _ := engine.counts()
	assert.Zero(t, added)
}

func TestAnswerFromUnknownViewerDropped(t *testing.T) {
	engine := &fakeEngine{}
	b, _ := newTestBridge(engine)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	answer, err := json.Marshal(AnswerMessage{From: "ghost", Description: stream.SessionDescription{SDP: "v=0"}})
	require.NoError(t, err)
	b.HandleAnswer(answer)

	_, answers, _, _ := engine.counts()
	assert.Zero(t, answers)
}

func TestJoinWhileStoppedIgnored(t *testing.T) {
	engine := &fakeEngine{}
	b, _ := newTestBridge(engine)

	b.HandleJoin(joinPayload(t, "viewer-1"))

	offers, _, _, _ := engine.counts()
	assert.Zero(t, offers)
	assert.Zero(t, b.ViewerCount())
}
