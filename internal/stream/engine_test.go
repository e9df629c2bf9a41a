// SPDX-License-Identifier: MIT

package stream

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngineServer answers the engine control API endpoints used by the
// client.
func fakeEngineServer(t *testing.T, sdp string) (*EngineClient, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/getMediaList", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/api/createOffer", func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.URL.Query().Get("peerid"))
		_ = json.NewEncoder(w).Encode(SessionDescription{Type: "offer", SDP: sdp})
	})
	mux.HandleFunc("/api/setAnswer", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/getIceCandidate", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]IceCandidate{{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return NewEngineClient(port), srv
}

func TestEngineClientAlive(t *testing.T) {
	client, _ := fakeEngineServer(t, "v=0")
	assert.True(t, client.Alive(context.Background()))

	dead := NewEngineClient(1) // nothing listens there
	assert.False(t, dead.Alive(context.Background()))
}

func TestCreateOffer(t *testing.T) {
	client, _ := fakeEngineServer(t, "v=0 o=- 0 0 IN IP4 0.0.0.0")
	desc, err := client.CreateOffer(context.Background(), "peer-1", "screen://0")
	require.NoError(t, err)
	assert.Equal(t, "offer", desc.Type)
	assert.NotEmpty(t, desc.SDP)
}

func TestCreateOfferEmptySDP(t *testing.T) {
	client, _ := fakeEngineServer(t, "")
	_, err := client.CreateOffer(context.Background(), "peer-1", "screen://0")
	assert.ErrorContains(t, err, "empty sdp")
}

func TestIceCandidates(t *testing.T) {
	client, _ := fakeEngineServer(t, "v=0")
	cands, err := client.IceCandidates(context.Background(), "peer-1")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Contains(t, cands[0].Candidate, "typ host")
}

func TestChoosePort(t *testing.T) {
	port, err := choosePort()
	require.NoError(t, err)
	assert.Contains(t, candidatePorts, port)

	// The chosen port must actually be bindable right after probing.
	l, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)
	_ = l.Close()
}
