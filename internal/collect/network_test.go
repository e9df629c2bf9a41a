// SPDX-License-Identifier: MIT

package collect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/config"
)

func TestSampleInternetReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r, cache := testRunner(t, func(c *config.Config) { c.InternetProbeURL = srv.URL })
	r.sampleInternet(context.Background())

	rec := cache.Snapshot("wall-1", time.Now())
	assert.True(t, rec.Network.InternetReachable)
	require.NotNil(t, rec.Network.LatencyMs)
	assert.GreaterOrEqual(t, *rec.Network.LatencyMs, 0.0)
}

func TestSampleInternetUnreachableClearsLatency(t *testing.T) {
	// Nothing listens on the probe target.
	r, cache := testRunner(t, func(c *config.Config) { c.InternetProbeURL = "http://127.0.0.1:1/generate_204" })
	lat := 40.0
	cache.setNetwork(func(n *NetworkStats) {
		n.InternetReachable = true
		n.LatencyMs = &lat
	})

	r.sampleInternet(context.Background())

	rec := cache.Snapshot("wall-1", time.Now())
	assert.False(t, rec.Network.InternetReachable)
	assert.Nil(t, rec.Network.LatencyMs, "latency is nullable while unreachable")
}

func TestSampleLocalServerPeerCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/peers", r.URL.Path)
		w.Header().Set("X-Server-Version", "2.4.1")
		_, _ = w.Write([]byte(`[{"id":"p1"},{"id":"p2"},{"id":"p3"}]`))
	}))
	defer srv.Close()

	r, cache := testRunner(t, func(c *config.Config) { c.LocalServerURL = srv.URL })
	r.sampleLocalServer(context.Background())

	rec := cache.Snapshot("wall-1", time.Now())
	assert.True(t, rec.Network.LocalServerReachable)
	assert.Equal(t, 3, rec.Network.ConnectedPeers)
	assert.Equal(t, "2.4.1", rec.App.ServerVersion)
}

func TestSampleLocalServerDown(t *testing.T) {
	r, cache := testRunner(t, func(c *config.Config) { c.LocalServerURL = "http://127.0.0.1:1" })
	cache.setNetwork(func(n *NetworkStats) {
		n.LocalServerReachable = true
		n.ConnectedPeers = 4
	})

	r.sampleLocalServer(context.Background())

	rec := cache.Snapshot("wall-1", time.Now())
	assert.False(t, rec.Network.LocalServerReachable)
	assert.Zero(t, rec.Network.ConnectedPeers)
}

func TestSampleLocalServerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, cache := testRunner(t, func(c *config.Config) { c.LocalServerURL = srv.URL })
	r.sampleLocalServer(context.Background())

	assert.False(t, cache.Snapshot("wall-1", time.Now()).Network.LocalServerReachable)
}

func TestSampleLocalServerBadBodyStillReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	r, cache := testRunner(t, func(c *config.Config) { c.LocalServerURL = srv.URL })
	r.sampleLocalServer(context.Background())

	rec := cache.Snapshot("wall-1", time.Now())
	assert.True(t, rec.Network.LocalServerReachable)
	assert.Zero(t, rec.Network.ConnectedPeers)
}
