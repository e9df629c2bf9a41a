// SPDX-License-Identifier: MIT

package collect

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// sampleInternet issues a timed HEAD request against a well-known endpoint.
// Reachability and round-trip latency come from the same request.
func (r *Runner) sampleInternet(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.internetProbeURL, nil)
	if err != nil {
		r.probeFailed("internet", err)
		return
	}
	start := time.Now()
	res, err := r.httpClient.Do(req)
	if err != nil {
		r.cache.setNetwork(func(n *NetworkStats) {
			n.InternetReachable = false
			n.LatencyMs = nil
		})
		return
	}
	res.Body.Close()
	latency := float64(time.Since(start).Milliseconds())
	r.cache.setNetwork(func(n *NetworkStats) {
		n.InternetReachable = true
		n.LatencyMs = &latency
	})
}

// sampleLocalServer probes the supporting server's peer listing. Peer count
// is the length of the returned JSON array.
func (r *Runner) sampleLocalServer(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.localServerURL+"/api/peers", nil)
	if err != nil {
		r.probeFailed("local_server", err)
		return
	}
	res, err := r.httpClient.Do(req)
	if err != nil || res.StatusCode >= 500 {
		if res != nil {
			res.Body.Close()
		}
		r.cache.setNetwork(func(n *NetworkStats) {
			n.LocalServerReachable = false
			n.ConnectedPeers = 0
		})
		return
	}
	defer res.Body.Close()

	var peers []json.RawMessage
	count := 0
	if err := json.NewDecoder(res.Body).Decode(&peers); err == nil {
		count = len(peers)
	}
	version := res.Header.Get("X-Server-Version")
	r.cache.setNetwork(func(n *NetworkStats) {
		n.LocalServerReachable = true
		n.ConnectedPeers = count
	})
	if version != "" {
		r.cache.setApp(func(a *AppStats) { a.ServerVersion = version })
	}
}
