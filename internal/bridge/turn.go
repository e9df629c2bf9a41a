// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// turnFetchTimeout bounds each credential provider call.
const turnFetchTimeout = 5 * time.Second

// CredentialFetcher obtains short-lived TURN credentials from a provider.
type CredentialFetcher func(ctx context.Context) ([]ICEServer, error)

// publicFallback is used when every provider fails: viewers still get STUN
// so same-network attachment keeps working.
func publicFallback(stunServer string) []ICEServer {
	return []ICEServer{{URLs: []string{"stun:" + stunServer}}}
}

// NewHTTPCredentialFetcher builds a fetcher against a provider endpoint
// returning {"iceServers": [...]}.
func NewHTTPCredentialFetcher(url string) CredentialFetcher {
	client := &http.Client{Timeout: turnFetchTimeout}
	return func(ctx context.Context) ([]ICEServer, error) {
		ctx, cancel := context.WithTimeout(ctx, turnFetchTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		res, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		var body struct {
			IceServers []ICEServer `json:"iceServers"`
		}
		if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
			return nil, err
		}
		return body.IceServers, nil
	}
}

// discoverICEServers tries the primary then the fallback provider, each with
// its own deadline, and falls back to the public relay on total failure. The
// result is embedded in the retained ready message so every viewer
// configures identically.
func (b *Bridge) discoverICEServers(ctx context.Context) []ICEServer {
	for _, fetch := range []CredentialFetcher{b.TURNPrimary, b.TURNFallback} {
		if fetch == nil {
			continue
		}
		servers, err := fetch(ctx)
		if err != nil {
			b.logger.Warn().Err(err).
				Str("event", "bridge.turn_fetch_failed").
				Msg("TURN credential provider failed")
			continue
		}
		if len(servers) > 0 {
			return servers
		}
	}
	return publicFallback(b.stunServer)
}
