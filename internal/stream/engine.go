// SPDX-License-Identifier: MIT

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// SessionDescription is an SDP offer or answer as exchanged with the engine.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// IceCandidate is one ICE candidate in engine/browser JSON form.
type IceCandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
}

// EngineClient talks to the media engine's local HTTP control API.
type EngineClient struct {
	base string
	http *http.Client
}

// NewEngineClient returns a client for the engine listening on port.
func NewEngineClient(port int) *EngineClient {
	return &EngineClient{
		base: fmt.Sprintf("http://127.0.0.1:%d", port),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// Alive checks whether the engine answers its control API.
func (c *EngineClient) Alive(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/getMediaList", nil)
	if err != nil {
		return false
	}
	res, err := c.http.Do(req)
	if err != nil {
		return false
	}
	res.Body.Close()
	return res.StatusCode < 500
}

// CreateOffer asks the engine for an SDP offer for the given peer and
// capture URL.
func (c *EngineClient) CreateOffer(ctx context.Context, peerID, captureURL string) (SessionDescription, error) {
	var desc SessionDescription
	u := c.base + "/api/createOffer?peerid=" + url.QueryEscape(peerID) + "&url=" + url.QueryEscape(captureURL)
	if err := c.getJSON(ctx, u, &desc); err != nil {
		return SessionDescription{}, fmt.Errorf("create offer for %s: %w", peerID, err)
	}
	if desc.SDP == "" {
		return SessionDescription{}, fmt.Errorf("create offer for %s: empty sdp", peerID)
	}
	return desc, nil
}

// SetAnswer forwards a viewer's SDP answer to the engine.
func (c *EngineClient) SetAnswer(ctx context.Context, peerID string, desc SessionDescription) error {
	u := c.base + "/api/setAnswer?peerid=" + url.QueryEscape(peerID)
	if err := c.postJSON(ctx, u, desc); err != nil {
		return fmt.Errorf("set answer for %s: %w", peerID, err)
	}
	return nil
}

// IceCandidates fetches the engine's pending local candidates for a peer.
func (c *EngineClient) IceCandidates(ctx context.Context, peerID string) ([]IceCandidate, error) {
	var out []IceCandidate
	u := c.base + "/api/getIceCandidate?peerid=" + url.QueryEscape(peerID)
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, fmt.Errorf("get ice candidates for %s: %w", peerID, err)
	}
	return out, nil
}

// AddIceCandidate forwards a viewer candidate to the engine.
func (c *EngineClient) AddIceCandidate(ctx context.Context, peerID string, cand IceCandidate) error {
	u := c.base + "/api/addIceCandidate?peerid=" + url.QueryEscape(peerID)
	if err := c.postJSON(ctx, u, cand); err != nil {
		return fmt.Errorf("add ice candidate for %s: %w", peerID, err)
	}
	return nil
}

// Hangup closes the engine-side peer session.
func (c *EngineClient) Hangup(ctx context.Context, peerID string) error {
	u := c.base + "/api/hangup?peerid=" + url.QueryEscape(peerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hangup %s: %w", peerID, err)
	}
	res.Body.Close()
	return nil
}

func (c *EngineClient) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("engine returned %d", res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *EngineClient) postJSON(ctx context.Context, u string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("engine returned %d", res.StatusCode)
	}
	return nil
}
