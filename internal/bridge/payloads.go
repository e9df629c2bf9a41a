// SPDX-License-Identifier: MIT

package bridge

import "github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/stream"

// ICEServer is one STUN/TURN entry handed to viewers.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// ReadyMessage is the retained announcement on the offer channel. Viewers
// read it to discover the publisher and its ICE configuration before joining.
type ReadyMessage struct {
	Type       string      `json:"type"` // "ready"
	From       string      `json:"from"` // publisher id
	WallID     string      `json:"wallId"`
	IceServers []ICEServer `json:"iceServers"`
}

// OfferMessage is a targeted SDP offer for one viewer.
type OfferMessage struct {
	Type        string                    `json:"type"` // "offer"
	Description stream.SessionDescription `json:"description"`
	IceServers  []ICEServer               `json:"iceServers"`
	To          string                    `json:"to"`
	From        string                    `json:"from"`
}

// AnswerMessage is a viewer's SDP answer addressed to the publisher.
type AnswerMessage struct {
	Description stream.SessionDescription `json:"description"`
	To          string                    `json:"to"`
	From        string                    `json:"from"`
}

// CandidateMessage carries one ICE candidate in either direction.
type CandidateMessage struct {
	Candidate stream.IceCandidate `json:"candidate"`
	To        string              `json:"to"`
	From      string              `json:"from"`
}

// PresenceMessage is a join or leave marker from a viewer.
type PresenceMessage struct {
	From string `json:"from"`
}
