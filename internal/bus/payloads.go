// SPDX-License-Identifier: MIT

package bus

// StatusPayload is the retained presence record on the status topic. The
// offline variant doubles as the broker Last-Will so subscribers learn about
// abrupt deaths without any action from the agent.
type StatusPayload struct {
	Status    string       `json:"status"` // "online" | "offline"
	WallID    string       `json:"wallId"`
	Timestamp int64        `json:"timestamp"`
	Stream    StreamStatus `json:"stream"`
}

// StreamStatus is the compact stream summary embedded in status payloads.
type StreamStatus struct {
	Status string `json:"status"`
}
