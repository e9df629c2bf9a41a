// SPDX-License-Identifier: MIT

package bus

import "strings"

// Topics builds the bus topic tree for one wall. All topics live under
// watchdog/{wallId}/.
type Topics struct {
	WallID string
}

func (t Topics) prefix(suffix string) string {
	return "watchdog/" + t.WallID + "/" + suffix
}

func (t Topics) Telemetry() string { return t.prefix("telemetry") }
func (t Topics) Health() string    { return t.prefix("health") }
func (t Topics) Status() string    { return t.prefix("status") }
func (t Topics) Config() string    { return t.prefix("config") }
func (t Topics) Event() string     { return t.prefix("event") }
func (t Topics) Commands() string  { return t.prefix("commands") }
func (t Topics) Control() string   { return t.prefix("control") }
func (t Topics) Lease() string     { return t.prefix("lease") }

func (t Topics) Command(clientID string) string { return t.prefix("command/" + clientID) }
func (t Topics) CommandWildcard() string        { return t.prefix("command/+") }
func (t Topics) Ack(clientID string) string     { return t.prefix("ack/" + clientID) }

func (t Topics) StreamStatus() string { return t.prefix("stream/status") }

func (t Topics) WebRTCOffer() string  { return t.prefix("webrtc/offer") }
func (t Topics) WebRTCAnswer() string { return t.prefix("webrtc/answer") }
func (t Topics) WebRTCIce() string    { return t.prefix("webrtc/ice") }
func (t Topics) WebRTCJoin() string   { return t.prefix("webrtc/join") }
func (t Topics) WebRTCLeave() string  { return t.prefix("webrtc/leave") }

// CommandClient extracts the client id from a command/{clientId} topic.
func (t Topics) CommandClient(topic string) (string, bool) {
	prefix := t.prefix("command/")
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(topic, prefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Class maps a full topic to its class label for metrics and routing:
// the first path segment after the wall id ("command", "webrtc", ...).
func (t Topics) Class(topic string) string {
	rest := strings.TrimPrefix(topic, "watchdog/"+t.WallID+"/")
	if rest == topic {
		return "unknown"
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	return rest
}
