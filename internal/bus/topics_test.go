// SPDX-License-Identifier: MIT

package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicTree(t *testing.T) {
	tp := Topics{WallID: "wall-7"}

	assert.Equal(t, "watchdog/wall-7/telemetry", tp.Telemetry())
	assert.Equal(t, "watchdog/wall-7/health", tp.Health())
	assert.Equal(t, "watchdog/wall-7/status", tp.Status())
	assert.Equal(t, "watchdog/wall-7/config", tp.Config())
	assert.Equal(t, "watchdog/wall-7/event", tp.Event())
	assert.Equal(t, "watchdog/wall-7/control", tp.Control())
	assert.Equal(t, "watchdog/wall-7/lease", tp.Lease())
	assert.Equal(t, "watchdog/wall-7/command/ops-1", tp.Command("ops-1"))
	assert.Equal(t, "watchdog/wall-7/command/+", tp.CommandWildcard())
	assert.Equal(t, "watchdog/wall-7/ack/ops-1", tp.Ack("ops-1"))
	assert.Equal(t, "watchdog/wall-7/stream/status", tp.StreamStatus())
	assert.Equal(t, "watchdog/wall-7/webrtc/offer", tp.WebRTCOffer())
}

func TestCommandClient(t *testing.T) {
	tp := Topics{WallID: "wall-7"}

	id, ok := tp.CommandClient("watchdog/wall-7/command/ops-1")
	assert.True(t, ok)
	assert.Equal(t, "ops-1", id)

	_, ok = tp.CommandClient("watchdog/wall-7/command/")
	assert.False(t, ok, "empty client id")

	_, ok = tp.CommandClient("watchdog/wall-7/command/a/b")
	assert.False(t, ok, "nested segment")

	_, ok = tp.CommandClient("watchdog/other/command/ops-1")
	assert.False(t, ok, "foreign wall")

	_, ok = tp.CommandClient("watchdog/wall-7/lease")
	assert.False(t, ok)
}

func TestTopicClass(t *testing.T) {
	tp := Topics{WallID: "wall-7"}

	assert.Equal(t, "telemetry", tp.Class(tp.Telemetry()))
	assert.Equal(t, "command", tp.Class(tp.Command("ops-1")))
	assert.Equal(t, "webrtc", tp.Class(tp.WebRTCIce()))
	assert.Equal(t, "stream", tp.Class(tp.StreamStatus()))
	assert.Equal(t, "unknown", tp.Class("watchdog/other/telemetry"))
}
