// SPDX-License-Identifier: MIT

package agent

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/command"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/config"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/health"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.WallID = "wall-1"
	cfg.Brokers = []config.Broker{
		{ID: "primary", ServerURL: "tcp://broker-a:1883"},
		{ID: "backup", ServerURL: "tcp://broker-b:1883"},
	}
	return &cfg
}

func TestNewWiresComponents(t *testing.T) {
	a, err := New(testConfig(), "")
	require.NoError(t, err)

	assert.Equal(t, "primary", a.bus.ActiveBroker().ID)
	assert.Nil(t, a.mediaEngine(), "no engine while streaming is stopped")
	assert.Zero(t, a.streamMonitor())
}

func TestNewRejectsUnknownDefaultBroker(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultBroker = "nope"
	_, err := New(cfg, "")
	assert.Error(t, err)
}

func TestTickUpdatesHealthSnapshot(t *testing.T) {
	a, err := New(testConfig(), "")
	require.NoError(t, err)

	// Bus is not connected; publishes are silent no-ops.
	a.tick(time.Now())

	snap := a.statusSnapshot()
	assert.Equal(t, "wall-1", snap.Health.WallID)
	assert.Equal(t, health.ModeStarting, snap.Health.Mode, "inside the warmup window")

	a.startedAt = time.Now().Add(-time.Minute)
	a.tick(time.Now())
	snap = a.statusSnapshot()
	assert.NotEqual(t, health.ModeStarting, snap.Health.Mode)
}

func TestShutdownPublishesShuttingDownMode(t *testing.T) {
	a, err := New(testConfig(), "")
	require.NoError(t, err)

	a.shutdown()
	assert.True(t, a.shuttingDown.Load())

	a.tick(time.Now())
	assert.Equal(t, health.ModeShuttingDown, a.statusSnapshot().Health.Mode)
}

func TestStandardCommandsRegistered(t *testing.T) {
	a, err := New(testConfig(), "")
	require.NoError(t, err)

	reg := command.NewRegistry()
	a.registerCommands(reg)
	for _, cmdType := range []string{
		command.TypeRestartVuos, command.TypeStartVuos, command.TypeStopVuos,
		command.TypeQuitWatchdog, command.TypeSwitchBroker,
		command.TypeRequestTelemetry, command.TypeRequestConfig,
		command.TypeStartStream, command.TypeStopStream, command.TypeSetStreamQuality,
	} {
		_, ok := reg.Lookup(cmdType)
		assert.True(t, ok, cmdType)
	}

	def, _ := reg.Lookup(command.TypeRestartVuos)
	assert.True(t, def.RequiresLease)
	assert.True(t, def.LocalBypass)

	def, _ = reg.Lookup(command.TypeStartStream)
	assert.False(t, def.RequiresLease, "streaming commands require no lease")
}

func TestRequestQuitClosesChannel(t *testing.T) {
	a, err := New(testConfig(), "")
	require.NoError(t, err)

	a.requestQuit()
	a.requestQuit() // idempotent

	select {
	case <-a.quit:
	case <-time.After(time.Second):
		t.Fatal("quit channel did not close")
	}
}

func TestDispatchRoutesLease(t *testing.T) {
	a, err := New(testConfig(), "")
	require.NoError(t, err)

	expires := time.Now().Add(time.Minute).UnixMilli()
	payload := []byte(`{"schema":"vu.watchdog.lease.v1","owner":"ops-1","expiresTs":` +
		strconv.FormatInt(expires, 10) + `}`)
	a.dispatch(context.Background(), "watchdog/wall-1/lease", payload)

	assert.True(t, a.leases.IsActive())
}

func TestDispatchIgnoresUnroutedTopic(t *testing.T) {
	a, err := New(testConfig(), "")
	require.NoError(t, err)

	// Must not panic or mutate anything observable.
	a.dispatch(context.Background(), "watchdog/wall-1/unexpected", []byte(`{}`))
	assert.False(t, a.leases.IsActive())
}

func TestDispatchWebRTCWhileBridgeStopped(t *testing.T) {
	a, err := New(testConfig(), "")
	require.NoError(t, err)

	// Viewer traffic while the bridge is disconnected is dropped safely.
	a.dispatch(context.Background(), "watchdog/wall-1/webrtc/join", []byte(`{"from":"viewer-1"}`))
	a.dispatch(context.Background(), "watchdog/wall-1/webrtc/leave", []byte(`{"from":"viewer-1"}`))
	assert.Zero(t, a.bridge.ViewerCount())
}
