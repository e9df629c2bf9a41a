// SPDX-License-Identifier: MIT

package health

import (
	"time"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/collect"
)

// SchemaHealth versions the retained health payload.
const SchemaHealth = "vu.watchdog.health.v1"

// Payload is the bounded health snapshot published retained on the health
// topic. Summaries are deliberately compact: the full detail lives on the
// (non-retained) telemetry topic.
type Payload struct {
	Schema     string         `json:"schema"`
	Timestamp  int64          `json:"ts"`
	WallID     string         `json:"wallId"`
	Mode       Mode           `json:"mode"`
	Conditions []string       `json:"conditions"`
	System     SystemSummary  `json:"system"`
	Network    NetworkSummary `json:"network"`
	App        AppSummary     `json:"app"`
}

// SystemSummary is the compact system section of a health payload.
type SystemSummary struct {
	CPUPercent        float64 `json:"cpuPercent"`
	RAMPercent        float64 `json:"ramPercent"`
	DiskPercent       float64 `json:"diskPercent"`
	ThermalThrottling bool    `json:"thermalThrottling"`
	UptimeSeconds     uint64  `json:"uptimeSeconds"`
}

// NetworkSummary is the compact network section of a health payload.
type NetworkSummary struct {
	InternetReachable bool     `json:"internetReachable"`
	LatencyMs         *float64 `json:"latencyMs"`
	ConnectedPeers    int      `json:"connectedPeers"`
}

// AppSummary is the compact app section of a health payload.
type AppSummary struct {
	TargetRunning   bool `json:"targetRunning"`
	ServerRunning   bool `json:"serverRunning"`
	CrashCountToday int  `json:"crashCountToday"`
	LockHealthy     bool `json:"lockHealthy"`
}

// BuildPayload assembles the retained health payload for one tick.
func BuildPayload(rec collect.TelemetryRecord, mode Mode, states []State, now time.Time) Payload {
	return Payload{
		Schema:     SchemaHealth,
		Timestamp:  now.UnixMilli(),
		WallID:     rec.WallID,
		Mode:       mode,
		Conditions: ActiveIDs(states),
		System: SystemSummary{
			CPUPercent:        rec.System.CPUPercent,
			RAMPercent:        rec.System.RAMPercent,
			DiskPercent:       rec.System.DiskPercent,
			ThermalThrottling: rec.System.ThermalThrottling,
			UptimeSeconds:     rec.System.UptimeSeconds,
		},
		Network: NetworkSummary{
			InternetReachable: rec.Network.InternetReachable,
			LatencyMs:         rec.Network.LatencyMs,
			ConnectedPeers:    rec.Network.ConnectedPeers,
		},
		App: AppSummary{
			TargetRunning:   rec.App.TargetRunning,
			ServerRunning:   rec.App.ServerRunning,
			CrashCountToday: rec.App.CrashCountToday,
			LockHealthy:     rec.App.Lock.Healthy,
		},
	}
}
