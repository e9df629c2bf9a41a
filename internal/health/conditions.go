// SPDX-License-Identifier: MIT

// Package health evaluates the fixed condition set over telemetry snapshots,
// applies per-condition debounce, and derives the operational mode.
package health

import (
	"time"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/collect"
)

// Level classifies a condition's impact.
type Level string

const (
	LevelDegraded Level = "DEGRADED"
	LevelCritical Level = "CRITICAL"
)

// Condition ids, fixed at startup.
const (
	CondVuosDown          = "VUOS_DOWN"
	CondServerDown        = "SERVER_DOWN"
	CondDiskFull          = "DISK_FULL"
	CondThermalThrottling = "THERMAL_THROTTLING"
	CondLockStale         = "LOCK_STALE"
	CondInternetOffline   = "INTERNET_OFFLINE"
	CondLatencyHigh       = "LATENCY_HIGH"
	CondDiskHigh          = "DISK_HIGH"
	CondGPUProbeFailed    = "GPU_PROBE_FAILED"
	CondErrorsHigh        = "ERRORS_HIGH"
)

// Definition is one static condition: a predicate over a telemetry record
// plus the debounce window that gates activation.
type Definition struct {
	ID        string
	Level     Level
	Debounce  time.Duration
	Predicate func(collect.TelemetryRecord) bool
}

// Definitions returns the fixed condition set.
func Definitions() []Definition {
	return []Definition{
		{
			ID: CondVuosDown, Level: LevelCritical, Debounce: 10 * time.Second,
			Predicate: func(r collect.TelemetryRecord) bool { return !r.App.TargetRunning },
		},
		{
			ID: CondServerDown, Level: LevelCritical, Debounce: 10 * time.Second,
			Predicate: func(r collect.TelemetryRecord) bool { return !r.App.ServerRunning },
		},
		{
			ID: CondDiskFull, Level: LevelCritical,
			Predicate: func(r collect.TelemetryRecord) bool { return r.System.DiskPercent >= 97 },
		},
		{
			ID: CondThermalThrottling, Level: LevelCritical,
			Predicate: func(r collect.TelemetryRecord) bool { return r.System.ThermalThrottling },
		},
		{
			ID: CondLockStale, Level: LevelCritical,
			Predicate: func(r collect.TelemetryRecord) bool {
				return !r.App.Lock.Healthy && r.App.Lock.HeartbeatAgeMs > 15000
			},
		},
		{
			ID: CondInternetOffline, Level: LevelDegraded, Debounce: 30 * time.Second,
			Predicate: func(r collect.TelemetryRecord) bool { return !r.Network.InternetReachable },
		},
		{
			ID: CondLatencyHigh, Level: LevelDegraded, Debounce: 60 * time.Second,
			// nil latency reads as 0, so an unreachable link never trips this.
			Predicate: func(r collect.TelemetryRecord) bool {
				return r.Network.LatencyMs != nil && *r.Network.LatencyMs > 250
			},
		},
		{
			ID: CondDiskHigh, Level: LevelDegraded,
			Predicate: func(r collect.TelemetryRecord) bool {
				return r.System.DiskPercent >= 90 && r.System.DiskPercent < 97
			},
		},
		{
			ID: CondGPUProbeFailed, Level: LevelDegraded, Debounce: 60 * time.Second,
			Predicate: func(r collect.TelemetryRecord) bool { return r.System.GPU == nil },
		},
		{
			ID: CondErrorsHigh, Level: LevelDegraded,
			Predicate: func(r collect.TelemetryRecord) bool { return r.App.Log.RecentErrorCount >= 5 },
		},
	}
}
