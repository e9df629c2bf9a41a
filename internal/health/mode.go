// SPDX-License-Identifier: MIT

package health

import "time"

// Mode is the single-valued health summary of the agent.
type Mode string

const (
	ModeStarting     Mode = "STARTING"
	ModeReady        Mode = "READY"
	ModeDegraded     Mode = "DEGRADED"
	ModeCritical     Mode = "CRITICAL"
	ModeShuttingDown Mode = "SHUTTING_DOWN"
)

// warmup is the wall-clock window after process start during which the mode
// stays STARTING regardless of conditions.
const warmup = 5 * time.Second

// DeriveMode is a pure function of the shutdown flag, process uptime and the
// current condition states. Identical inputs yield identical outputs.
func DeriveMode(shuttingDown bool, uptime time.Duration, states []State) Mode {
	if shuttingDown {
		return ModeShuttingDown
	}
	if uptime < warmup {
		return ModeStarting
	}
	degraded := false
	for _, s := range states {
		if !s.Active {
			continue
		}
		if s.Level == LevelCritical {
			return ModeCritical
		}
		degraded = true
	}
	if degraded {
		return ModeDegraded
	}
	return ModeReady
}

// Ordinal maps a mode to a stable numeric value for the mode gauge.
func (m Mode) Ordinal() int {
	switch m {
	case ModeStarting:
		return 0
	case ModeReady:
		return 1
	case ModeDegraded:
		return 2
	case ModeCritical:
		return 3
	case ModeShuttingDown:
		return 4
	}
	return -1
}
