// SPDX-License-Identifier: MIT

package events

import "github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/health"

// Severity of an emitted event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// conditionSeverity maps a condition id to the severity of its _ON event.
// Unknown ids default to WARN.
var conditionSeverity = map[string]Severity{
	health.CondVuosDown:          SeverityCritical,
	health.CondServerDown:        SeverityCritical,
	health.CondDiskFull:          SeverityCritical,
	health.CondThermalThrottling: SeverityCritical,
	health.CondLockStale:         SeverityCritical,
	health.CondInternetOffline:   SeverityWarn,
	health.CondLatencyHigh:       SeverityWarn,
	health.CondDiskHigh:          SeverityWarn,
	health.CondGPUProbeFailed:    SeverityWarn,
	health.CondErrorsHigh:        SeverityWarn,
}

// SeverityFor returns the mapped severity for a condition id.
func SeverityFor(conditionID string) Severity {
	if sev, ok := conditionSeverity[conditionID]; ok {
		return sev
	}
	return SeverityWarn
}

// modeSeverity returns the severity of a MODE_CHANGED event entering mode.
func modeSeverity(mode health.Mode) Severity {
	switch mode {
	case health.ModeDegraded:
		return SeverityWarn
	case health.ModeCritical:
		return SeverityCritical
	default:
		return SeverityInfo
	}
}
