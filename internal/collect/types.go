// SPDX-License-Identifier: MIT

// Package collect runs the background samplers for system, network and
// application health, and assembles coherent telemetry snapshots from their
// cached values. Collectors never block the assembler: a failed probe keeps
// the previous cached value and records the failure internally.
package collect

// GPUStats carries the optional GPU section of a telemetry record.
type GPUStats struct {
	Name         string  `json:"name"`
	UsagePercent float64 `json:"usagePercent"`
	VRAMUsedMB   float64 `json:"vramUsedMb"`
	VRAMTotalMB  float64 `json:"vramTotalMb"`
	TemperatureC float64 `json:"temperatureC"`
}

// EventLogSummary summarises recent entries of the OS event log.
type EventLogSummary struct {
	Count       int    `json:"count"`
	LastMessage string `json:"lastMessage,omitempty"`
}

// SystemStats is the machine-level section of a telemetry record.
type SystemStats struct {
	CPUPercent        float64         `json:"cpuPercent"`
	CPUModel          string          `json:"cpuModel"`
	CPUCores          int             `json:"cpuCores"`
	RAMTotalMB        float64         `json:"ramTotalMb"`
	RAMUsedMB         float64         `json:"ramUsedMb"`
	RAMPercent        float64         `json:"ramPercent"`
	GPU               *GPUStats       `json:"gpu,omitempty"`
	DiskTotalGB       float64         `json:"diskTotalGb"`
	DiskUsedGB        float64         `json:"diskUsedGb"`
	DiskPercent       float64         `json:"diskPercent"`
	DiskReadMBs       float64         `json:"diskReadMbs"`
	DiskWriteMBs      float64         `json:"diskWriteMbs"`
	ThermalThrottling bool            `json:"thermalThrottling"`
	PendingUpdates    int             `json:"pendingUpdates"`
	RecentEvents      EventLogSummary `json:"recentEvents"`
	UptimeSeconds     uint64          `json:"uptimeSeconds"`
}

// NetworkStats is the connectivity section of a telemetry record.
type NetworkStats struct {
	InternetReachable    bool     `json:"internetReachable"`
	LatencyMs            *float64 `json:"latencyMs"` // nil while unreachable
	LocalServerReachable bool     `json:"localServerReachable"`
	ConnectedPeers       int      `json:"connectedPeers"`
}

// LockStatus mirrors the supporting server's lock file.
type LockStatus struct {
	PID            int   `json:"pid"`
	StartTime      int64 `json:"startTime"`
	LastHeartbeat  int64 `json:"lastHeartbeat"`
	HeartbeatAgeMs int64 `json:"heartbeatAgeMs"`
	Healthy        bool  `json:"healthy"`
}

// LogSummary summarises the application error log.
type LogSummary struct {
	RecentErrorCount int    `json:"recentErrorCount"`
	LastMessage      string `json:"lastMessage,omitempty"`
	LastTime         int64  `json:"lastTime,omitempty"`
}

// AppStats is the application section of a telemetry record.
type AppStats struct {
	TargetRunning   bool       `json:"targetRunning"`
	ServerRunning   bool       `json:"serverRunning"`
	ServerVersion   string     `json:"serverVersion,omitempty"`
	TargetMemoryMB  *float64   `json:"targetMemoryMb"` // nil while not running
	CrashCountToday int        `json:"crashCountToday"`
	Lock            LockStatus `json:"lock"`
	Log             LogSummary `json:"log"`
}

// TelemetryRecord is the immutable per-tick snapshot published on the
// telemetry topic.
type TelemetryRecord struct {
	Timestamp int64        `json:"timestamp"`
	WallID    string       `json:"wallId"`
	System    SystemStats  `json:"system"`
	Network   NetworkStats `json:"network"`
	App       AppStats     `json:"app"`
}
