// SPDX-License-Identifier: MIT

package collect

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

var errNoFixedDrives = errors.New("no fixed drives found")

// lockHealthyWithin is the maximum heartbeat age for a healthy server lock.
const lockHealthyWithin = 15 * time.Second

// sampleProcesses scans the process table for the target app and the
// supporting server, and runs crash detection on the target's PID.
func (r *Runner) sampleProcesses(ctx context.Context) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		r.probeFailed("processes", err)
		return
	}

	var targetPID int32
	var targetMem *float64
	serverRunning := false
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		switch {
		case matchProcess(name, r.targetProcess):
			targetPID = p.Pid
			if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
				mb := float64(mi.RSS) / (1 << 20)
				targetMem = &mb
			}
		case matchProcess(name, r.serverProcess):
			serverRunning = true
		}
	}

	crashed, crashCount := r.crashes.observe(targetPID, time.Now())

	r.cache.setApp(func(a *AppStats) {
		a.TargetRunning = targetPID != 0
		a.ServerRunning = serverRunning
		a.TargetMemoryMB = targetMem
		a.CrashCountToday = crashCount
	})

	if crashed && r.OnCrash != nil {
		r.OnCrash(r.crashes.previousPID(), targetPID)
	}
}

func matchProcess(name, want string) bool {
	if want == "" {
		return false
	}
	name = strings.TrimSuffix(strings.ToLower(name), ".exe")
	return name == strings.ToLower(want)
}

// crashTracker turns PID observations into a daily crash count. A PID change
// while the process is present counts as a crash; disappearance alone does
// not, the next reappearance under a new PID does.
type crashTracker struct {
	lastPID  int32
	prevPID  int32
	count    int
	countDay string
}

func (t *crashTracker) observe(pid int32, now time.Time) (crashed bool, count int) {
	day := now.Format("2006-01-02")
	if day != t.countDay {
		t.countDay = day
		t.count = 0
	}
	if pid != 0 {
		if t.lastPID != 0 && pid != t.lastPID {
			t.prevPID = t.lastPID
			t.count++
			crashed = true
		}
		t.lastPID = pid
	}
	return crashed, t.count
}

func (t *crashTracker) previousPID() int32 { return t.prevPID }

// lockFile is the on-disk heartbeat record written by the supporting server.
type lockFile struct {
	PID           int   `json:"pid"`
	StartTime     int64 `json:"startTime"`
	LastHeartbeat int64 `json:"lastHeartbeat"`
}

// sampleLock reads the server lock file and derives heartbeat freshness.
func (r *Runner) sampleLock(_ context.Context) {
	if r.lockFilePath == "" {
		return
	}
	raw, err := os.ReadFile(r.lockFilePath)
	if err != nil {
		r.probeFailed("lock", err)
		return
	}
	var lf lockFile
	if err := json.Unmarshal(raw, &lf); err != nil {
		r.probeFailed("lock", err)
		return
	}
	age := time.Now().UnixMilli() - lf.LastHeartbeat
	r.cache.setApp(func(a *AppStats) {
		a.Lock = LockStatus{
			PID:            lf.PID,
			StartTime:      lf.StartTime,
			LastHeartbeat:  lf.LastHeartbeat,
			HeartbeatAgeMs: age,
			Healthy:        age <= lockHealthyWithin.Milliseconds(),
		}
	})
}

// errorLogTail caps how much of the log file is scanned per sample.
const errorLogTail = 64 << 10

// sampleErrorLog counts ERROR lines in the tail of the application log.
func (r *Runner) sampleErrorLog(_ context.Context) {
	if r.errorLogPath == "" {
		return
	}
	f, err := os.Open(r.errorLogPath)
	if err != nil {
		r.probeFailed("error_log", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		r.probeFailed("error_log", err)
		return
	}
	if info.Size() > errorLogTail {
		if _, err := f.Seek(-errorLogTail, io.SeekEnd); err != nil {
			r.probeFailed("error_log", err)
			return
		}
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		r.probeFailed("error_log", err)
		return
	}

	count := 0
	last := ""
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.Contains(line, "ERROR") {
			count++
			last = strings.TrimSpace(line)
		}
	}
	mtime := info.ModTime().UnixMilli()
	r.cache.setApp(func(a *AppStats) {
		a.Log = LogSummary{RecentErrorCount: count, LastMessage: last, LastTime: mtime}
	})
}
