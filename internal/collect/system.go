// SPDX-License-Identifier: MIT

package collect

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/metrics"
)

// sampleStatic fills the fields that never change after boot (CPU model and
// core count). Called once during warm-up.
func (r *Runner) sampleStatic(ctx context.Context) {
	model := ""
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		model = infos[0].ModelName
	}
	cores, _ := cpu.CountsWithContext(ctx, true)
	r.cache.setSystem(func(s *SystemStats) {
		s.CPUModel = model
		s.CPUCores = cores
	})
}

// sampleCPU reads CPU and RAM usage. gopsutil computes the CPU percentage
// from the tick delta since the previous call, so each read is instant.
func (r *Runner) sampleCPU(ctx context.Context) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(percents) == 0 {
		r.probeFailed("cpu", err)
	} else {
		r.cache.setSystem(func(s *SystemStats) { s.CPUPercent = percents[0] })
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		r.probeFailed("memory", err)
		return
	}
	r.cache.setSystem(func(s *SystemStats) {
		s.RAMTotalMB = float64(vm.Total) / (1 << 20)
		s.RAMUsedMB = float64(vm.Used) / (1 << 20)
		s.RAMPercent = vm.UsedPercent
	})
}

// sampleGPU polls via the first-success-wins selector. A nil result leaves
// the GPU section absent, which feeds the GPU_PROBE_FAILED condition.
func (r *Runner) sampleGPU(ctx context.Context) {
	stats, err := r.gpu.probe(ctx)
	if err != nil {
		r.probeFailed("gpu", err)
		r.cache.setSystem(func(s *SystemStats) { s.GPU = nil })
		return
	}
	r.cache.setSystem(func(s *SystemStats) { s.GPU = stats })
}

// sampleDiskUsage aggregates usage across all fixed drives and refreshes the
// OS uptime on the same slow cadence.
func (r *Runner) sampleDiskUsage(ctx context.Context) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		r.probeFailed("disk", err)
		return
	}
	var total, used uint64
	for _, p := range parts {
		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		total += u.Total
		used += u.Used
	}
	if total == 0 {
		r.probeFailed("disk", errNoFixedDrives)
		return
	}
	pct := float64(used) / float64(total) * 100
	r.cache.setSystem(func(s *SystemStats) {
		s.DiskTotalGB = float64(total) / (1 << 30)
		s.DiskUsedGB = float64(used) / (1 << 30)
		s.DiskPercent = pct
	})

	if up, err := host.UptimeWithContext(ctx); err == nil {
		r.cache.setSystem(func(s *SystemStats) { s.UptimeSeconds = up })
	}
}

type ioSample struct {
	readBytes  uint64
	writeBytes uint64
	at         time.Time
}

// sampleDiskIO converts cumulative read/write counters into MB/s over the
// interval since the previous sample. The first sample only primes the
// baseline.
func (r *Runner) sampleDiskIO(ctx context.Context) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		r.probeFailed("disk_io", err)
		return
	}
	var read, write uint64
	for _, c := range counters {
		read += c.ReadBytes
		write += c.WriteBytes
	}
	now := time.Now()
	prev := r.prevIO
	r.prevIO = ioSample{readBytes: read, writeBytes: write, at: now}
	if prev.at.IsZero() {
		return
	}
	elapsed := now.Sub(prev.at).Seconds()
	if elapsed <= 0 || read < prev.readBytes || write < prev.writeBytes {
		return
	}
	r.cache.setSystem(func(s *SystemStats) {
		s.DiskReadMBs = float64(read-prev.readBytes) / (1 << 20) / elapsed
		s.DiskWriteMBs = float64(write-prev.writeBytes) / (1 << 20) / elapsed
	})
}

// sampleThermal and friends delegate to injectable platform probes. A nil
// probe leaves the cached value untouched.
func (r *Runner) sampleThermal(ctx context.Context) {
	if r.ThermalProbe == nil {
		return
	}
	throttling, err := r.ThermalProbe(ctx)
	if err != nil {
		r.probeFailed("thermal", err)
		return
	}
	r.cache.setSystem(func(s *SystemStats) { s.ThermalThrottling = throttling })
}

func (r *Runner) sampleUpdates(ctx context.Context) {
	if r.UpdatesProbe == nil {
		return
	}
	pending, err := r.UpdatesProbe(ctx)
	if err != nil {
		r.probeFailed("updates", err)
		return
	}
	r.cache.setSystem(func(s *SystemStats) { s.PendingUpdates = pending })
}

func (r *Runner) sampleEventLog(ctx context.Context) {
	if r.EventLogProbe == nil {
		return
	}
	summary, err := r.EventLogProbe(ctx)
	if err != nil {
		r.probeFailed("event_log", err)
		return
	}
	r.cache.setSystem(func(s *SystemStats) { s.RecentEvents = summary })
}

// probeFailed records a transient collector failure. Cached values stay
// intact; sustained failures surface through health conditions instead.
func (r *Runner) probeFailed(collector string, err error) {
	metrics.RecordCollectorFailure(collector)
	r.logger.Debug().Err(err).
		Str("event", "collect.probe_failed").
		Str("collector", collector).
		Msg("probe failed, keeping cached value")
}
