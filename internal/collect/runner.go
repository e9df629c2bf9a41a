// SPDX-License-Identifier: MIT

package collect

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/config"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/log"
)

// Runner owns all collector goroutines. Each collector runs on its own
// cadence and is the single writer of its cache section.
type Runner struct {
	cache  *Cache
	logger zerolog.Logger

	internetProbeURL string
	localServerURL   string
	targetProcess    string
	serverProcess    string
	lockFilePath     string
	errorLogPath     string

	httpClient *http.Client
	gpu        *gpuSelector
	crashes    crashTracker
	prevIO     ioSample

	// Platform-specific probes are supplied by the host wiring; nil probes
	// leave their cached section untouched.
	ThermalProbe  func(ctx context.Context) (bool, error)
	UpdatesProbe  func(ctx context.Context) (int, error)
	EventLogProbe func(ctx context.Context) (EventLogSummary, error)

	// OnCrash fires when the target app reappears under a new PID.
	OnCrash func(oldPID, newPID int32)
}

// NewRunner builds a collector runner over cache for the given config.
func NewRunner(cfg *config.Config, cache *Cache) *Runner {
	return &Runner{
		cache:            cache,
		logger:           log.WithComponent("collect"),
		internetProbeURL: cfg.InternetProbeURL,
		localServerURL:   cfg.LocalServerURL,
		targetProcess:    cfg.TargetProcess,
		serverProcess:    cfg.ServerProcess,
		lockFilePath:     cfg.LockFilePath,
		errorLogPath:     cfg.ErrorLogPath,
		httpClient:       &http.Client{Timeout: 5 * time.Second},
		gpu:              newGPUSelector(nvidiaSMIStrategy{}),
	}
}

// SetGPUStrategies replaces the GPU probe order. Test seam and platform hook.
func (r *Runner) SetGPUStrategies(strategies ...GPUStrategy) {
	r.gpu = newGPUSelector(strategies...)
}

// Warm performs one synchronous round of the fast collectors so the first
// telemetry tick after startup carries real values.
func (r *Runner) Warm(ctx context.Context) {
	r.sampleStatic(ctx)
	r.sampleCPU(ctx)
	r.sampleDiskUsage(ctx)
	r.sampleProcesses(ctx)
	r.sampleLock(ctx)
	r.sampleLocalServer(ctx)
}

// Run starts every collector loop and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	loops := []struct {
		name     string
		interval time.Duration
		sample   func(context.Context)
	}{
		{"cpu", 2 * time.Second, r.sampleCPU},
		{"gpu", 5 * time.Second, r.sampleGPU},
		{"disk", 60 * time.Second, r.sampleDiskUsage},
		{"disk_io", 5 * time.Second, r.sampleDiskIO},
		{"thermal", 10 * time.Second, r.sampleThermal},
		{"updates", 5 * time.Minute, r.sampleUpdates},
		{"event_log", 60 * time.Second, r.sampleEventLog},
		{"processes", 5 * time.Second, r.sampleProcesses},
		{"lock", 2 * time.Second, r.sampleLock},
		{"error_log", 10 * time.Second, r.sampleErrorLog},
		{"internet", 10 * time.Second, r.sampleInternet},
		{"local_server", 3 * time.Second, r.sampleLocalServer},
	}

	for _, loop := range loops {
		loop := loop
		g.Go(func() error {
			ticker := time.NewTicker(loop.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					loop.sample(ctx)
				}
			}
		})
	}

	r.logger.Info().
		Str("event", "collect.started").
		Int("collectors", len(loops)).
		Msg("collector loops running")
	return g.Wait()
}
