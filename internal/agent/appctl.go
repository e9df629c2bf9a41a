// SPDX-License-Identifier: MIT

package agent

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/log"
)

const (
	appStopGrace   = 5 * time.Second
	appStopPoll    = 250 * time.Millisecond
	appRestartGap  = time.Second
	appStartBudget = 10 * time.Second
)

var errNoLaunchPath = errors.New("no launch path configured for the target app")

// appController starts and stops the watched application. Stop works by
// process name so it also covers instances the watchdog did not launch.
type appController struct {
	processName string
	launchPath  string
	logger      zerolog.Logger
}

func newAppController(processName, launchPath string) *appController {
	return &appController{
		processName: processName,
		launchPath:  launchPath,
		logger:      log.WithComponent("appctl"),
	}
}

// find returns the first process whose name matches the target, or nil.
func (a *appController) find(ctx context.Context) (*process.Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}
	want := strings.ToLower(a.processName)
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.ToLower(strings.TrimSuffix(name, ".exe")) == want {
			return p, nil
		}
	}
	return nil, nil
}

// Start launches the target app and releases the child so it outlives the
// watchdog. Starting an already-running app is a no-op.
func (a *appController) Start(ctx context.Context) error {
	if a.launchPath == "" {
		return errNoLaunchPath
	}
	if p, err := a.find(ctx); err != nil {
		return err
	} else if p != nil {
		a.logger.Info().
			Str("event", "appctl.already_running").
			Int32(log.FieldPID, p.Pid).
			Msg("target app already running")
		return nil
	}

	cmd := exec.Command(a.launchPath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", a.launchPath, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		a.logger.Warn().Err(err).Str("event", "appctl.release_failed").Msg("could not detach from child")
	}
	a.logger.Info().
		Str("event", "appctl.started").
		Int(log.FieldPID, pid).
		Msg("target app launched")
	return nil
}

// Stop terminates the target app: polite terminate, grace period, then kill.
// A missing process is success.
func (a *appController) Stop(ctx context.Context) error {
	p, err := a.find(ctx)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	pid := p.Pid
	if err := p.TerminateWithContext(ctx); err != nil {
		a.logger.Warn().Err(err).
			Str("event", "appctl.terminate_failed").
			Int32(log.FieldPID, pid).
			Msg("terminate failed, escalating to kill")
		return p.KillWithContext(ctx)
	}

	deadline := time.Now().Add(appStopGrace)
	for time.Now().Before(deadline) {
		running, err := p.IsRunningWithContext(ctx)
		if err != nil || !running {
			a.logger.Info().
				Str("event", "appctl.stopped").
				Int32(log.FieldPID, pid).
				Msg("target app stopped")
			return nil
		}
		time.Sleep(appStopPoll)
	}

	a.logger.Warn().
		Str("event", "appctl.grace_expired").
		Int32(log.FieldPID, pid).
		Msg("target app ignored terminate, killing")
	return p.KillWithContext(ctx)
}

// Restart stops then starts the target app with a short gap so the old
// instance releases its lock file and listen ports.
func (a *appController) Restart(ctx context.Context) error {
	if a.launchPath == "" {
		return errNoLaunchPath
	}
	if err := a.Stop(ctx); err != nil {
		return err
	}
	time.Sleep(appRestartGap)
	return a.Start(ctx)
}
