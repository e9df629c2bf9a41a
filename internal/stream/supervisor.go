// SPDX-License-Identifier: MIT

// Package stream supervises the external WebRTC media engine: spawn with the
// right capture flags, wait for its control API, watch for exit, and expose
// the retained streaming state.
package stream

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/config"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/log"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/metrics"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/procgroup"
)

// Status of the media engine process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
)

const (
	startupProbeTimeout = 10 * time.Second
	startupProbePeriod  = 250 * time.Millisecond
	portReleaseWait     = 1500 * time.Millisecond
	stopGrace           = 5 * time.Second
)

// State is the streaming status as published retained on stream/status.
type State struct {
	Status    Status         `json:"status"`
	PID       int            `json:"pid,omitempty"`
	Port      int            `json:"port,omitempty"`
	StartedAt int64          `json:"startedAt,omitempty"`
	ViewerURL string         `json:"viewerUrl,omitempty"`
	Error     string         `json:"error,omitempty"`
	Monitor   int            `json:"monitor"`
	Quality   config.Quality `json:"quality"`
	Available bool           `json:"available"`
}

// Supervisor owns the engine subprocess. All state mutation happens here.
type Supervisor struct {
	enginePath string
	stunServer string
	streamName string
	logger     zerolog.Logger

	// opMu serializes whole Start/Stop sequences. Two overlapping starts
	// must not both observe "no engine" and spawn twice.
	opMu sync.Mutex

	mu     sync.Mutex
	state  State
	cmd    *exec.Cmd
	waitCh chan error
	client *EngineClient

	releaseWait time.Duration
	probe       func(ctx context.Context, client *EngineClient) bool

	// OnState receives every state change (retained stream/status publish).
	OnState func(State)
}

// NewSupervisor creates a supervisor for the engine binary named in cfg.
func NewSupervisor(cfg *config.Config) *Supervisor {
	available := false
	if cfg.MediaEnginePath != "" {
		if _, err := os.Stat(cfg.MediaEnginePath); err == nil {
			available = true
		}
	}
	return &Supervisor{
		enginePath:  cfg.MediaEnginePath,
		stunServer:  cfg.StunServer,
		streamName:  cfg.WallID,
		logger:      log.WithComponent("stream"),
		releaseWait: portReleaseWait,
		probe: func(ctx context.Context, client *EngineClient) bool {
			return client.Alive(ctx)
		},
		state: State{
			Status:    StatusStopped,
			Quality:   cfg.DefaultQuality,
			Available: available,
		},
	}
}

// State returns a copy of the current streaming state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Client returns the control-API client for the running engine, or nil.
func (s *Supervisor) Client() *EngineClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != StatusRunning {
		return nil
	}
	return s.client
}

// Start launches the engine capturing the given monitor at the given
// quality. Any pre-existing instance is terminated first and the listen port
// given time to release. Start blocks until the engine answers its control
// API or the startup probe times out.
func (s *Supervisor) Start(ctx context.Context, monitor int, quality config.Quality) error {
	// The terminate, choose-port, spawn, probe sequence must not interleave
	// with another start or a stop.
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.enginePath == "" || !s.state.Available {
		s.mu.Unlock()
		return fmt.Errorf("media engine not available at %q", s.enginePath)
	}
	running := s.cmd
	waitCh := s.waitCh
	s.cmd = nil
	s.waitCh = nil
	s.client = nil
	s.mu.Unlock()

	if running != nil {
		s.logger.Info().Str("event", "stream.replacing_engine").Msg("terminating pre-existing engine instance")
		_ = procgroup.Terminate(running, waitCh, stopGrace)
		time.Sleep(s.releaseWait)
	}

	port, err := choosePort()
	if err != nil {
		s.setError(err)
		return err
	}

	args := []string{
		"-H", fmt.Sprintf("127.0.0.1:%d", port),
		"-s", s.stunServer,
		"-n", s.streamName,
		"-u", fmt.Sprintf("screen://%d", monitor),
		"-W", fmt.Sprintf("%d", quality.Width),
		"-L", fmt.Sprintf("%d", quality.Height),
		"-F", fmt.Sprintf("%d", quality.FPS),
		"-B", fmt.Sprintf("%d", quality.Bitrate),
	}
	cmd := exec.Command(s.enginePath, args...)
	procgroup.Set(cmd)
	if err := cmd.Start(); err != nil {
		s.setError(err)
		return fmt.Errorf("spawn media engine: %w", err)
	}
	metrics.EngineSpawnTotal.WithLabelValues("start").Inc()

	wait := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		wait <- err
		s.onExit(cmd, err)
	}()

	s.setState(func(st *State) {
		st.Status = StatusStarting
		st.PID = cmd.Process.Pid
		st.Port = port
		st.Monitor = monitor
		st.Quality = quality
		st.Error = ""
	})
	s.mu.Lock()
	s.cmd = cmd
	s.waitCh = wait
	s.client = NewEngineClient(port)
	client := s.client
	s.mu.Unlock()

	// Poll the control API until the engine answers or the timeout expires.
	deadline := time.Now().Add(startupProbeTimeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			_ = s.stopCurrent()
			return ctx.Err()
		}
		if s.probe(ctx, client) {
			now := time.Now()
			s.setState(func(st *State) {
				st.Status = StatusRunning
				st.StartedAt = now.UnixMilli()
				st.ViewerURL = fmt.Sprintf("http://127.0.0.1:%d/", port)
			})
			s.logger.Info().
				Str("event", "stream.engine_running").
				Int(log.FieldPID, cmd.Process.Pid).
				Int(log.FieldPort, port).
				Msg("media engine is up")
			return nil
		}
		time.Sleep(startupProbePeriod)
	}

	err = fmt.Errorf("media engine did not answer on port %d within %s", port, startupProbeTimeout)
	// Drop the bookkeeping first so onExit knows this cmd is no longer
	// current and does not race the error state below.
	s.mu.Lock()
	s.cmd = nil
	s.waitCh = nil
	s.client = nil
	s.mu.Unlock()
	_ = procgroup.Terminate(cmd, wait, stopGrace)
	s.setError(err)
	return err
}

// Stop terminates the engine with SIGTERM, a 5 s grace period, then SIGKILL.
func (s *Supervisor) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopCurrent()
}

func (s *Supervisor) stopCurrent() error {
	s.mu.Lock()
	cmd := s.cmd
	waitCh := s.waitCh
	s.cmd = nil
	s.waitCh = nil
	s.client = nil
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}
	err := procgroup.Terminate(cmd, waitCh, stopGrace)
	s.setState(func(st *State) {
		st.Status = StatusStopped
		st.PID = 0
		st.Port = 0
		st.StartedAt = 0
		st.ViewerURL = ""
		st.Error = ""
	})
	s.logger.Info().Str("event", "stream.engine_stopped").Msg("media engine stopped")
	return err
}

// onExit reverts the state when the engine dies underneath us. A cmd that is
// no longer current was already replaced or stopped deliberately.
func (s *Supervisor) onExit(cmd *exec.Cmd, err error) {
	s.mu.Lock()
	if s.cmd != cmd {
		s.mu.Unlock()
		return
	}
	s.cmd = nil
	s.waitCh = nil
	s.client = nil
	s.mu.Unlock()

	s.logger.Warn().Err(err).
		Str("event", "stream.engine_exited").
		Msg("media engine exited unexpectedly")
	s.setState(func(st *State) {
		st.Status = StatusStopped
		st.PID = 0
		st.Port = 0
		st.StartedAt = 0
		st.ViewerURL = ""
	})
}

func (s *Supervisor) setError(err error) {
	s.setState(func(st *State) {
		st.Status = StatusError
		st.Error = err.Error()
	})
}

func (s *Supervisor) setState(mutate func(*State)) {
	s.mu.Lock()
	mutate(&s.state)
	snapshot := s.state
	onState := s.OnState
	s.mu.Unlock()
	if onState != nil {
		onState(snapshot)
	}
}
