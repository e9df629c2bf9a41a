// SPDX-License-Identifier: MIT

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/command"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/config"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/events"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/stream"
)

// SchemaConfig versions the retained config payload.
const SchemaConfig = "vu.watchdog.config.v1"

// brokerInfo is the credential-free broker entry exposed on the config topic.
type brokerInfo struct {
	ID     string `json:"id"`
	Label  string `json:"label,omitempty"`
	Active bool   `json:"active"`
}

type configPayload struct {
	Schema         string         `json:"schema"`
	TS             int64          `json:"ts"`
	WallID         string         `json:"wallId"`
	DashboardPort  int            `json:"dashboardPort"`
	Brokers        []brokerInfo   `json:"brokers"`
	DefaultQuality config.Quality `json:"defaultQuality"`
	EngineOnDisk   bool           `json:"mediaEngineAvailable"`
}

// publishConfig publishes the retained, sanitized configuration. Credentials
// never leave the host.
func (a *Agent) publishConfig() {
	active := a.bus.ActiveBroker()
	brokers := make([]brokerInfo, 0, len(a.cfg.Brokers))
	for _, b := range a.cfg.Brokers {
		brokers = append(brokers, brokerInfo{ID: b.ID, Label: b.Label, Active: b.ID == active.ID})
	}
	payload := configPayload{
		Schema:         SchemaConfig,
		TS:             time.Now().UnixMilli(),
		WallID:         a.cfg.WallID,
		DashboardPort:  a.cfg.DashboardPort,
		Brokers:        brokers,
		DefaultQuality: a.cfg.DefaultQuality,
		EngineOnDisk:   a.supervisor.State().Available,
	}
	_ = a.bus.PublishConfig(payload)
}

// publishTelemetry publishes one immediate, non-retained telemetry record.
func (a *Agent) publishTelemetry(now time.Time) {
	_ = a.bus.PublishTelemetry(a.cache.Snapshot(a.cfg.WallID, now))
}

type switchBrokerArgs struct {
	BrokerID string `json:"brokerId"`
}

type startStreamArgs struct {
	Monitor int             `json:"monitor"`
	Quality *config.Quality `json:"quality,omitempty"`
}

// registerCommands binds the standard command set. Destructive commands
// require a lease with local bypass; REQUEST_* and streaming commands do not.
func (a *Agent) registerCommands(reg *command.Registry) {
	leased := func(cmdType string, h command.Handler) command.Definition {
		return command.Definition{Type: cmdType, RequiresLease: true, LocalBypass: true, Handler: h}
	}
	open := func(cmdType string, h command.Handler) command.Definition {
		return command.Definition{Type: cmdType, Handler: h}
	}

	reg.Register(leased(command.TypeRestartVuos, func(ctx context.Context, _ json.RawMessage) (command.Result, error) {
		if err := a.appctl.Restart(ctx); err != nil {
			return command.Result{}, err
		}
		a.emitter.Lifecycle("VUOS_RESTARTED", events.SeverityInfo, map[string]any{"requested": true})
		return command.Result{Message: "target app restarted"}, nil
	}))

	reg.Register(leased(command.TypeStartVuos, func(ctx context.Context, _ json.RawMessage) (command.Result, error) {
		if err := a.appctl.Start(ctx); err != nil {
			return command.Result{}, err
		}
		return command.Result{Message: "target app started"}, nil
	}))

	reg.Register(leased(command.TypeStopVuos, func(ctx context.Context, _ json.RawMessage) (command.Result, error) {
		if err := a.appctl.Stop(ctx); err != nil {
			return command.Result{}, err
		}
		return command.Result{Message: "target app stopped"}, nil
	}))

	reg.Register(leased(command.TypeQuitWatchdog, func(context.Context, json.RawMessage) (command.Result, error) {
		a.requestQuit()
		return command.Result{Message: "watchdog shutting down"}, nil
	}))

	reg.Register(leased(command.TypeSwitchBroker, func(_ context.Context, raw json.RawMessage) (command.Result, error) {
		var args switchBrokerArgs
		if err := json.Unmarshal(raw, &args); err != nil || args.BrokerID == "" {
			return command.Result{}, fmt.Errorf("brokerId is required")
		}
		if err := a.bus.SwitchBroker(args.BrokerID, "command"); err != nil {
			return command.Result{}, err
		}
		return command.Result{
			Message: "broker switched",
			Details: map[string]any{"brokerId": args.BrokerID},
		}, nil
	}))

	reg.Register(open(command.TypeRequestTelemetry, func(context.Context, json.RawMessage) (command.Result, error) {
		a.publishTelemetry(time.Now())
		return command.Result{Message: "telemetry published"}, nil
	}))

	reg.Register(open(command.TypeRequestConfig, func(context.Context, json.RawMessage) (command.Result, error) {
		a.publishConfig()
		return command.Result{Message: "config published"}, nil
	}))

	reg.Register(open(command.TypeStartStream, func(ctx context.Context, raw json.RawMessage) (command.Result, error) {
		var args startStreamArgs
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return command.Result{}, fmt.Errorf("decode stream args: %w", err)
			}
		}
		quality := a.cfg.DefaultQuality
		if args.Quality != nil {
			quality = *args.Quality
		}
		if err := a.supervisor.Start(ctx, args.Monitor, quality); err != nil {
			return command.Result{}, err
		}
		if err := a.bridge.Start(ctx); err != nil {
			_ = a.supervisor.Stop()
			return command.Result{}, err
		}
		st := a.supervisor.State()
		return command.Result{
			Message: "streaming started",
			Details: map[string]any{"port": st.Port, "pid": st.PID},
		}, nil
	}))

	reg.Register(open(command.TypeStopStream, func(context.Context, json.RawMessage) (command.Result, error) {
		a.bridge.Stop()
		if err := a.supervisor.Stop(); err != nil {
			return command.Result{}, err
		}
		return command.Result{Message: "streaming stopped"}, nil
	}))

	// Quality changes restart the engine; viewers reattach via the fresh
	// ready announcement. APPLIED means the restarted engine answered its
	// startup probe.
	reg.Register(open(command.TypeSetStreamQuality, func(ctx context.Context, raw json.RawMessage) (command.Result, error) {
		var quality config.Quality
		if err := json.Unmarshal(raw, &quality); err != nil {
			return command.Result{}, fmt.Errorf("decode quality args: %w", err)
		}
		st := a.supervisor.State()
		if st.Status != stream.StatusRunning {
			return command.Result{}, fmt.Errorf("streaming is not running")
		}
		a.bridge.Stop()
		if err := a.supervisor.Stop(); err != nil {
			return command.Result{}, err
		}
		if err := a.supervisor.Start(ctx, st.Monitor, quality); err != nil {
			return command.Result{}, err
		}
		if err := a.bridge.Start(ctx); err != nil {
			return command.Result{}, err
		}
		return command.Result{
			Message: "stream quality changed",
			Details: map[string]any{
				"width":   quality.Width,
				"height":  quality.Height,
				"fps":     quality.FPS,
				"bitrate": quality.Bitrate,
			},
		}, nil
	}))
}
