// SPDX-License-Identifier: MIT

// Package agent is the orchestrator: it owns the 2 s evaluation loop, routes
// inbound bus traffic to the right component, and drives startup and the
// graceful shutdown sequence.
package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/api"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/bridge"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/bus"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/collect"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/command"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/config"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/events"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/health"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/lease"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/log"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/metrics"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/stream"
)

const (
	tickInterval     = 2 * time.Second
	warmBudget       = 3 * time.Second
	configRepublish  = time.Minute
	quitAckFlushWait = 250 * time.Millisecond
)

// Agent wires every component of the watchdog together.
type Agent struct {
	cfg     *config.Config
	cfgPath string
	logger  zerolog.Logger

	bus        *bus.Client
	topics     bus.Topics
	cache      *collect.Cache
	runner     *collect.Runner
	engine     *health.Engine
	emitter    *events.Emitter
	leases     *lease.Manager
	processor  *command.Processor
	supervisor *stream.Supervisor
	bridge     *bridge.Bridge
	api        *api.Server
	appctl     *appController

	startedAt    time.Time
	shuttingDown atomic.Bool
	quitOnce     sync.Once
	quit         chan struct{}

	mu         sync.Mutex
	lastHealth health.Payload
	prevMode   health.Mode
}

// New builds a fully wired agent from the validated configuration.
func New(cfg *config.Config, cfgPath string) (*Agent, error) {
	busClient, err := bus.New(cfg.WallID, cfg.Brokers, cfg.DefaultBroker)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		cfg:       cfg,
		cfgPath:   cfgPath,
		logger:    log.WithComponent("agent"),
		bus:       busClient,
		topics:    busClient.Topics(),
		cache:     collect.NewCache(),
		engine:    health.NewEngine(),
		leases:    lease.NewManager(),
		appctl:    newAppController(cfg.TargetProcess, cfg.TargetLaunchPath),
		startedAt: time.Now(),
		quit:      make(chan struct{}),
		prevMode:  health.ModeStarting,
	}

	a.runner = collect.NewRunner(cfg, a.cache)
	a.runner.OnCrash = func(oldPID, newPID int32) {
		a.emitter.Lifecycle("VUOS_CRASHED", events.SeverityError, map[string]any{
			"oldPid": oldPID,
			"newPid": newPID,
		})
	}

	a.emitter = events.New(cfg.WallID, func(rec events.Record) {
		_ = a.bus.PublishEvent(rec)
	})

	a.supervisor = stream.NewSupervisor(cfg)
	a.supervisor.OnState = func(st stream.State) {
		_ = a.bus.PublishStreamStatus(st)
	}

	a.bridge = bridge.New(a.bus, a.topics, a.mediaEngine, a.streamMonitor, cfg.StunServer)

	registry := command.NewRegistry()
	a.processor = command.NewProcessor(registry, a.leases, a.emitter, func(clientID string, ack command.Ack) {
		_ = a.bus.PublishAck(clientID, ack)
		if a.api != nil {
			a.api.DeliverAck(clientID, ack)
		}
	})
	a.registerCommands(registry)

	a.api = api.New(cfg.DashboardPort, a.processor, a.statusSnapshot, a.saveConfig)

	a.bus.StreamStatus = func() string { return string(a.supervisor.State().Status) }
	a.bus.OnConnEvent = a.onConnEvent

	return a, nil
}

// mediaEngine adapts the supervisor's client to the bridge interface. The
// typed-nil check matters: an interface wrapping a nil pointer is not nil.
func (a *Agent) mediaEngine() bridge.MediaEngine {
	if c := a.supervisor.Client(); c != nil {
		return c
	}
	return nil
}

func (a *Agent) streamMonitor() int {
	return a.supervisor.State().Monitor
}

func (a *Agent) statusSnapshot() api.StatusSnapshot {
	a.mu.Lock()
	lastHealth := a.lastHealth
	a.mu.Unlock()
	return api.StatusSnapshot{
		Telemetry: a.cache.Snapshot(a.cfg.WallID, time.Now()),
		Health:    lastHealth,
		Stream:    a.supervisor.State(),
	}
}

// saveConfig persists a dashboard-submitted configuration. The fsnotify
// watcher picks the write up and republishes the retained config topic.
func (a *Agent) saveConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if a.cfgPath == "" {
		return errors.New("agent started without a config file, nothing to persist")
	}
	return config.Save(a.cfgPath, cfg)
}

func (a *Agent) onConnEvent(ev bus.ConnEvent) {
	switch ev.Kind {
	case "connected":
		a.emitter.Lifecycle("BROKER_CONNECTED", events.SeverityInfo, map[string]any{"brokerId": ev.Broker})
	case "reconnected":
		a.emitter.Lifecycle("BROKER_RECONNECTED", events.SeverityInfo, map[string]any{"brokerId": ev.Broker})
	case "lost":
		a.emitter.Lifecycle("BROKER_DISCONNECTED", events.SeverityWarn, map[string]any{"brokerId": ev.Broker})
	case "switched":
		a.emitter.Lifecycle("BROKER_SWITCHED", events.SeverityWarn, map[string]any{
			"from":   ev.From,
			"to":     ev.To,
			"reason": ev.Reason,
		})
	}
}

// requestQuit initiates shutdown from the QUIT_WATCHDOG command path.
func (a *Agent) requestQuit() {
	a.quitOnce.Do(func() {
		// Give the APPLIED ack time to flush before teardown starts.
		go func() {
			time.Sleep(quitAckFlushWait)
			close(a.quit)
		}()
	})
}

// Run starts every component and blocks until ctx is cancelled or a
// QUIT_WATCHDOG command arrives, then performs the shutdown sequence.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	warmCtx, warmCancel := context.WithTimeout(ctx, warmBudget)
	a.runner.Warm(warmCtx)
	warmCancel()

	if err := a.bus.Connect(func(topic string, payload []byte) {
		a.dispatch(ctx, topic, payload)
	}); err != nil {
		return err
	}

	a.emitter.Lifecycle("WATCHDOG_STARTED", events.SeverityInfo, map[string]any{
		"wallId":   a.cfg.WallID,
		"brokerId": a.bus.ActiveBroker().ID,
	})
	a.publishTelemetry(time.Now())
	a.publishConfig()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runner.Run(gctx) })
	g.Go(func() error { return a.processor.RunSweeper(gctx) })
	g.Go(func() error {
		err := a.api.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error { a.mainLoop(gctx); return nil })
	g.Go(func() error { a.republishLoop(gctx); return nil })
	if a.cfgPath != "" {
		g.Go(func() error { return config.Watch(gctx, a.cfgPath, func(*config.Config) { a.publishConfig() }) })
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-a.quit:
			a.logger.Info().Str("event", "agent.quit_requested").Msg("shutdown requested by command")
			cancel()
		}
		return nil
	})

	err := g.Wait()
	a.shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// mainLoop is the 2 s heart of the agent: snapshot, evaluate, derive mode,
// emit edges, publish telemetry and health.
func (a *Agent) mainLoop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(time.Now())
		}
	}
}

func (a *Agent) tick(now time.Time) {
	rec := a.cache.Snapshot(a.cfg.WallID, now)
	states := a.engine.Evaluate(rec, now)
	mode := health.DeriveMode(a.shuttingDown.Load(), now.Sub(a.startedAt), states)
	a.emitter.Observe(states, mode)

	metrics.Mode.Set(float64(mode.Ordinal()))
	metrics.ActiveConditions.Set(float64(len(health.ActiveIDs(states))))

	payload := health.BuildPayload(rec, mode, states, now)
	a.mu.Lock()
	a.lastHealth = payload
	if mode != a.prevMode {
		a.logger.Info().
			Str("event", "agent.mode_changed").
			Str(log.FieldOldState, string(a.prevMode)).
			Str(log.FieldNewState, string(mode)).
			Msg("operational mode changed")
		a.prevMode = mode
	}
	a.mu.Unlock()

	_ = a.bus.PublishTelemetry(rec)
	_ = a.bus.PublishHealth(payload)
}

// republishLoop refreshes the retained config topic every minute so late
// subscribers on brokers without persistent sessions still converge.
func (a *Agent) republishLoop(ctx context.Context) {
	ticker := time.NewTicker(configRepublish)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.publishConfig()
		}
	}
}

// dispatch routes one inbound bus message by topic.
func (a *Agent) dispatch(ctx context.Context, topic string, payload []byte) {
	if clientID, ok := a.topics.CommandClient(topic); ok {
		// Realtime echo for dashboard observers before processing.
		_ = a.bus.EchoCommand(payload)
		a.processor.Handle(ctx, payload, clientID, false)
		return
	}
	switch topic {
	case a.topics.Lease():
		a.leases.Apply(payload)
	case a.topics.Control():
		a.processor.HandleLegacy(ctx, payload)
	case a.topics.WebRTCJoin():
		a.bridge.HandleJoin(payload)
	case a.topics.WebRTCAnswer():
		a.bridge.HandleAnswer(payload)
	case a.topics.WebRTCIce():
		a.bridge.HandleRemoteICE(payload)
	case a.topics.WebRTCLeave():
		a.bridge.HandleLeave(payload)
	default:
		a.logger.Debug().
			Str("event", "agent.unhandled_topic").
			Str(log.FieldTopic, topic).
			Msg("inbound message on unrouted topic")
	}
}

// shutdown runs the graceful teardown: final SHUTTING_DOWN health, stop
// lifecycle event, bridge and engine teardown, clean bus disconnect.
func (a *Agent) shutdown() {
	a.shuttingDown.Store(true)
	now := time.Now()

	rec := a.cache.Snapshot(a.cfg.WallID, now)
	states := a.engine.Evaluate(rec, now)
	mode := health.DeriveMode(true, now.Sub(a.startedAt), states)
	a.emitter.Observe(states, mode)
	_ = a.bus.PublishHealth(health.BuildPayload(rec, mode, states, now))

	a.emitter.Lifecycle("WATCHDOG_STOPPED", events.SeverityInfo, map[string]any{
		"wallId": a.cfg.WallID,
	})

	a.bridge.Stop()
	if err := a.supervisor.Stop(); err != nil {
		a.logger.Warn().Err(err).Str("event", "agent.engine_stop_failed").Msg("media engine stop reported error")
	}
	a.bus.Disconnect()
	a.logger.Info().Str("event", "agent.stopped").Msg("watchdog shut down")
}
