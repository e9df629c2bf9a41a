// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/agent"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/api"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/config"
	vulog "github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/log"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe logger defaults until the config is loaded.
	vulog.Configure(vulog.Config{
		Level:   "info",
		Service: "vu-watchdog",
		Version: version,
	})
	logger := vulog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit via --config, otherwise ${VU_WATCHDOG_DATA}/config.yaml
	// when it exists (so dashboard-saved config persists across restarts).
	effectivePath := strings.TrimSpace(*configPath)
	if effectivePath == "" {
		dataDir := strings.TrimSpace(config.ParseString("VU_WATCHDOG_DATA", ""))
		if dataDir != "" {
			autoPath := filepath.Join(dataDir, "config.yaml")
			if _, err := os.Stat(autoPath); err == nil {
				effectivePath = autoPath
			}
		}
	}

	cfg, err := config.Load(effectivePath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectivePath).
			Msg("failed to load configuration")
	}

	vulog.Configure(vulog.Config{
		Level:   cfg.LogLevel,
		Service: "vu-watchdog",
		Version: version,
	})

	// Single-instance guard: another watchdog answering on the dashboard port
	// means this one must not start.
	if api.ProbeRunning(cfg.DashboardPort) {
		logger.Error().
			Str("event", "main.already_running").
			Int("port", cfg.DashboardPort).
			Msg("another watchdog instance answers on the dashboard port")
		os.Exit(1)
	}

	logger.Info().
		Str("event", "main.starting").
		Str("wall_id", cfg.WallID).
		Str("version", version).
		Msg("starting watchdog")

	a, err := agent.New(cfg, effectivePath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "main.wiring_failed").
			Msg("failed to assemble agent")
	}

	if err := a.Run(ctx); err != nil {
		logger.Error().
			Err(err).
			Str("event", "main.exited_with_error").
			Msg("watchdog exited with error")
		os.Exit(1)
	}
}
