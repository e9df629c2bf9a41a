// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/log"
)

// ParseString reads a string from an environment variable or returns the
// default. Sensitive values (passwords, tokens) are never logged.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	if value, exists := os.LookupEnv(key); exists && value != "" {
		lowerKey := strings.ToLower(key)
		if strings.Contains(lowerKey, "password") || strings.Contains(lowerKey, "token") {
			logger.Debug().
				Str("key", key).
				Str("source", "environment").
				Bool("sensitive", true).
				Msg("using environment variable")
		} else {
			logger.Debug().
				Str("key", key).
				Str("value", value).
				Str("source", "environment").
				Msg("using environment variable")
		}
		return value
	}
	return defaultValue
}

// ParseInt reads an integer from an environment variable or returns the
// default. Falls back to the default on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			logger.Debug().
				Str("key", key).
				Int("value", i).
				Str("source", "environment").
				Msg("using environment variable")
			return i
		}
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", defaultValue).
			Msg("invalid integer in environment, using default")
	}
	return defaultValue
}

// applyEnv overlays the VU_* environment variables on top of cfg.
func applyEnv(cfg *Config) {
	cfg.WallID = ParseString("VU_WALL_ID", cfg.WallID)
	cfg.DashboardPort = ParseInt("VU_DASHBOARD_PORT", cfg.DashboardPort)
	cfg.LocalServerURL = ParseString("VU_LOCAL_SERVER_URL", cfg.LocalServerURL)
	cfg.MediaEnginePath = ParseString("VU_MEDIA_ENGINE_PATH", cfg.MediaEnginePath)
	cfg.TargetLaunchPath = ParseString("VU_TARGET_LAUNCH_PATH", cfg.TargetLaunchPath)
	cfg.LogLevel = ParseString("LOG_LEVEL", cfg.LogLevel)

	// The two preconfigured brokers can be supplied entirely via environment.
	for i, prefix := range []string{"VU_BROKER1", "VU_BROKER2"} {
		url := ParseString(prefix+"_URL", "")
		if url == "" {
			continue
		}
		b := Broker{
			ID:        ParseString(prefix+"_ID", strings.ToLower(prefix)),
			Label:     ParseString(prefix+"_LABEL", ""),
			ServerURL: url,
			Username:  ParseString(prefix+"_USERNAME", ""),
			Password:  ParseString(prefix+"_PASSWORD", ""),
		}
		if i < len(cfg.Brokers) {
			cfg.Brokers[i] = b
		} else {
			cfg.Brokers = append(cfg.Brokers, b)
		}
	}
}
