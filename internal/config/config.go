// SPDX-License-Identifier: MIT

// Package config loads and validates the watchdog configuration with
// precedence ENV > file > defaults.
package config

import (
	"errors"
	"fmt"
)

var (
	ErrNoWallID  = errors.New("wall id is required")
	ErrNoBrokers = errors.New("at least one broker must be configured")
)

// Broker describes one message-bus endpoint. Only one broker is active at a
// time; switching is an explicit operation.
type Broker struct {
	ID        string `yaml:"id"`
	Label     string `yaml:"label"`
	ServerURL string `yaml:"serverUrl"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// Quality is the stream encode target handed to the media engine.
type Quality struct {
	Width   int `yaml:"width" json:"width"`
	Height  int `yaml:"height" json:"height"`
	FPS     int `yaml:"fps" json:"fps"`
	Bitrate int `yaml:"bitrate" json:"bitrate"`
}

// Config is the full agent configuration.
type Config struct {
	WallID        string   `yaml:"wallId"`
	DashboardPort int      `yaml:"dashboardPort"`
	Brokers       []Broker `yaml:"brokers"`
	DefaultBroker string   `yaml:"defaultBroker"`

	// Local probe targets.
	LocalServerURL   string `yaml:"localServerUrl"`
	InternetProbeURL string `yaml:"internetProbeUrl"`

	// Watched application surface. TargetLaunchPath is the executable used by
	// START_VUOS / RESTART_VUOS; empty means start is unavailable on this host.
	TargetProcess    string `yaml:"targetProcess"`
	TargetLaunchPath string `yaml:"targetLaunchPath"`
	ServerProcess    string `yaml:"serverProcess"`
	LockFilePath     string `yaml:"lockFilePath"`
	ErrorLogPath     string `yaml:"errorLogPath"`

	// Media engine.
	MediaEnginePath string  `yaml:"mediaEnginePath"`
	StunServer      string  `yaml:"stunServer"`
	DefaultQuality  Quality `yaml:"defaultQuality"`

	LogLevel string `yaml:"logLevel"`
}

// Defaults returns the built-in baseline configuration.
func Defaults() Config {
	return Config{
		DashboardPort:    8580,
		LocalServerURL:   "http://127.0.0.1:3000",
		InternetProbeURL: "https://www.google.com/generate_204",
		TargetProcess:    "VuOS",
		ServerProcess:    "vu-server",
		StunServer:       "stun.l.google.com:19302",
		DefaultQuality:   Quality{Width: 1920, Height: 1080, FPS: 30, Bitrate: 4000},
		LogLevel:         "info",
	}
}

// Validate checks invariants that must hold before the agent can start.
func (c *Config) Validate() error {
	if c.WallID == "" {
		return ErrNoWallID
	}
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	seen := map[string]struct{}{}
	for i, b := range c.Brokers {
		if b.ID == "" {
			return fmt.Errorf("broker %d: id is required", i)
		}
		if b.ServerURL == "" {
			return fmt.Errorf("broker %q: serverUrl is required", b.ID)
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("broker %q: duplicate id", b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	if c.DefaultBroker != "" {
		if _, ok := c.BrokerByID(c.DefaultBroker); !ok {
			return fmt.Errorf("default broker %q is not configured", c.DefaultBroker)
		}
	}
	if c.DashboardPort <= 0 || c.DashboardPort > 65535 {
		return fmt.Errorf("dashboard port %d out of range", c.DashboardPort)
	}
	return nil
}

// BrokerByID returns the broker entry with the given id.
func (c *Config) BrokerByID(id string) (Broker, bool) {
	for _, b := range c.Brokers {
		if b.ID == id {
			return b, true
		}
	}
	return Broker{}, false
}

// ActiveDefault returns the broker to connect to at startup: the configured
// default, or the first entry.
func (c *Config) ActiveDefault() Broker {
	if b, ok := c.BrokerByID(c.DefaultBroker); ok {
		return b
	}
	return c.Brokers[0]
}
