// SPDX-License-Identifier: MIT

package collect

import (
	"sync"
	"time"
)

// Cache holds the most recent value written by every collector. Each
// collector is the single writer of its own section; the assembler is a
// reader. Readers always observe a coherent snapshot.
type Cache struct {
	mu      sync.RWMutex
	system  SystemStats
	network NetworkStats
	app     AppStats
}

// NewCache returns an empty collector cache.
func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) setSystem(mutate func(*SystemStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mutate(&c.system)
}

func (c *Cache) setNetwork(mutate func(*NetworkStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mutate(&c.network)
}

func (c *Cache) setApp(mutate func(*AppStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mutate(&c.app)
}

// Snapshot assembles a TelemetryRecord from the current cached values.
// No I/O happens here.
func (c *Cache) Snapshot(wallID string, now time.Time) TelemetryRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return TelemetryRecord{
		Timestamp: now.UnixMilli(),
		WallID:    wallID,
		System:    c.system,
		Network:   c.network,
		App:       c.app,
	}
}
