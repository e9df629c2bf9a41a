// SPDX-License-Identifier: MIT

package collect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNvidiaSMI(t *testing.T) {
	out := "NVIDIA GeForce RTX 4070, 37, 2048, 12282, 61\n"
	stats, err := parseNvidiaSMI(out)
	require.NoError(t, err)
	assert.Equal(t, "NVIDIA GeForce RTX 4070", stats.Name)
	assert.Equal(t, 37.0, stats.UsagePercent)
	assert.Equal(t, 2048.0, stats.VRAMUsedMB)
	assert.Equal(t, 12282.0, stats.VRAMTotalMB)
	assert.Equal(t, 61.0, stats.TemperatureC)
}

func TestParseNvidiaSMIMultiGPUTakesFirst(t *testing.T) {
	out := "GPU A, 10, 1, 2, 50\nGPU B, 90, 3, 4, 70\n"
	stats, err := parseNvidiaSMI(out)
	require.NoError(t, err)
	assert.Equal(t, "GPU A", stats.Name)
}

func TestParseNvidiaSMIMalformed(t *testing.T) {
	_, err := parseNvidiaSMI("not,enough\n")
	assert.Error(t, err)
}

type stubStrategy struct {
	name  string
	calls int
	stats *GPUStats
	err   error
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Probe(context.Context) (*GPUStats, error) {
	s.calls++
	return s.stats, s.err
}

func TestGPUSelectorFirstSuccessWins(t *testing.T) {
	failing := &stubStrategy{name: "vendor", err: errors.New("no vendor tool")}
	working := &stubStrategy{name: "fallback", stats: &GPUStats{Name: "iGPU"}}
	sel := newGPUSelector(failing, working)

	stats, err := sel.probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "iGPU", stats.Name)

	// The winning strategy is polled exclusively from now on.
	_, err = sel.probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 2, working.calls)
}

func TestGPUSelectorAllFail(t *testing.T) {
	boom := errors.New("boom")
	sel := newGPUSelector(&stubStrategy{name: "a", err: boom}, &stubStrategy{name: "b", err: boom})

	_, err := sel.probe(context.Background())
	assert.ErrorIs(t, err, boom)

	// No winner latched; every probe retries the full order.
	failing := &stubStrategy{name: "c", err: boom}
	sel = newGPUSelector(failing)
	_, _ = sel.probe(context.Background())
	_, _ = sel.probe(context.Background())
	assert.Equal(t, 2, failing.calls)
}

func TestGPUSelectorEmpty(t *testing.T) {
	sel := newGPUSelector()
	_, err := sel.probe(context.Background())
	assert.Error(t, err)
}
