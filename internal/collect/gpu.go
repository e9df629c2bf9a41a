// SPDX-License-Identifier: MIT

package collect

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// GPUStrategy is one way of probing the GPU. Vendor specifics live behind
// this interface; the selector only cares about first success.
type GPUStrategy interface {
	Name() string
	Probe(ctx context.Context) (*GPUStats, error)
}

// gpuSelector applies the first-success-wins policy: strategies are tried in
// order until one succeeds, and from then on only the winning strategy is
// polled.
type gpuSelector struct {
	mu         sync.Mutex
	strategies []GPUStrategy
	chosen     GPUStrategy
}

func newGPUSelector(strategies ...GPUStrategy) *gpuSelector {
	return &gpuSelector{strategies: strategies}
}

func (s *gpuSelector) probe(ctx context.Context) (*GPUStats, error) {
	s.mu.Lock()
	chosen := s.chosen
	s.mu.Unlock()

	if chosen != nil {
		return chosen.Probe(ctx)
	}
	var lastErr error
	for _, strat := range s.strategies {
		stats, err := strat.Probe(ctx)
		if err == nil {
			s.mu.Lock()
			s.chosen = strat
			s.mu.Unlock()
			return stats, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no gpu strategies configured")
	}
	return nil, lastErr
}

// nvidiaSMIStrategy shells out to nvidia-smi. It is the native vendor probe
// in the default strategy order.
type nvidiaSMIStrategy struct{}

func (nvidiaSMIStrategy) Name() string { return "nvidia-smi" }

func (nvidiaSMIStrategy) Probe(ctx context.Context) (*GPUStats, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name,utilization.gpu,memory.used,memory.total,temperature.gpu",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil, err
	}
	return parseNvidiaSMI(string(out))
}

func parseNvidiaSMI(out string) (*GPUStats, error) {
	line := strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])
	fields := strings.Split(line, ",")
	if len(fields) < 5 {
		return nil, errors.New("unexpected nvidia-smi output")
	}
	num := func(i int) float64 {
		v, _ := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		return v
	}
	return &GPUStats{
		Name:         strings.TrimSpace(fields[0]),
		UsagePercent: num(1),
		VRAMUsedMB:   num(2),
		VRAMTotalMB:  num(3),
		TemperatureC: num(4),
	}, nil
}
