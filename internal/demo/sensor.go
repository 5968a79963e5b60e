// Package demo provides a couple of simulated device classes so
// cmd/secopd has something concrete to serve: a read-only temperature
// sensor and a drivable heater loop that chases its target. Neither
// talks to real hardware — both simulate a physical process in memory,
// the way a teaching node's demo classes stand in for instrument
// communication (spec.md §9 Design Notes).
package demo

import (
	"math/rand"
	"sync"
	"time"

	"github.com/vitalybin/frappy/pkg/secop/access"
	"github.com/vitalybin/frappy/pkg/secop/module"
	"github.com/vitalybin/frappy/pkg/secop/seclog"
)

// Sensor is a Readable module reporting a noisy temperature reading
// around a fixed set point.
type Sensor struct {
	*module.Module

	mu       sync.Mutex
	baseline float64
	rng      *rand.Rand
}

// NewSensor builds a demo.Sensor module instance named name.
func NewSensor(name string, logger seclog.Logger, cfg module.Config, disp module.Dispatcher) (*module.Module, error) {
	s := &Sensor{baseline: 20.0, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}

	merged := module.ReadableAccessibles()
	classProps := module.BaseModuleProperties()

	m, err := module.New(
		name, logger, cfg, disp, merged, classProps,
		module.Handlers{Read: map[string]access.ReadFunc{"value": s.readValue}},
		"demo.Sensor", "Readable",
	)
	if err != nil {
		return nil, err
	}
	s.Module = m
	return m, nil
}

func (s *Sensor) readValue() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline + s.rng.NormFloat64()*0.05, nil
}
