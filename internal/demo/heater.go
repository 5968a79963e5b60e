package demo

import (
	"sync"

	"github.com/vitalybin/frappy/pkg/datatype"
	"github.com/vitalybin/frappy/pkg/secop/access"
	"github.com/vitalybin/frappy/pkg/secop/module"
	"github.com/vitalybin/frappy/pkg/secop/seclog"
)

// Heater is a Drivable module that ramps its value toward target at a
// fixed rate per poll and reports BUSY status while driving, the
// canonical shape spec.md §3 describes for a Drivable.
type Heater struct {
	*module.Module

	mu      sync.Mutex
	current float64
}

// NewHeater builds a demo.Heater module instance named name.
func NewHeater(name string, logger seclog.Logger, cfg module.Config, disp module.Dispatcher) (*module.Module, error) {
	h := &Heater{current: 0}

	merged := module.DrivableAccessibles()
	classProps := module.BaseModuleProperties()

	m, err := module.New(
		name, logger, cfg, disp, merged, classProps,
		module.Handlers{
			Read:     map[string]access.ReadFunc{"value": h.readValue, "status": h.readStatus},
			Write:    map[string]access.WriteFunc{"target": h.writeTarget},
			Commands: map[string]func(any) (any, error){"stop": h.doStop},
		},
		"demo.Heater", "Drivable",
	)
	if err != nil {
		return nil, err
	}
	m.PollerClass = module.PollerGeneric
	h.Module = m
	return m, nil
}

func (h *Heater) readValue() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current, nil
}

// readStatus derives BUSY/IDLE from how far current is from target,
// stepping current toward target by a fixed rate each poll so the
// heater visibly converges over a handful of poll cycles.
func (h *Heater) readStatus() (any, error) {
	p, ok := h.Module.Parameter("target")
	if !ok {
		return []any{int64(datatype.StatusIdleLo), ""}, nil
	}
	targetVal, _, _ := p.Snapshot()
	target, _ := targetVal.(float64)

	h.mu.Lock()
	defer h.mu.Unlock()
	const rate = 0.5
	delta := target - h.current
	if delta > rate {
		h.current += rate
	} else if delta < -rate {
		h.current -= rate
	} else {
		h.current = target
	}

	if h.current == target {
		return []any{int64(datatype.StatusIdleLo), ""}, nil
	}
	return []any{int64(datatype.StatusBusyLo), "driving to target"}, nil
}

func (h *Heater) writeTarget(value any) (access.WriteOutcome, any, error) {
	return access.AcceptSubmitted, value, nil
}

// doStop implements Drivable's stop() command (spec.md §4.6 "do"): it
// halts the ramp by pinning target to the current value, so the next
// status poll reports IDLE instead of continuing to drive.
func (h *Heater) doStop(any) (any, error) {
	h.mu.Lock()
	current := h.current
	h.mu.Unlock()
	h.Module.AnnounceUpdate("target", current, nil, 0)
	return nil, nil
}
