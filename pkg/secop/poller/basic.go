// Package poller implements the two poller kinds of spec.md §4.5: a
// one-goroutine-per-module "basic" poller and a shared per-node
// "generic" scheduler. The teacher's connection-management goroutines
// in pkg/transport/websocket (a dedicated goroutine looping on a
// ticker with a select over a stop channel) are the model for both.
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vitalybin/frappy/pkg/datatype"
	"github.com/vitalybin/frappy/pkg/secop/module"
)

const retryDelay = 10 * time.Second

// RunBasic starts the basic poller for m: writeInitParams, an initial
// pollParams(0), then the started callback, then a sleep/pollParams
// loop forever until ctx is cancelled (spec.md §4.5 "Basic poller").
// A panic inside one parameter's read is recovered and logged by
// PollOneParam and polling continues. A panic anywhere else in the pass
// is isolated here: the module's status is forced to ERROR, the
// goroutine sleeps retryDelay and restarts from the top.
func RunBasic(ctx context.Context, m *module.Module, started func()) {
	go func() {
		for ctx.Err() == nil {
			runBasicOnce(ctx, m, started)
			started = nil // only fire once, even across a retry
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
		}
	}()
}

func runBasicOnce(ctx context.Context, m *module.Module, started func()) {
	defer func() {
		if r := recover(); r != nil {
			m.Log.Error("poller thread panicked, restarting", zap.Any("panic", r))
			m.AnnounceUpdate("status", []any{int64(datatype.StatusErrorLo), "polling thread could not start"}, nil, 0)
		}
	}()

	m.WriteInitParams()
	fastpoll := pollParams(m, 0)
	if started != nil {
		started()
	}

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepDuration(m, fastpoll)):
		}
		tick++
		fastpoll = pollParams(m, tick)
	}
}

// pollParams implements spec.md §4.5's pollParams(tick) for both
// Readable and Drivable modules, selected by the presence of a `stop`
// command (the marker property of a Drivable's accessible table).
func pollParams(m *module.Module, tick int) bool {
	_, isDrivable := m.Command("stop")
	if !isDrivable {
		for _, pname := range m.Parameters() {
			p, ok := m.Parameter(pname)
			if !ok || p.Poll == 0 {
				continue
			}
			if tick%absInt(p.Poll) == 0 {
				m.PollOneParam(pname)
			}
		}
		return false
	}

	if sp, ok := m.Parameter("status"); ok && sp.Poll != 0 && tick%absInt(sp.Poll) == 0 {
		m.PollOneParam("status")
	}
	fastpoll := m.IsBusy()
	for _, pname := range m.Parameters() {
		if pname == "status" {
			continue
		}
		p, ok := m.Parameter(pname)
		if !ok || p.Poll == 0 {
			continue
		}
		if (p.Poll < 0 && fastpoll) || tick%absInt(p.Poll) == 0 {
			m.PollOneParam(pname)
		}
	}
	return fastpoll
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// sleepDuration resolves the current pollinterval value into the next
// sleep. A scalar pollinterval is subject to the 0.1 fastpoll multiplier;
// a (fast, slow) pair already encodes both speeds, so resolveInterval's
// choice of lo/hi is used as-is with no further scaling (secop/modules.py
// lines 575-578 only multiply the scalar case).
func sleepDuration(m *module.Module, fastpoll bool) time.Duration {
	interval := 5.0
	mult := 1.0
	if fastpoll {
		mult = 0.1
	}
	if p, ok := m.Parameter("pollinterval"); ok {
		v, _, _ := p.Snapshot()
		interval = resolveInterval(v, fastpoll)
		if _, isPair := v.([]any); isPair {
			mult = 1.0
		}
	}
	d := time.Duration(interval * mult * float64(time.Second))
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

func resolveInterval(v any, fastpoll bool) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case []any:
		if len(t) != 2 {
			return 5.0
		}
		a, aok := toFloat(t[0])
		b, bok := toFloat(t[1])
		if !aok || !bok {
			return 5.0
		}
		lo, hi := a, b
		if lo > hi {
			lo, hi = hi, lo
		}
		if fastpoll {
			return lo
		}
		return hi
	default:
		return 5.0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
