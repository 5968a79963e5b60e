package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vitalybin/frappy/pkg/secop/access"
	"github.com/vitalybin/frappy/pkg/secop/module"
	"github.com/vitalybin/frappy/pkg/secop/seclog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type nopDispatcher struct{}

func (nopDispatcher) AnnounceUpdate(moduleName, paramName string, value any, ts float64, err error) {
}

func newReadableModule(t *testing.T, readFn access.ReadFunc) *module.Module {
	t.Helper()
	merged := module.ReadableAccessibles()
	handlers := module.Handlers{}
	if readFn != nil {
		handlers.Read = map[string]access.ReadFunc{"value": readFn}
	}
	m, err := module.New(
		"m",
		seclog.Named("test"),
		module.Config{"description": "test module", "pollinterval": 0.02},
		nopDispatcher{},
		merged,
		module.BaseModuleProperties(),
		handlers,
		"test.Module",
		"Readable",
	)
	require.NoError(t, err)
	return m
}

// TestRunBasicPollsAfterStart implements spec.md §4.5: writeInitParams,
// an initial pollParams(0), then the started callback, then a running
// poll loop — with clean goroutine shutdown on ctx cancellation.
func TestRunBasicPollsAfterStart(t *testing.T) {
	var polls int32
	m := newReadableModule(t, func() (any, error) {
		atomic.AddInt32(&polls, 1)
		return 1.0, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	RunBasic(ctx, m, func() { close(started) })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("started callback was never invoked")
	}
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&polls)), 1)

	time.Sleep(60 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&polls)), 2)
}

func TestRunBasicRecoversFromPanic(t *testing.T) {
	var calls int32
	m := newReadableModule(t, func() (any, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			panic("boom")
		}
		return 1.0, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	RunBasic(ctx, m, nil)

	// The panic in the first read must not escape the goroutine:
	// PollOneParam recovers and logs it, and the same poll loop goes on
	// to read the parameter again on a later tick without waiting out
	// the 10s restart delay.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, time.Second, 5*time.Millisecond)

	// A panic isolated to one parameter's read does not put the module
	// into the "polling thread could not start" error state.
	p, ok := m.Parameter("status")
	require.True(t, ok)
	v, _, _ := p.Snapshot()
	tup, _ := v.([]any)
	require.Len(t, tup, 2)
	assert.NotEqual(t, "polling thread could not start", tup[1])
}

func TestSchedulerDispatchesRegisteredParameters(t *testing.T) {
	var polls int32
	m := newReadableModule(t, func() (any, error) {
		atomic.AddInt32(&polls, 1)
		return 1.0, nil
	})

	sched := NewScheduler(2)
	sched.Register(m)

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&polls) >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(10 * time.Millisecond)
}

func TestResolveIntervalPair(t *testing.T) {
	assert.Equal(t, 1.0, resolveInterval([]any{1.0, 5.0}, true))
	assert.Equal(t, 5.0, resolveInterval([]any{1.0, 5.0}, false))
	assert.Equal(t, 2.5, resolveInterval(2.5, true))
}
