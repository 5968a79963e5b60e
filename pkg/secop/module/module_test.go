package module

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalybin/frappy/pkg/datatype"
	"github.com/vitalybin/frappy/pkg/secop/access"
	"github.com/vitalybin/frappy/pkg/secop/secoperr"
	"github.com/vitalybin/frappy/pkg/secop/seclog"
)

type captureDispatcher struct {
	updates []update
}

type update struct {
	module, param string
	value         any
	ts            float64
	err           error
}

func (c *captureDispatcher) AnnounceUpdate(moduleName, paramName string, value any, ts float64, err error) {
	c.updates = append(c.updates, update{moduleName, paramName, value, ts, err})
}

// TestConstructionWithoutDefaultWithoutConfig implements spec.md §8
// boundary scenario 1.
func TestConstructionWithoutDefaultWithoutConfig(t *testing.T) {
	x := access.NewParameter("x", datatype.NewIntRange(0, 10))
	x.NeedsCfg, x.HasNeedsCfg = false, true

	merged, err := access.MergeClass(access.ClassAccessibles{Own: map[string]any{"x": x}})
	require.NoError(t, err)

	classProps := BaseModuleProperties()

	m, err := New("m", seclog.Named("test"), Config{"description": "test module"}, &captureDispatcher{}, merged, classProps, Handlers{}, "test.Module", "Module")
	require.NoError(t, err)

	p, ok := m.Parameter("x")
	require.True(t, ok)
	v, _, rerr := p.Snapshot()
	assert.Equal(t, int64(0), v)
	require.Error(t, rerr)
	fe := secoperr.AsFramework(rerr)
	assert.Equal(t, secoperr.KindConfigError, fe.Kind)
	assert.Contains(t, fe.Error(), "not initialized")
}

// TestWritableInitWriteCallsWriteOnceBeforePoll implements spec.md §8
// boundary scenario 2.
func TestWritableInitWriteCallsWriteOnceBeforePoll(t *testing.T) {
	target := access.NewParameter("target", datatype.NewUnboundedFloatRange())
	target.Readonly = false
	target.Default, target.HasDefault = 5.0, true
	target.InitWrite, target.HasInitWrite = true, true
	target.Export = true

	merged, err := access.MergeClass(access.ClassAccessibles{Own: map[string]any{"target": target}})
	require.NoError(t, err)

	calls := 0
	var lastValue any
	handlers := Handlers{
		Write: map[string]access.WriteFunc{
			"target": func(v any) (access.WriteOutcome, any, error) {
				calls++
				lastValue = v
				return access.AcceptSubmitted, nil, nil
			},
		},
	}

	m, err := New("m", seclog.Named("test"), Config{"description": "writable test"}, &captureDispatcher{}, merged, BaseModuleProperties(), handlers, "test.Module", "Writable")
	require.NoError(t, err)

	m.WriteInitParams()

	assert.Equal(t, 1, calls)
	assert.Equal(t, 5.0, lastValue)

	// a second call to WriteInitParams must be a no-op: the entry was removed.
	m.WriteInitParams()
	assert.Equal(t, 1, calls)
}

// TestAnnounceUpdateDedupesRepeatedErrors implements spec.md §8 boundary
// scenario 4 (at the module/dispatcher-handoff level).
func TestAnnounceUpdateDedupesRepeatedErrors(t *testing.T) {
	value := access.NewParameter("value", datatype.NewUnboundedFloatRange())
	value.Readonly = true
	value.Export = true
	value.Default, value.HasDefault = 0.0, true

	merged, err := access.MergeClass(access.ClassAccessibles{Own: map[string]any{"value": value}})
	require.NoError(t, err)

	disp := &captureDispatcher{}
	m, err := New("m", seclog.Named("test"), Config{"description": "dedup test"}, disp, merged, BaseModuleProperties(), Handlers{}, "test.Module", "Readable")
	require.NoError(t, err)

	hwErr := secoperr.New(secoperr.KindHardwareError, "disconnected")
	m.AnnounceUpdate("value", nil, hwErr, 0)
	m.AnnounceUpdate("value", nil, secoperr.New(secoperr.KindHardwareError, "disconnected"), 0)

	errorUpdates := 0
	for _, u := range disp.updates {
		if u.err != nil {
			errorUpdates++
		}
	}
	assert.Equal(t, 1, errorUpdates)
}

// TestWriteWrapperValidatesAndCoerces implements spec.md §8 boundary
// scenario 5 (type coercion on change).
func TestWriteWrapperValidatesAndCoerces(t *testing.T) {
	target := access.NewParameter("target", datatype.NewUnboundedFloatRange())
	target.Export = true
	target.Default, target.HasDefault = 0.0, true

	merged, err := access.MergeClass(access.ClassAccessibles{Own: map[string]any{"target": target}})
	require.NoError(t, err)

	m, err := New("m", seclog.Named("test"), Config{"description": "coerce test"}, &captureDispatcher{}, merged, BaseModuleProperties(), Handlers{}, "test.Module", "Writable")
	require.NoError(t, err)

	v, err := m.WriteWrapper("target", "3.14")
	require.NoError(t, err)
	assert.InDelta(t, 3.14, v, 1e-9)

	_, err = m.WriteWrapper("target", "abc")
	require.Error(t, err)
	fe := secoperr.AsFramework(err)
	assert.Equal(t, secoperr.KindBadValue, fe.Kind)
}

func TestReadWrapperReturnsCachedValueWithoutReadFunc(t *testing.T) {
	value := access.NewParameter("value", datatype.NewUnboundedFloatRange())
	value.Readonly = true
	value.Export = true
	value.Default, value.HasDefault = 42.0, true

	merged, err := access.MergeClass(access.ClassAccessibles{Own: map[string]any{"value": value}})
	require.NoError(t, err)

	m, err := New("m", seclog.Named("test"), Config{"description": "cached read"}, &captureDispatcher{}, merged, BaseModuleProperties(), Handlers{}, "test.Module", "Readable")
	require.NoError(t, err)

	v, err := m.ReadWrapper("value")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestTimestampMonotonicity(t *testing.T) {
	value := access.NewParameter("value", datatype.NewUnboundedFloatRange())
	value.Readonly = true
	value.Export = true
	value.Default, value.HasDefault = 0.0, true

	merged, err := access.MergeClass(access.ClassAccessibles{Own: map[string]any{"value": value}})
	require.NoError(t, err)

	m, err := New("m", seclog.Named("test"), Config{"description": "ts test"}, &captureDispatcher{}, merged, BaseModuleProperties(), Handlers{}, "test.Module", "Readable")
	require.NoError(t, err)

	// Construction already stamped the default value with the current
	// time, so the announced timestamps must lie after it.
	base := float64(time.Now().Unix()) + 1000
	m.AnnounceUpdate("value", 1.0, nil, base)
	m.AnnounceUpdate("value", 2.0, nil, base-50) // earlier timestamp, must not regress

	p, _ := m.Parameter("value")
	_, ts, _ := p.Snapshot()
	assert.Equal(t, base, ts)
}
