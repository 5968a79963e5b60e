package datatype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestIntRangeRoundTrip checks spec.md §8's datatype round-trip invariant:
// ImportValue(ExportValue(v)) == v for every v in the type's domain.
func TestIntRangeRoundTrip(t *testing.T) {
	dt := NewIntRange(-1000, 1000)
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.Int64Range(-1000, 1000).Draw(rt, "n")
		exported, err := dt.ExportValue(n)
		require.NoError(rt, err)
		imported, err := dt.ImportValue(exported)
		require.NoError(rt, err)
		assert.Equal(rt, n, imported)
	})
}

func TestIntRangeRejectsOutOfRange(t *testing.T) {
	dt := NewIntRange(0, 10)
	_, err := dt.Validate(11)
	require.Error(t, err)
	_, err = dt.Validate(-1)
	require.Error(t, err)
	v, err := dt.Validate(5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}

func TestFloatRangeRoundTrip(t *testing.T) {
	dt := NewUnboundedFloatRange()
	rapid.Check(t, func(rt *rapid.T) {
		f := rapid.Float64Range(-1e6, 1e6).Draw(rt, "f")
		exported, err := dt.ExportValue(f)
		require.NoError(rt, err)
		imported, err := dt.ImportValue(exported)
		require.NoError(rt, err)
		assert.Equal(rt, f, imported)
	})
}

func TestFloatRangeCoercesStrings(t *testing.T) {
	dt := NewUnboundedFloatRange()
	v, err := dt.Validate("3.14")
	require.NoError(t, err)
	assert.InDelta(t, 3.14, v, 1e-9)

	_, err = dt.Validate("abc")
	require.Error(t, err)
}

func TestBoolTypeCoercesWireForms(t *testing.T) {
	dt := BoolType{}
	for _, truthy := range []any{true, "true", "1", int64(1)} {
		v, err := dt.Validate(truthy)
		require.NoError(t, err)
		assert.Equal(t, true, v)
	}
	for _, falsy := range []any{false, "false", "0", int64(0)} {
		v, err := dt.Validate(falsy)
		require.NoError(t, err)
		assert.Equal(t, false, v)
	}
}

func TestStringTypeMaxChars(t *testing.T) {
	dt := StringType{MaxChars: 3}
	_, err := dt.Validate("abcd")
	require.Error(t, err)
	v, err := dt.Validate("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestEnumTypeResolvesByNameOrValue(t *testing.T) {
	dt := NewEnumType(map[string]int64{"IDLE": 100, "BUSY": 300})
	v, err := dt.Validate("IDLE")
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)

	v, err = dt.Validate(int64(300))
	require.NoError(t, err)
	assert.Equal(t, int64(300), v)

	_, err = dt.Validate("UNKNOWN_MEMBER")
	require.Error(t, err)
}

func TestEnumTypeSetNameRecordsName(t *testing.T) {
	dt := NewEnumType(map[string]int64{"IDLE": 100})
	dt.SetName("status")
	assert.Equal(t, "status", dt.Name())
}

func TestArrayOfRoundTripAndLength(t *testing.T) {
	dt := &ArrayOf{Elem: NewUnboundedIntRange(), MinLen: 1, MaxLen: 3}
	_, err := dt.Validate([]any{})
	require.Error(t, err, "shorter than minlen")

	_, err = dt.Validate([]any{int64(1), int64(2), int64(3), int64(4)})
	require.Error(t, err, "longer than maxlen")

	exported, err := dt.ExportValue([]any{int64(1), int64(2)})
	require.NoError(t, err)
	imported, err := dt.ImportValue(exported)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, imported)
}

func TestStructOfRequiresAllFields(t *testing.T) {
	dt := NewStructOf(map[string]DataType{
		"x": NewUnboundedFloatRange(),
		"y": NewUnboundedFloatRange(),
	}, []string{"x", "y"})

	_, err := dt.Validate(map[string]any{"x": 1.0})
	require.Error(t, err)

	v, err := dt.Validate(map[string]any{"x": 1.0, "y": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.(map[string]any)["x"])
}

func TestStatusTypeClassification(t *testing.T) {
	assert.True(t, IsIdle(100))
	assert.True(t, IsWarn(250))
	assert.True(t, IsBusy(300))
	assert.True(t, IsDriving(350))
	assert.True(t, IsFinalizing(395))
	assert.False(t, IsDriving(395))
	assert.True(t, IsError(400))
	assert.True(t, IsError(StatusUnknown))
}
