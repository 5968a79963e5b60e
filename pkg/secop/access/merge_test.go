package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalybin/frappy/pkg/datatype"
)

func TestMergeClassInheritsParentOrder(t *testing.T) {
	parent, err := MergeClass(ClassAccessibles{
		Own: map[string]any{
			"value":  NewParameter("value", datatype.NewUnboundedFloatRange()),
			"status": NewParameter("status", datatype.NewStatusType(datatype.ReadableStatusEnum())),
		},
		OwnOrder: []string{"value", "status"},
	})
	require.NoError(t, err)

	child, err := MergeClass(ClassAccessibles{
		Parents: []*Merged{parent},
		Own: map[string]any{
			"target": NewParameter("target", datatype.NewUnboundedFloatRange()),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"value", "status", "target"}, child.Order)
	_, ok := child.Get("value")
	assert.True(t, ok)
}

func TestMergeClassBareValueOverridesDefault(t *testing.T) {
	p := NewParameter("pollinterval", datatype.NewFloatRange(0.1, 120))
	parent, err := MergeClass(ClassAccessibles{Own: map[string]any{"pollinterval": p}})
	require.NoError(t, err)

	child, err := MergeClass(ClassAccessibles{
		Parents: []*Merged{parent},
		Own:     map[string]any{"pollinterval": 2.0},
	})
	require.NoError(t, err)

	raw, _ := child.Get("pollinterval")
	overridden := raw.(*Parameter)
	assert.Equal(t, 2.0, overridden.Default)
	assert.True(t, overridden.HasDefault)
	// the parent's declaration must be untouched.
	origRaw, _ := parent.Get("pollinterval")
	assert.False(t, origRaw.(*Parameter).HasDefault)
}

func TestMergeClassRejectsLegacyDoPrefixedCommand(t *testing.T) {
	_, err := MergeClass(ClassAccessibles{
		Own: map[string]any{"do_start": NewCommand("do_start", nil, nil, nil)},
	})
	require.Error(t, err)
}

func TestMergeClassRejectsOverrideOfUnknownAccessible(t *testing.T) {
	_, err := MergeClass(ClassAccessibles{Own: map[string]any{"ghost": 1.0}})
	require.Error(t, err)
}

func TestMergeClassParamOrderReorders(t *testing.T) {
	merged, err := MergeClass(ClassAccessibles{
		Own: map[string]any{
			"b": NewParameter("b", datatype.BoolType{}),
			"a": NewParameter("a", datatype.BoolType{}),
		},
		ParamOrder: []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, merged.Order)
}
