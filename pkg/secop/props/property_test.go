package props

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalybin/frappy/pkg/datatype"
)

func TestBagSetValidatesThroughDataType(t *testing.T) {
	b := NewBag()
	b.Define(Property{Name: "export", DataType: datatype.BoolType{}}.WithDefault(true))

	require.NoError(t, b.Set("export", false))
	v, ok := b.Get("export")
	require.True(t, ok)
	assert.Equal(t, false, v)

	err := b.Set("export", "not-a-bool")
	require.Error(t, err)
}

func TestBagSetUnknownPropertyIsConfigError(t *testing.T) {
	b := NewBag()
	err := b.Set("nope", 1)
	require.Error(t, err)
}

func TestBagCloneIsIndependent(t *testing.T) {
	b := NewBag()
	b.Define(Property{Name: "group", DataType: datatype.StringType{}}.WithDefault(""))
	clone := b.Clone()
	require.NoError(t, clone.Set("group", "a"))

	orig, _ := b.Get("group")
	cloned, _ := clone.Get("group")
	assert.Equal(t, "", orig)
	assert.Equal(t, "a", cloned)
}

func TestBagCheckMandatory(t *testing.T) {
	b := NewBag()
	b.Define(Property{Name: "description", DataType: datatype.TextType{}, Mandatory: true})
	require.Error(t, b.CheckMandatory())
	require.NoError(t, b.Set("description", "hello"))
	require.NoError(t, b.CheckMandatory())
}
