package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrComputeMemoizesByKey(t *testing.T) {
	c, err := NewDescriptorCache(8)
	require.NoError(t, err)

	calls := 0
	compute := func() map[string]any {
		calls++
		return map[string]any{"n": calls}
	}

	key := Key("demo.Sensor", []string{"value", "status"})
	first := c.GetOrCompute(key, compute)
	second := c.GetOrCompute(key, compute)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestKeyDiffersOnAccessibleSet(t *testing.T) {
	a := Key("demo.Sensor", []string{"value", "status"})
	b := Key("demo.Sensor", []string{"value", "status", "pollinterval"})
	assert.NotEqual(t, a, b)
}

func TestInvalidateForcesRecompute(t *testing.T) {
	c, err := NewDescriptorCache(8)
	require.NoError(t, err)

	calls := 0
	compute := func() map[string]any {
		calls++
		return map[string]any{"n": calls}
	}

	key := Key("demo.Sensor", []string{"value"})
	c.GetOrCompute(key, compute)
	c.Invalidate(key)
	c.GetOrCompute(key, compute)

	assert.Equal(t, 2, calls)
}
