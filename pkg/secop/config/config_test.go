package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
equipment_id: demo-cryostat
description: a demo node
firmware: "1.0.0"
modules:
  heater:
    class: demo.Heater
    config:
      description: the sample heater
      target: 5
      target.initwrite: true
`

func TestParseBuildsNodeAndNormalizesConfig(t *testing.T) {
	node, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "demo-cryostat", node.EquipmentID)

	heater, ok := node.Modules["heater"]
	require.True(t, ok)
	assert.Equal(t, "demo.Heater", heater.Class)
	assert.Equal(t, "the sample heater", heater.Config["description"])
	assert.Equal(t, int64(5), heater.Config["target"])
	assert.Equal(t, true, heater.Config["target.initwrite"])
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("not: [valid"))
	require.Error(t, err)
}
