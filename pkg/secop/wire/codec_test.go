package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseEncodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		action := rapid.SampledFrom([]string{"read", "change", "do", "update", "describe"}).Draw(tt, "action")
		specifier := rapid.SampledFrom([]string{"", "mod1", "mod1:value", "mod1:target"}).Draw(tt, "specifier")
		hasPayload := rapid.Bool().Draw(tt, "hasPayload")

		f := Frame{Action: action, Specifier: specifier}
		if hasPayload {
			n := rapid.Int().Draw(tt, "n")
			b, err := json.Marshal(n)
			require.NoError(tt, err)
			f.Payload = b
		}

		line := Encode(f)
		parsed, err := Parse(line)
		require.NoError(tt, err)

		assert.Equal(tt, f.Action, parsed.Action)
		assert.Equal(tt, f.Specifier, parsed.Specifier)
		assert.Equal(tt, string(f.Payload), string(parsed.Payload))
	})
}

func TestParseIdentifyAlias(t *testing.T) {
	f, err := Parse("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "identify", f.Action)
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := Parse("change mod1:target {not json}")
	require.Error(t, err)
}

func TestParseEmptyFrame(t *testing.T) {
	_, err := Parse("   \n")
	require.Error(t, err)
}

func TestSplitJoinSpecifier(t *testing.T) {
	mod, param, ok := SplitSpecifier("mod1:value")
	require.True(t, ok)
	assert.Equal(t, "mod1", mod)
	assert.Equal(t, "value", param)
	assert.Equal(t, "mod1:value", JoinSpecifier(mod, param))

	_, _, ok = SplitSpecifier("")
	assert.False(t, ok)
}

func TestQualifiersOmitsErrorWhenNil(t *testing.T) {
	q := Qualifiers(1.5, nil)
	_, hasErr := q["e"]
	assert.False(t, hasErr)
	assert.Equal(t, 1.5, q["t"])
}
