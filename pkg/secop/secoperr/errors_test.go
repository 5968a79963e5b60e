package secoperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesKindAndDetail(t *testing.T) {
	err := New(KindBadValue, "value out of range")
	assert.Equal(t, "BadValue", err.Name())
	assert.Contains(t, err.Error(), "value out of range")
}

func TestAsFrameworkPassesThroughFrameworkErrors(t *testing.T) {
	orig := New(KindHardwareError, "disconnected")
	got := AsFramework(orig)
	assert.Same(t, orig, got)
}

func TestAsFrameworkWrapsForeignErrors(t *testing.T) {
	orig := errors.New("boom")
	got := AsFramework(orig)
	require.NotNil(t, got)
	assert.Equal(t, KindInternalError, got.Kind)
	assert.ErrorIs(t, got, orig)
}

func TestErrorIsMatchesByKindNotDetail(t *testing.T) {
	a := New(KindBadValue, "detail one")
	b := New(KindBadValue, "detail two")
	assert.True(t, errors.Is(a, b))

	c := New(KindReadOnly, "nope")
	assert.False(t, errors.Is(a, c))
}

func TestSilenceAndIsSilent(t *testing.T) {
	base := New(KindCommunicationFailed, "retry me")
	wrapped := Silence(base)
	assert.True(t, IsSilent(wrapped))
	assert.False(t, IsSilent(base))
	assert.Nil(t, Silence(nil))
}

func TestSameMessageDeduplicatesIdenticalErrors(t *testing.T) {
	a := New(KindHardwareError, "disconnected")
	b := New(KindHardwareError, "disconnected")
	assert.True(t, SameMessage(a, b))

	c := New(KindHardwareError, "different")
	assert.False(t, SameMessage(a, c))
}

func TestIsStartupFatal(t *testing.T) {
	assert.True(t, IsStartupFatal(New(KindConfigError, "missing default")))
	assert.True(t, IsStartupFatal(New(KindProgrammingError, "bad subclass")))
	assert.False(t, IsStartupFatal(New(KindBadValue, "nope")))
}
