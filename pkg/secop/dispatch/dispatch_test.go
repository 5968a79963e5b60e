package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalybin/frappy/pkg/secop/access"
	"github.com/vitalybin/frappy/pkg/secop/module"
	"github.com/vitalybin/frappy/pkg/secop/seclog"
	"github.com/vitalybin/frappy/pkg/secop/wire"
)

func newTestNode(t *testing.T) (*Dispatcher, *module.Module) {
	t.Helper()
	merged := module.WritableAccessibles()
	var current float64 = 1.0
	handlers := module.Handlers{
		Read: map[string]access.ReadFunc{
			"value": func() (any, error) { return current, nil },
		},
		Write: map[string]access.WriteFunc{
			"target": func(v any) (access.WriteOutcome, any, error) {
				current = v.(float64)
				return access.AcceptSubmitted, nil, nil
			},
		},
	}
	m, err := module.New("heater", seclog.Named("test"), module.Config{"description": "a heater"}, nil, merged, module.BaseModuleProperties(), handlers, "test.Heater", "Writable")
	require.NoError(t, err)

	d := New(NodeInfo{EquipmentID: "eq1", Description: "test node", Firmware: "0.0.1"})
	d.Register(m)
	return d, m
}

func TestHandleReadReply(t *testing.T) {
	d, _ := newTestNode(t)
	s := NewSession()
	reply := d.HandleFrame(context.Background(), s, wire.Frame{Action: "read", Specifier: "heater:value"})
	require.Len(t, reply, 1)
	assert.Equal(t, "reply", reply[0].Action)

	var body []any
	require.NoError(t, json.Unmarshal(reply[0].Payload, &body))
	assert.InDelta(t, 1.0, body[0], 1e-9)
}

func TestHandleReadNoSuchModule(t *testing.T) {
	d, _ := newTestNode(t)
	s := NewSession()
	reply := d.HandleFrame(context.Background(), s, wire.Frame{Action: "read", Specifier: "ghost:value"})
	require.Len(t, reply, 1)
	assert.Equal(t, "error_read", reply[0].Action)
}

func TestHandleChangeUpdatesTarget(t *testing.T) {
	d, _ := newTestNode(t)
	s := NewSession()
	payload, _ := json.Marshal(3.5)
	reply := d.HandleFrame(context.Background(), s, wire.Frame{Action: "change", Specifier: "heater:target", Payload: payload})
	require.Len(t, reply, 1)
	assert.Equal(t, "changed", reply[0].Action)

	var body []any
	require.NoError(t, json.Unmarshal(reply[0].Payload, &body))
	assert.InDelta(t, 3.5, body[0], 1e-9)
}

func TestHandleDescribeListsModule(t *testing.T) {
	d, _ := newTestNode(t)
	s := NewSession()
	reply := d.HandleFrame(context.Background(), s, wire.Frame{Action: "describe"})
	require.Len(t, reply, 1)
	assert.Equal(t, "describing", reply[0].Action)

	var body map[string]any
	require.NoError(t, json.Unmarshal(reply[0].Payload, &body))
	mods := body["modules"].(map[string]any)
	_, ok := mods["heater"]
	assert.True(t, ok)
}

func TestHandleActivateEmitsUpdatesThenActive(t *testing.T) {
	d, _ := newTestNode(t)
	s := NewSession()
	reply := d.HandleFrame(context.Background(), s, wire.Frame{Action: "activate", Specifier: "heater"})
	require.NotEmpty(t, reply)
	last := reply[len(reply)-1]
	assert.Equal(t, "active", last.Action)
	for _, f := range reply[:len(reply)-1] {
		assert.Equal(t, "update", f.Action)
	}
	assert.Equal(t, StateActive, s.State())
}

func newTestDrivable(t *testing.T, stopped *bool) (*Dispatcher, *module.Module) {
	t.Helper()
	merged := module.DrivableAccessibles()
	var current float64 = 1.0
	handlers := module.Handlers{
		Read: map[string]access.ReadFunc{
			"value":  func() (any, error) { return current, nil },
			"status": func() (any, error) { return []any{int64(0), ""}, nil },
		},
		Write: map[string]access.WriteFunc{
			"target": func(v any) (access.WriteOutcome, any, error) {
				current = v.(float64)
				return access.AcceptSubmitted, nil, nil
			},
		},
		Commands: map[string]func(any) (any, error){
			"stop": func(any) (any, error) {
				*stopped = true
				return nil, nil
			},
		},
	}
	m, err := module.New("heater", seclog.Named("test"), module.Config{"description": "a heater"}, nil, merged, module.BaseModuleProperties(), handlers, "test.Heater", "Drivable")
	require.NoError(t, err)

	d := New(NodeInfo{EquipmentID: "eq1", Description: "test node", Firmware: "0.0.1"})
	d.Register(m)
	return d, m
}

func TestHandleDoInvokesRealCommandImpl(t *testing.T) {
	var stopped bool
	d, _ := newTestDrivable(t, &stopped)
	reply := d.HandleFrame(context.Background(), NewSession(), wire.Frame{Action: "do", Specifier: "heater:stop"})
	require.Len(t, reply, 1)
	assert.Equal(t, "done", reply[0].Action)
	assert.Equal(t, "heater:stop", reply[0].Specifier)
	assert.True(t, stopped, "stop command's Impl must actually run through the dispatcher")
}

func TestHandleActivateTwiceIsIdempotent(t *testing.T) {
	d, _ := newTestNode(t)
	s := NewSession()

	first := d.HandleFrame(context.Background(), s, wire.Frame{Action: "activate", Specifier: "heater"})
	require.True(t, len(first) > 1, "first activate should emit a backlog plus the active ack")

	second := d.HandleFrame(context.Background(), s, wire.Frame{Action: "activate", Specifier: "heater"})
	require.Len(t, second, 1, "repeated activate for the same client/target must be a no-op ack")
	assert.Equal(t, "active", second[0].Action)
	assert.Equal(t, "heater", second[0].Specifier)
	assert.Equal(t, StateActive, s.State())
}

func TestHandleDeactivateResetsState(t *testing.T) {
	d, _ := newTestNode(t)
	s := NewSession()
	d.HandleFrame(context.Background(), s, wire.Frame{Action: "activate", Specifier: ""})
	reply := d.HandleFrame(context.Background(), s, wire.Frame{Action: "deactivate", Specifier: ""})
	require.Len(t, reply, 1)
	assert.Equal(t, "inactive", reply[0].Action)
	assert.Equal(t, StateNew, s.State())
}

func TestAnnounceUpdateFansOutOnlyToSubscribedSessions(t *testing.T) {
	d, _ := newTestNode(t)
	d.AddSession(NewSession())
	active := NewSession()
	active.Activate("heater")
	d.AddSession(active)
	idle := NewSession()
	d.AddSession(idle)

	d.AnnounceUpdate("heater", "value", 2.0, nowSeconds(), nil)

	select {
	case f := <-active.Out:
		assert.Equal(t, "update", f.Action)
		assert.Equal(t, "heater:value", f.Specifier)
	case <-time.After(time.Second):
		t.Fatal("activated session never received the update")
	}

	select {
	case <-idle.Out:
		t.Fatal("idle session should not receive updates")
	case <-time.After(50 * time.Millisecond):
	}
}


func TestHandleParseErrorKeepsStateUntouched(t *testing.T) {
	f := HandleParseError("read", &json.SyntaxError{})
	assert.Equal(t, "error_read", f.Action)
}
