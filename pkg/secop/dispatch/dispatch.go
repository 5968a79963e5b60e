// Package dispatch implements the SECoP dispatcher: the single
// authority over connected client sessions, the per-client NEW/ACTIVE
// protocol state machine, and the frame-routing rules of spec.md §4.6.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitalybin/frappy/pkg/secop/cache"
	"github.com/vitalybin/frappy/pkg/secop/module"
	"github.com/vitalybin/frappy/pkg/secop/seclog"
	"github.com/vitalybin/frappy/pkg/secop/secoperr"
	"github.com/vitalybin/frappy/pkg/secop/tracing"
	"github.com/vitalybin/frappy/pkg/secop/wire"
)

// sendTimeout bounds how long announce_update fan-out waits on one
// session's backpressured queue before giving up on that session for
// this update (spec.md §5 permits blocking sends, but an unbounded
// block on one client would stall every other publisher on the same
// goroutine).
const sendTimeout = 5 * time.Second

// NodeInfo carries the node-level descriptor fields spec.md §6
// attaches to a `describe` reply outside the per-module data.
type NodeInfo struct {
	EquipmentID string
	Description string
	Firmware    string
}

// Dispatcher owns the module registry and the set of connected
// sessions. It implements module.Dispatcher, receiving announce_update
// calls from arbitrary poller or handler goroutines (spec.md §5 "the
// dispatcher runs in its own logical context").
type Dispatcher struct {
	node NodeInfo
	log  seclog.Logger

	mu      sync.RWMutex
	modules map[string]*module.Module
	order   []string

	descriptors *cache.DescriptorCache

	sessMu   sync.RWMutex
	sessions map[string]*Session
}

// New builds an empty Dispatcher for one node.
func New(node NodeInfo) *Dispatcher {
	descriptors, err := cache.NewDescriptorCache(128)
	if err != nil {
		// lru.New only fails for a non-positive size, which
		// NewDescriptorCache already guards against.
		panic(err)
	}
	return &Dispatcher{
		node:        node,
		log:         seclog.Named("dispatch"),
		modules:     map[string]*module.Module{},
		descriptors: descriptors,
		sessions:    map[string]*Session{},
	}
}

// Register adds a fully constructed module to the node. Modules must be
// registered before any client activates (spec.md §5 resource lifecycle).
func (d *Dispatcher) Register(m *module.Module) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modules[m.Name] = m
	d.order = append(d.order, m.Name)
}

// Modules returns registered module names in registration order.
func (d *Dispatcher) Modules() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

func (d *Dispatcher) module(name string) (*module.Module, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.modules[name]
	return m, ok
}

// AddSession registers a new client session.
func (d *Dispatcher) AddSession(s *Session) {
	d.sessMu.Lock()
	defer d.sessMu.Unlock()
	d.sessions[s.ID] = s
}

// RemoveSession drops a disconnected session; any queued backlog for it
// is abandoned (spec.md §6).
func (d *Dispatcher) RemoveSession(s *Session) {
	d.sessMu.Lock()
	defer d.sessMu.Unlock()
	delete(d.sessions, s.ID)
}

// AnnounceUpdate implements module.Dispatcher: fan an `update` frame out
// to every session currently subscribed to moduleName, in the order
// announceUpdate was called (spec.md §4.6 "ordering guarantee").
func (d *Dispatcher) AnnounceUpdate(moduleName, paramName string, value any, ts float64, err error) {
	payload, encErr := wire.MarshalPayload([]any{value, wire.Qualifiers(ts, err)})
	if encErr != nil {
		d.log.Error("failed to encode update payload", zap.String("module", moduleName), zap.String("parameter", paramName), zap.Error(encErr))
		return
	}
	frame := wire.Frame{Action: "update", Specifier: wire.JoinSpecifier(moduleName, paramName), Payload: payload}

	d.sessMu.RLock()
	targets := make([]*Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		if s.Wants(moduleName) {
			targets = append(targets, s)
		}
	}
	d.sessMu.RUnlock()

	for _, s := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if sendErr := s.Send(ctx, frame); sendErr != nil {
			d.log.Warn("dropping update for backpressured session", zap.String("session", s.ID), zap.Error(sendErr))
		}
		cancel()
	}
}

// HandleFrame routes one successfully-parsed incoming frame and returns
// the reply frame(s) to send back (spec.md §4.6 routing rules). It never
// panics on bad client input; every failure path returns an
// error_<action> frame instead.
func (d *Dispatcher) HandleFrame(ctx context.Context, s *Session, f wire.Frame) []wire.Frame {
	_, span := tracing.StartDispatchSpan(ctx, f.Action, f.Specifier)
	defer tracing.End(span, nil)

	switch f.Action {
	case "identify":
		return []wire.Frame{d.handleIdentify()}
	case "describe":
		return []wire.Frame{d.handleDescribe()}
	case "activate":
		return d.handleActivate(s, f)
	case "deactivate":
		return d.handleDeactivate(s, f)
	case "read":
		return []wire.Frame{d.handleRead(f)}
	case "change":
		return []wire.Frame{d.handleChange(f)}
	case "do":
		return []wire.Frame{d.handleDo(f)}
	default:
		return []wire.Frame{errorFrame(f.Action, f.Specifier, secoperr.Newf(secoperr.KindProtocolError, "unknown action %q", f.Action))}
	}
}

// HandleParseError builds the error_<inferred-action> reply spec.md
// §4.6 mandates for a malformed frame, leaving the session's state
// untouched.
func HandleParseError(inferredAction string, err error) wire.Frame {
	if inferredAction == "" {
		inferredAction = "protocol"
	}
	return errorFrame(inferredAction, "", err)
}

func errorFrame(action, specifier string, err error) wire.Frame {
	if secoperr.IsStartupFatal(err) {
		// ConfigError/ProgrammingError are startup-only and never go on
		// the wire; reaching this point is a bug, so log it and send
		// InternalError instead.
		seclog.Named("dispatch").Error("startup-only error reached the wire translator", zap.Error(err))
		err = secoperr.New(secoperr.KindInternalError, secoperr.AsFramework(err).Detail)
	}
	payload, encErr := wire.ErrorPayload(err)
	if encErr != nil {
		payload, _ = wire.MarshalPayload([]any{"InternalError", "failed to encode error", map[string]any{}})
	}
	return wire.Frame{Action: "error_" + action, Specifier: specifier, Payload: payload}
}

func (d *Dispatcher) handleIdentify() wire.Frame {
	payload, _ := wire.MarshalPayload(d.node.EquipmentID + "," + d.node.Firmware)
	return wire.Frame{Action: "identify", Payload: payload}
}

func (d *Dispatcher) describeNode() map[string]any {
	d.mu.RLock()
	names := make([]string, len(d.order))
	copy(names, d.order)
	mods := make(map[string]*module.Module, len(d.modules))
	for k, v := range d.modules {
		mods[k] = v
	}
	d.mu.RUnlock()

	moduleDescs := map[string]any{}
	for _, name := range names {
		m := mods[name]
		if !m.Exported() {
			continue
		}
		// The module name is part of the key: two modules of one class
		// carry different property values (description, group, ...).
		key := cache.Key(m.Implementation(), append([]string{name}, m.AccessibleNames()...))
		moduleDescs[name] = d.descriptors.GetOrCompute(key, m.Describe)
	}
	return map[string]any{
		"modules":      moduleDescs,
		"equipment_id": d.node.EquipmentID,
		"description":  d.node.Description,
		"firmware":     d.node.Firmware,
	}
}

func (d *Dispatcher) handleDescribe() wire.Frame {
	payload, err := wire.MarshalPayload(d.describeNode())
	if err != nil {
		return errorFrame("describe", "", err)
	}
	return wire.Frame{Action: "describing", Payload: payload}
}

// handleActivate flips s's subscription then replies with an `update`
// frame for every currently-cached exported parameter, in deterministic
// (module name, then declaration) order, followed by an `active` ack
// (spec.md §4.6). A repeated activate for a target the session already
// has is a no-op ack with no backlog replay (spec.md §8).
func (d *Dispatcher) handleActivate(s *Session, f wire.Frame) []wire.Frame {
	moduleName, _, hasSpec := wire.SplitSpecifier(f.Specifier)
	if hasSpec {
		if _, ok := d.module(moduleName); !ok {
			return []wire.Frame{errorFrame("activate", f.Specifier, secoperr.Newf(secoperr.KindNoSuchModule, "no such module %q", moduleName))}
		}
	}

	if alreadyActive := s.Activate(moduleName); alreadyActive {
		return []wire.Frame{{Action: "active", Specifier: f.Specifier}}
	}

	d.mu.RLock()
	names := make([]string, len(d.order))
	copy(names, d.order)
	mods := make(map[string]*module.Module, len(d.modules))
	for k, v := range d.modules {
		mods[k] = v
	}
	d.mu.RUnlock()
	sort.Strings(names)

	var out []wire.Frame
	for _, name := range names {
		if hasSpec && name != moduleName {
			continue
		}
		m := mods[name]
		if !m.Exported() {
			continue
		}
		for _, pname := range m.Parameters() {
			p, ok := m.Parameter(pname)
			if !ok {
				continue
			}
			wireName, ok := p.Export.(string)
			if !ok {
				continue
			}
			value, ts, rerr := p.Snapshot()
			payload, err := wire.MarshalPayload([]any{value, wire.Qualifiers(ts, rerr)})
			if err != nil {
				continue
			}
			out = append(out, wire.Frame{Action: "update", Specifier: wire.JoinSpecifier(name, wireName), Payload: payload})
		}
	}
	out = append(out, wire.Frame{Action: "active", Specifier: f.Specifier})
	return out
}

func (d *Dispatcher) handleDeactivate(s *Session, f wire.Frame) []wire.Frame {
	moduleName, _, _ := wire.SplitSpecifier(f.Specifier)
	s.Deactivate(moduleName)
	return []wire.Frame{{Action: "inactive", Specifier: f.Specifier}}
}

func (d *Dispatcher) handleRead(f wire.Frame) wire.Frame {
	moduleName, paramName, ok := wire.SplitSpecifier(f.Specifier)
	if !ok {
		return errorFrame("read", f.Specifier, secoperr.New(secoperr.KindProtocolError, "read requires a module:param specifier"))
	}
	m, ok := d.module(moduleName)
	if !ok {
		return errorFrame("read", f.Specifier, secoperr.Newf(secoperr.KindNoSuchModule, "no such module %q", moduleName))
	}
	value, err := m.ReadWrapper(paramName)
	if err != nil {
		return errorFrame("read", f.Specifier, err)
	}
	p, _ := m.Parameter(paramName)
	_, ts, rerr := p.Snapshot()
	payload, encErr := wire.MarshalPayload([]any{value, wire.Qualifiers(ts, rerr)})
	if encErr != nil {
		return errorFrame("read", f.Specifier, encErr)
	}
	return wire.Frame{Action: "reply", Specifier: f.Specifier, Payload: payload}
}

func (d *Dispatcher) handleChange(f wire.Frame) wire.Frame {
	moduleName, paramName, ok := wire.SplitSpecifier(f.Specifier)
	if !ok {
		return errorFrame("change", f.Specifier, secoperr.New(secoperr.KindProtocolError, "change requires a module:param specifier"))
	}
	m, ok := d.module(moduleName)
	if !ok {
		return errorFrame("change", f.Specifier, secoperr.Newf(secoperr.KindNoSuchModule, "no such module %q", moduleName))
	}
	var submitted any
	if len(f.Payload) > 0 {
		if err := unmarshalPayload(f.Payload, &submitted); err != nil {
			return errorFrame("change", f.Specifier, secoperr.Newf(secoperr.KindBadValue, "invalid payload: %v", err))
		}
	}
	value, err := m.WriteWrapper(paramName, submitted)
	if err != nil {
		return errorFrame("change", f.Specifier, err)
	}
	p, _ := m.Parameter(paramName)
	_, ts, rerr := p.Snapshot()
	payload, encErr := wire.MarshalPayload([]any{value, wire.Qualifiers(ts, rerr)})
	if encErr != nil {
		return errorFrame("change", f.Specifier, encErr)
	}
	return wire.Frame{Action: "changed", Specifier: f.Specifier, Payload: payload}
}

func (d *Dispatcher) handleDo(f wire.Frame) wire.Frame {
	moduleName, cmdName, ok := wire.SplitSpecifier(f.Specifier)
	if !ok {
		return errorFrame("do", f.Specifier, secoperr.New(secoperr.KindProtocolError, "do requires a module:command specifier"))
	}
	m, ok := d.module(moduleName)
	if !ok {
		return errorFrame("do", f.Specifier, secoperr.Newf(secoperr.KindNoSuchModule, "no such module %q", moduleName))
	}
	cmd, ok := m.Command(cmdName)
	if !ok {
		return errorFrame("do", f.Specifier, secoperr.Newf(secoperr.KindNoSuchCommand, "%s has no command %q", moduleName, cmdName))
	}

	var arg any
	if cmd.ArgType != nil {
		if len(f.Payload) == 0 {
			return errorFrame("do", f.Specifier, secoperr.Newf(secoperr.KindWrongType, "%s.%s requires an argument", moduleName, cmdName))
		}
		if err := unmarshalPayload(f.Payload, &arg); err != nil {
			return errorFrame("do", f.Specifier, secoperr.Newf(secoperr.KindBadValue, "invalid argument: %v", err))
		}
		vv, verr := cmd.ArgType.Validate(arg)
		if verr != nil {
			return errorFrame("do", f.Specifier, verr)
		}
		arg = vv
	}

	if cmd.Impl == nil {
		return errorFrame("do", f.Specifier, secoperr.Newf(secoperr.KindProgrammingError, "%s.%s has no implementation", moduleName, cmdName))
	}

	result, err := invokeCommand(cmd.Impl, arg)
	if err != nil {
		return errorFrame("do", f.Specifier, err)
	}
	if cmd.ResultType != nil {
		vv, verr := cmd.ResultType.Validate(result)
		if verr == nil {
			result = vv
		}
	}
	payload, encErr := wire.MarshalPayload([]any{result, wire.Qualifiers(nowSeconds(), nil)})
	if encErr != nil {
		return errorFrame("do", f.Specifier, encErr)
	}
	return wire.Frame{Action: "done", Specifier: f.Specifier, Payload: payload}
}

// invokeCommand calls impl with panic isolation, converting any panic
// into a CommandFailed framework error (spec.md §7 "CommandFailed —
// command semantics").
func invokeCommand(impl func(any) (any, error), arg any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = secoperr.Newf(secoperr.KindCommandFailed, "command panicked: %v", r)
		}
	}()
	return impl(arg)
}
