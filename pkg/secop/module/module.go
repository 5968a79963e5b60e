// Package module implements the SECoP module runtime: construction from
// configuration, the read/write wrapper contract, cached parameter state
// and the base module kinds (spec.md §3 "Module", §4.1-§4.4).
package module

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitalybin/frappy/pkg/datatype"
	"github.com/vitalybin/frappy/pkg/secop/access"
	"github.com/vitalybin/frappy/pkg/secop/metrics"
	"github.com/vitalybin/frappy/pkg/secop/props"
	"github.com/vitalybin/frappy/pkg/secop/seclog"
	"github.com/vitalybin/frappy/pkg/secop/secoperr"
	"github.com/vitalybin/frappy/pkg/secop/tracing"
)

// Dispatcher is the non-owning handle a Module uses to publish updates.
// Modeled as an explicit dependency rather than the original's process-
// wide DISPATCHER singleton (spec.md §9 Design Notes).
type Dispatcher interface {
	AnnounceUpdate(moduleName, paramName string, value any, timestamp float64, err error)
}

// Handlers carries the user-written read/write functions of a module
// class, keyed by parameter name. A parameter with neither a direct
// handler entry nor a Parameter.Handler falls back to returning the
// cached value on read and rejecting writes it cannot validate.
type Handlers struct {
	Read  map[string]access.ReadFunc
	Write map[string]access.WriteFunc

	// Commands overrides a command's Impl for this instance. The class-
	// level accessible table (e.g. DrivableAccessibles' "stop") carries
	// Impl: nil since a command body is specific to one device, not a
	// whole module kind; New wires the override in at step 4.
	Commands map[string]func(any) (any, error)
}

// Config is the configuration sub-tree for one module, as produced by
// pkg/secop/config from YAML (spec.md §6 "Module configuration").
type Config map[string]any

// predefinedAccessibleNames are the wire names owned by the framework's
// built-in module kinds; anything else gets an underscore-prefixed
// custom export name (spec.md §4.3 step 4).
var predefinedAccessibleNames = map[string]bool{
	"value":        true,
	"status":       true,
	"target":       true,
	"pollinterval": true,
	"communicate":  true,
	"stop":         true,
}

// Module is a named instance exposing parameters and commands through a
// frozen accessible map (spec.md §3 "Module").
type Module struct {
	Name string
	Log  seclog.Logger

	dispatcher Dispatcher
	handlers   Handlers

	accessibles   map[string]any // *access.Parameter or *access.Command, instance copies
	order         []string
	wireName2Attr map[string]string

	Properties *props.Bag // module-level properties: export, group, description, ...

	cbMu           sync.Mutex
	valueCallbacks map[string][]func(any)
	errorCallbacks map[string][]func(error)

	writeDict map[string]any // pending init-write map; poller-thread owned

	exported bool

	// PollerClass selects which poller cmd/secopd starts for this module;
	// a concrete device constructor sets it (demo.NewHeater picks
	// PollerGeneric), and the zero value is PollerBasic.
	PollerClass PollerKind

	started bool
}

// PollerKind selects basic (one goroutine per module) vs generic
// (shared scheduler) polling, per spec.md §4.5.
type PollerKind int

const (
	PollerBasic PollerKind = iota
	PollerGeneric
)

// BaseModuleProperties returns the standard module-level properties every
// module carries (spec.md §4 Module, properties `export`, `group`,
// `description`, `visibility`, `implementation`, `interface_classes`).
func BaseModuleProperties() *props.Bag {
	b := props.NewBag()
	b.Define(props.Property{Name: "export", DataType: datatype.BoolType{}, Settable: true, Export: false}.WithDefault(true))
	b.Define(props.Property{Name: "group", DataType: datatype.StringType{}, Settable: true, Export: true, ExtName: "group"}.WithDefault(""))
	b.Define(props.Property{Name: "description", DataType: datatype.TextType{}, Settable: true, Mandatory: true, Export: true, ExtName: "description"})
	b.Define(props.Property{Name: "visibility", DataType: datatype.NewEnumType(map[string]int64{"user": 1, "advanced": 2, "expert": 3}), Settable: true, Export: true, ExtName: "visibility"}.WithDefault("user"))
	b.Define(props.Property{Name: "implementation", DataType: datatype.StringType{}, Export: true, ExtName: "implementation"})
	b.Define(props.Property{Name: "interface_classes", DataType: datatype.NewArrayOf(datatype.StringType{}), Export: true, ExtName: "interface_classes"})
	return b
}

// New constructs a Module from configuration, implementing spec.md §4.3's
// nine-step algorithm.
//
//	name           the module's instance name
//	logger         base logger; New scopes it with module=name
//	cfgdict        this module's configuration sub-tree
//	dispatcher     non-owning handle used for async updates
//	merged         the class's effective accessible map (access.MergeClass output)
//	classProps     the class's module-level property bag (BaseModuleProperties, extended)
//	handlers       user read/write functions
//	implementation fully qualified name of the concrete module type
//	interfaceClass the highest framework interface name (Readable, Writable, ...)
func New(
	name string,
	logger seclog.Logger,
	cfgdict Config,
	dispatcher Dispatcher,
	merged *access.Merged,
	classProps *props.Bag,
	handlers Handlers,
	implementation string,
	interfaceClass string,
) (*Module, error) {
	m := &Module{
		Name:           name,
		Log:            logger.With(zap.String("module", name)),
		dispatcher:     dispatcher,
		handlers:       handlers,
		accessibles:    map[string]any{},
		wireName2Attr:  map[string]string{},
		Properties:     classProps.Clone(),
		valueCallbacks: map[string][]func(any){},
		errorCallbacks: map[string][]func(error){},
		writeDict:      map[string]any{},
	}

	cfg := map[string]any{}
	for k, v := range cfgdict {
		cfg[k] = v
	}

	// Step 2: apply '.propname' (legacy dotted) and bare 'propname'
	// module-property config entries.
	for k := range cfg {
		if strings.HasPrefix(k, ".") {
			propName := k[1:]
			if !m.Properties.Has(propName) {
				return nil, secoperr.Newf(secoperr.KindConfigError, "module %q has no property %q", name, propName)
			}
			if err := m.Properties.Set(propName, cfg[k]); err != nil {
				return nil, err
			}
			delete(cfg, k)
		}
	}
	for _, propName := range m.Properties.Names() {
		if v, ok := cfg[propName]; ok {
			if err := m.Properties.Set(propName, v); err != nil {
				return nil, err
			}
			delete(cfg, propName)
		}
	}

	// Step 3: auto-properties.
	if err := m.Properties.Set("implementation", implementation); err != nil {
		return nil, err
	}
	if err := m.Properties.Set("interface_classes", []any{interfaceClass}); err != nil {
		return nil, err
	}

	exportVal, _ := m.Properties.Get("export")
	m.exported, _ = exportVal.(bool)

	// Step 4: copy each accessible to a per-instance object; fix
	// parameter flags; resolve export wire-name.
	for _, aname := range merged.Order {
		raw, _ := merged.Get(aname)
		switch acc := raw.(type) {
		case *access.Parameter:
			p := acc.Copy()
			if !p.HasInitWrite {
				p.InitWrite = p.Handler != nil
				p.HasInitWrite = true
			}
			if !p.HasNeedsCfg {
				p.NeedsCfg = p.Poll == 0
				p.HasNeedsCfg = true
			}
			if !m.exported {
				p.Export = false
			}
			if exportFlag, ok := p.Export.(bool); ok && exportFlag {
				if predefinedAccessibleNames[aname] {
					p.Export = aname
				} else {
					p.Export = "_" + aname
				}
			}
			if wireName, ok := p.Export.(string); ok {
				m.wireName2Attr[wireName] = aname
			}
			m.accessibles[aname] = p
		case *access.Command:
			impl := acc.Impl
			if override, ok := handlers.Commands[aname]; ok {
				impl = override
			}
			c := &access.Command{Accessible: acc.Accessible, ArgType: acc.ArgType, ResultType: acc.ResultType, Impl: impl}
			m.accessibles[aname] = c
			m.wireName2Attr[aname] = aname
		}
		m.order = append(m.order, aname)
		m.valueCallbacks[aname] = nil
		m.errorCallbacks[aname] = nil
	}

	// Step 5: 'paramname.propname' entries, including '.datatype'.
	for k := range cfg {
		if idx := strings.Index(k, "."); idx > 0 {
			paramName, propName := k[:idx], k[idx+1:]
			raw, ok := m.accessibles[paramName]
			if !ok {
				return nil, secoperr.Newf(secoperr.KindConfigError, "module %s has no parameter %q", name, paramName)
			}
			p, ok := raw.(*access.Parameter)
			if !ok {
				return nil, secoperr.Newf(secoperr.KindConfigError, "module %s: %q is not a parameter", name, paramName)
			}
			if propName == "datatype" {
				dt, ok := cfg[k].(datatype.DataType)
				if !ok {
					return nil, secoperr.Newf(secoperr.KindConfigError, "module %s: %s.datatype must be a datatype descriptor", name, paramName)
				}
				p.DataType = dt
			} else if p.Properties.Has(propName) {
				if err := p.Properties.Set(propName, cfg[k]); err != nil {
					return nil, err
				}
			} else {
				return nil, secoperr.Newf(secoperr.KindConfigError, "module %s: parameter %q has no property %q", name, paramName, propName)
			}
			delete(cfg, k)
		}
	}

	// Step 6: remaining config keys must name parameters.
	for k := range cfg {
		if _, ok := m.accessibles[k]; !ok {
			valid := make([]string, 0, len(m.accessibles))
			for pname := range m.accessibles {
				valid = append(valid, pname)
			}
			sort.Strings(valid)
			return nil, secoperr.Newf(secoperr.KindConfigError,
				"module %s: config key %q not understood (use one of %s)", name, k, strings.Join(valid, ", "))
		}
	}

	// Step 7: per-parameter default/config/init-write resolution.
	for _, aname := range m.order {
		raw, ok := m.accessibles[aname]
		if !ok {
			continue
		}
		p, ok := raw.(*access.Parameter)
		if !ok {
			continue
		}
		if cfgVal, present := cfg[aname]; present {
			vv, err := p.DataType.Validate(cfgVal)
			if err != nil {
				return nil, secoperr.Newf(secoperr.KindConfigError, "%s.%s: %v", name, aname, err)
			}
			p.SetTriple(vv, 0, nil)
			if !p.Readonly && p.InitWrite {
				m.writeDict[aname] = vv
			}
		} else if !p.HasDefault {
			if p.NeedsCfg {
				return nil, secoperr.Newf(secoperr.KindConfigError,
					"parameter %s.%s has no default value and was not given in config", name, aname)
			}
			p.SetTriple(p.DataType.Default(), 0, secoperr.New(secoperr.KindConfigError, "not initialized"))
		} else {
			vv, err := p.DataType.Validate(p.Default)
			if err != nil {
				return nil, secoperr.Newf(secoperr.KindProgrammingError, "bad default for %s.%s: %v", name, aname, err)
			}
			if p.InitWrite && !p.Readonly {
				p.SetTriple(vv, 0, nil)
				m.writeDict[aname] = vv
			} else {
				p.SetTriple(vv, 0, nil)
			}
		}
	}

	// Step 8: resolve "$" in every parameter's unit against value's unit.
	var valueUnit string
	if raw, ok := m.accessibles["value"]; ok {
		if p, ok := raw.(*access.Parameter); ok {
			if uc, ok := p.DataType.(datatype.UnitCarrier); ok {
				valueUnit = uc.Unit()
			}
		}
	}
	for _, raw := range m.accessibles {
		p, ok := raw.(*access.Parameter)
		if !ok {
			continue
		}
		if uc, ok := p.DataType.(datatype.UnitCarrier); ok && strings.Contains(uc.Unit(), "$") {
			uc.SetUnit(strings.ReplaceAll(uc.Unit(), "$", valueUnit))
		}
	}

	// Step 9: re-check all properties.
	if err := m.Properties.CheckMandatory(); err != nil {
		return nil, err
	}
	for _, raw := range m.accessibles {
		if p, ok := raw.(*access.Parameter); ok {
			if err := p.Properties.CheckMandatory(); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// Parameter returns the live parameter object by name, for poller and
// dispatcher use.
func (m *Module) Parameter(name string) (*access.Parameter, bool) {
	raw, ok := m.accessibles[name]
	if !ok {
		return nil, false
	}
	p, ok := raw.(*access.Parameter)
	return p, ok
}

// Command returns the live command object by name.
func (m *Module) Command(name string) (*access.Command, bool) {
	raw, ok := m.accessibles[name]
	if !ok {
		return nil, false
	}
	c, ok := raw.(*access.Command)
	return c, ok
}

// AccessibleNames returns every accessible (parameter and command) name
// in declared order — the frozen identity a descriptor cache key is
// derived from (SPEC_FULL.md §6).
func (m *Module) AccessibleNames() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Implementation returns the module's "implementation" property value,
// the fully-qualified concrete type name set at construction.
func (m *Module) Implementation() string {
	v, _ := m.Properties.Get("implementation")
	s, _ := v.(string)
	return s
}

// Parameters returns all parameter names in declared order.
func (m *Module) Parameters() []string {
	out := make([]string, 0, len(m.order))
	for _, name := range m.order {
		if _, ok := m.accessibles[name].(*access.Parameter); ok {
			out = append(out, name)
		}
	}
	return out
}

// WireName looks up a parameter's attribute name from its wire (exported) name.
func (m *Module) WireName(wireName string) (string, bool) {
	n, ok := m.wireName2Attr[wireName]
	return n, ok
}

// Exported reports whether this module (and therefore its exported
// accessibles) is visible to clients.
func (m *Module) Exported() bool { return m.exported }

// Describe builds this module's descriptor for a `describe` reply
// (spec.md §6): exported module properties plus an `accessibles` map of
// wire-name → accessible-descriptor (`datainfo` plus exported
// accessible properties).
func (m *Module) Describe() map[string]any {
	out := m.Properties.Exported()
	accessibles := map[string]any{}
	for _, aname := range m.order {
		switch acc := m.accessibles[aname].(type) {
		case *access.Parameter:
			wireName, ok := acc.Export.(string)
			if !ok {
				continue
			}
			desc := acc.Properties.Exported()
			desc["datainfo"] = acc.DataType.Describe()
			desc["readonly"] = acc.Readonly
			accessibles[wireName] = desc
		case *access.Command:
			desc := acc.Properties.Exported()
			datainfo := map[string]any{"type": "command"}
			if acc.ArgType != nil {
				datainfo["argument"] = acc.ArgType.Describe()
			}
			if acc.ResultType != nil {
				datainfo["result"] = acc.ResultType.Describe()
			}
			desc["datainfo"] = datainfo
			accessibles[aname] = desc
		}
	}
	out["accessibles"] = accessibles
	return out
}

// RegisterValueCallback appends a callback invoked after a successful
// announceUpdate for paramName. Safe to call at any time: registration
// holds cbMu, the same lock announceUpdate holds while it snapshots the
// callback lists (spec.md §5).
func (m *Module) RegisterValueCallback(paramName string, cb func(any)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.valueCallbacks[paramName] = append(m.valueCallbacks[paramName], cb)
}

// RegisterErrorCallback appends a callback invoked after an error
// announceUpdate for paramName.
func (m *Module) RegisterErrorCallback(paramName string, cb func(error)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.errorCallbacks[paramName] = append(m.errorCallbacks[paramName], cb)
}

// AnnounceUpdate implements spec.md §4.4, the six-step update algorithm.
func (m *Module) AnnounceUpdate(pname string, value any, err error, timestamp float64) {
	p, ok := m.Parameter(pname)
	if !ok {
		m.Log.Error("announceUpdate for unknown parameter", zap.String("parameter", pname))
		return
	}

	_, span := tracing.StartParamSpan(context.Background(), "announce", m.Name, pname)
	defer func() { tracing.End(span, err) }()

	_, _, prevErr := p.Snapshot()

	// Step 2: wrap non-framework errors into canonical form before any
	// comparison against prevErr, which is always already-wrapped from a
	// prior call. Comparing raw vs. wrapped would never match.
	if err != nil {
		err = secoperr.AsFramework(err)
	} else {
		// Step 3: re-validate value through the datatype on the success path.
		vv, verr := p.DataType.Validate(value)
		if verr != nil {
			err = secoperr.AsFramework(verr)
		} else {
			value = vv
		}
	}

	// Step 1: de-duplicate identical repeated errors.
	if err != nil && secoperr.SameMessage(err, prevErr) {
		return
	}

	// Step 4: atomic triple update.
	if timestamp == 0 {
		timestamp = float64(time.Now().UnixNano()) / 1e9
	}
	p.SetTriple(value, timestamp, err)

	// Step 5: hand off to the dispatcher if exported.
	if _, wireExported := p.Export.(string); wireExported && m.dispatcher != nil {
		m.dispatcher.AnnounceUpdate(m.Name, pname, value, timestamp, err)
	}

	if err != nil {
		metrics.ObserveReadError(m.Name, pname)
	} else {
		metrics.ObserveUpdate(m.Name, pname)
	}

	// Step 6: invoke registered callbacks, swallowing their own panics/errors.
	m.cbMu.Lock()
	valueCbs := append([]func(any){}, m.valueCallbacks[pname]...)
	errorCbs := append([]func(error){}, m.errorCallbacks[pname]...)
	m.cbMu.Unlock()

	safeInvoke(func() {
		if err != nil {
			for _, cb := range errorCbs {
				cb(err)
			}
		} else {
			for _, cb := range valueCbs {
				cb(value)
			}
		}
	})
}

func safeInvoke(f func()) {
	defer func() {
		_ = recover() // callback exceptions are swallowed per spec.md §4.4 step 6
	}()
	f()
}
