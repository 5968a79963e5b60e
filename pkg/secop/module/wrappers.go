package module

import (
	"context"

	"go.uber.org/zap"

	"github.com/vitalybin/frappy/pkg/secop/access"
	"github.com/vitalybin/frappy/pkg/secop/metrics"
	"github.com/vitalybin/frappy/pkg/secop/secoperr"
	"github.com/vitalybin/frappy/pkg/secop/tracing"
)

func (m *Module) readFuncFor(pname string, p *access.Parameter) access.ReadFunc {
	if rf, ok := m.handlers.Read[pname]; ok && rf != nil {
		return rf
	}
	if p.Handler != nil {
		return p.Handler.GetReadFunc(pname)
	}
	return nil
}

func (m *Module) writeFuncFor(pname string, p *access.Parameter) access.WriteFunc {
	if wf, ok := m.handlers.Write[pname]; ok && wf != nil {
		return wf
	}
	if p.Handler != nil {
		return p.Handler.GetWriteFunc(pname)
	}
	return nil
}

// ReadWrapper implements spec.md §4.2's read wrapper: call the user read
// function if one exists, otherwise return the cached value; route any
// error through announceUpdate and re-raise it to the caller.
func (m *Module) ReadWrapper(pname string) (any, error) {
	p, ok := m.Parameter(pname)
	if !ok {
		return nil, secoperr.Newf(secoperr.KindNoSuchParameter, "%s has no parameter %q", m.Name, pname)
	}

	_, span := tracing.StartParamSpan(context.Background(), "read", m.Name, pname)
	var err error
	defer func() { tracing.End(span, err) }()

	rfunc := m.readFuncFor(pname, p)
	if rfunc == nil {
		v, _, _ := p.Snapshot()
		m.Log.Debug("read: returning cached value", zap.String("parameter", pname))
		return v, nil
	}

	m.Log.Debug("read: calling user read function", zap.String("parameter", pname))
	value, rerr := rfunc()
	if rerr != nil {
		if rerr == access.ErrAlreadyAnnounced {
			v, _, e := p.Snapshot()
			return v, e
		}
		m.Log.Debug("read: user function failed", zap.String("parameter", pname), zap.Error(rerr))
		m.AnnounceUpdate(pname, nil, rerr, 0)
		err = rerr
		return nil, rerr
	}
	m.AnnounceUpdate(pname, value, nil, 0)
	result, _, rerr2 := p.Snapshot()
	err = rerr2
	return result, rerr2
}

// WriteWrapper implements spec.md §4.2's write wrapper: validate the
// submitted value, call the user write function if present, interpret
// its WriteOutcome, then update the cache and announce.
func (m *Module) WriteWrapper(pname string, submitted any) (any, error) {
	p, ok := m.Parameter(pname)
	if !ok {
		return nil, secoperr.Newf(secoperr.KindNoSuchParameter, "%s has no parameter %q", m.Name, pname)
	}
	if p.Readonly {
		return nil, secoperr.Newf(secoperr.KindReadOnly, "%s.%s is read-only", m.Name, pname)
	}

	_, span := tracing.StartParamSpan(context.Background(), "write", m.Name, pname)
	var err error
	defer func() { tracing.End(span, err) }()

	validated, verr := p.DataType.Validate(submitted)
	if verr != nil {
		err = secoperr.AsFramework(verr)
		return nil, err
	}

	wfunc := m.writeFuncFor(pname, p)
	finalValue := validated
	if wfunc != nil {
		m.Log.Debug("write: calling user write function", zap.String("parameter", pname))
		outcome, returned, werr := wfunc(validated)
		if werr != nil {
			err = werr
			return nil, werr
		}
		switch outcome {
		case access.AlreadyAnnounced:
			v, _, e := p.Snapshot()
			return v, e
		case access.Accepted:
			finalValue = returned
		case access.AcceptSubmitted:
			// keep validated value
		}
	}

	m.AnnounceUpdate(pname, finalValue, nil, 0)
	metrics.ObserveWrite(m.Name, pname)
	result, _, rerr := p.Snapshot()
	return result, rerr
}

// WriteInitParams implements spec.md §4.5's init write loop: iterate the
// pending-write map (snapshot), call the write wrapper for each entry,
// remove on success. Re-checks presence before each dispatch because a
// handler-driven write may pull other entries out of the map.
func (m *Module) WriteInitParams() {
	names := make([]string, 0, len(m.writeDict))
	for name := range m.writeDict {
		names = append(names, name)
	}
	for _, pname := range names {
		value, present := m.writeDict[pname]
		if !present {
			continue
		}
		m.Log.Debug("writeInitParams: initializing", zap.String("parameter", pname))
		_, err := m.WriteWrapper(pname, value)
		if err != nil {
			if secoperr.IsSilent(err) {
				// retry later, stay silent
			} else {
				m.Log.Error("writeInitParams failed", zap.String("parameter", pname), zap.Error(err))
			}
			continue
		}
		delete(m.writeDict, pname)
	}
}

// PollOneParam reads one parameter with the error isolation spec.md
// §4.5's pollParams describes: SilentError swallowed, framework errors
// logged, other panics recovered and logged.
func (m *Module) PollOneParam(pname string) {
	defer func() {
		if r := recover(); r != nil {
			m.Log.Error("poll panicked", zap.String("parameter", pname), zap.Any("panic", r))
		}
	}()
	metrics.ObservePoll(m.Name, pname)
	_, err := m.ReadWrapper(pname)
	if err == nil || secoperr.IsSilent(err) {
		return
	}
	m.Log.Error("poll failed", zap.String("parameter", pname), zap.Error(err))
}

// Lifecycle hooks a concrete module may implement; the framework only
// calls the optional ones it finds via type assertion.
type EarlyIniter interface{ EarlyInit() }
type ModuleIniter interface{ InitModule() }

// RunEarlyInit calls EarlyInit if the module implements it, else no-ops
// (spec.md §4.5 "empty earlyInit()").
func RunEarlyInit(m any) {
	if e, ok := m.(EarlyIniter); ok {
		e.EarlyInit()
	}
}

// RunInitModule calls InitModule if the module implements it.
func RunInitModule(m any) {
	if i, ok := m.(ModuleIniter); ok {
		i.InitModule()
	}
}
