package dispatch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vitalybin/frappy/pkg/secop/seclog"
	"github.com/vitalybin/frappy/pkg/secop/wire"
)

// ClientState is the two-state protocol machine of spec.md §4.6.
type ClientState int

const (
	StateNew ClientState = iota
	StateActive
)

// Session is one connected client's dispatcher-side state: its
// subscription set and an outbound frame queue, rate-limited the way
// the teacher's transport layer throttles outbound SSE/websocket frames
// per connection to keep one slow client from starving the others.
type Session struct {
	ID  string
	Log seclog.Logger

	mu       sync.Mutex
	state    ClientState
	global   bool
	modules  map[string]bool
	closed   bool

	Out     chan wire.Frame
	limiter *rate.Limiter
}

// NewSession allocates a session with a fresh UUID and a bounded,
// rate-limited outbound queue.
func NewSession() *Session {
	id := uuid.NewString()
	return &Session{
		ID:      id,
		Log:     seclog.ForClient(id),
		modules: map[string]bool{},
		Out:     make(chan wire.Frame, 256),
		limiter: rate.NewLimiter(rate.Limit(200), 400),
	}
}

// State returns the session's current protocol state.
func (s *Session) State() ClientState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Activate flips the session into ACTIVE, subscribing to moduleName
// (empty string means every module — spec.md §4.6 "activate (global or
// per-module)"). It reports whether this target was already active, so
// a repeated activate for the same scope can be treated as a no-op ack
// (spec.md §8: "two consecutive activate from the same client produce
// exactly one activation").
func (s *Session) Activate(moduleName string) (alreadyActive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if moduleName == "" {
		alreadyActive = s.global
	} else {
		alreadyActive = s.global || s.modules[moduleName]
	}
	s.state = StateActive
	if moduleName == "" {
		s.global = true
	} else {
		s.modules[moduleName] = true
	}
	return alreadyActive
}

// Deactivate flips the session back to NEW, per spec.md §4.6's
// "deactivate -> NEW; no backlog".
func (s *Session) Deactivate(moduleName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if moduleName == "" {
		s.global = false
		s.modules = map[string]bool{}
		s.state = StateNew
		return
	}
	delete(s.modules, moduleName)
	if !s.global && len(s.modules) == 0 {
		s.state = StateNew
	}
}

// Wants reports whether this session is currently subscribed to updates
// from moduleName.
func (s *Session) Wants(moduleName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.global || s.modules[moduleName]
}

// Send enqueues f, honoring the per-session rate limiter. Backpressure
// is expressed by blocking here (spec.md §5 "dispatcher sends block on
// client-queue backpressure"); ctx lets the caller bound how long it is
// willing to wait for one slow client.
func (s *Session) Send(ctx context.Context, f wire.Frame) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	select {
	case s.Out <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the session closed; any pending backlog for it is simply
// abandoned (spec.md §6 "abrupt disconnects drop any pending outbound
// backlog for that client only").
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.Out)
}
