// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package maintenance implements the per-identity maintenance barrier: an
// admission gate operators can close, and a drain barrier they can wait on
// to reach zero in-flight requests, scoped independently per identity.
package maintenance

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"grimm.is/wardgate/internal/keyedfactory"
	"grimm.is/wardgate/internal/obslog"
)

// State is the maintenance state for one identity: a gate new requests wait
// on while closed, and a counter of requests currently admitted.
type State struct {
	mu     sync.Mutex
	cond   *sync.Cond
	gateCh chan struct{} // closed channel == gate open
	count  int

	ident string
	log   *obslog.Logger
}

func newState(ident any, log *obslog.Logger) *State {
	if log == nil {
		log = obslog.Noop()
	}
	s := &State{gateCh: closedChan(), ident: fmt.Sprint(ident), log: log}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// WaitOpen blocks until the gate is open or ctx is done, returning false in
// the latter case. A nil ctx blocks indefinitely (throttle-mode semantics).
func (s *State) WaitOpen(ctx context.Context) bool {
	s.mu.Lock()
	ch := s.gateCh
	s.mu.Unlock()

	if ctx == nil {
		<-ch
		return true
	}
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Enter registers one admitted request. Every Enter must be matched by
// exactly one Leave, on every exit path (the caller is responsible for
// ensuring a single logical request calls Enter at most once).
func (s *State) Enter() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
}

// Leave deregisters one previously-Entered request.
func (s *State) Leave() {
	s.mu.Lock()
	s.count--
	if s.count <= 0 {
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// AwaitDrained blocks until no request is currently admitted.
func (s *State) AwaitDrained() {
	s.mu.Lock()
	for s.count > 0 {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// Close swaps in a fresh, closed gate so new admissions block, and returns
// the function that reopens that exact gate. It is safe to call Close
// again before calling the returned reopen, each pair is independent. Each
// close/reopen pair gets its own correlation ID, logged so an operator can
// match a "gate closed" line to its eventual "gate reopened" line.
func (s *State) Close() (reopen func()) {
	corrID := uuid.NewString()
	s.mu.Lock()
	newGate := make(chan struct{})
	s.gateCh = newGate
	s.mu.Unlock()

	s.log.Info("maintenance: gate closed", "ident", s.ident, "correlation_id", corrID)
	return func() {
		close(newGate)
		s.log.Info("maintenance: gate reopened", "ident", s.ident, "correlation_id", corrID)
	}
}

// Manager hands out per-identity State, keyed weakly so identities with no
// in-flight request and no active operator no longer cost memory.
type Manager struct {
	table *keyedfactory.Table[any, State]
	log   *obslog.Logger
}

// NewManager builds an empty Manager. log may be nil (no-op).
func NewManager(log *obslog.Logger) *Manager {
	return &Manager{table: keyedfactory.New[any, State](), log: log}
}

// Get returns the live State for ident, creating one if needed.
func (m *Manager) Get(ident any) *State {
	return m.table.Get(ident, func(k any) *State { return newState(k, m.log) })
}
