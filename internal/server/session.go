package server

import "sync"

// SessionState tracks where a tracker session is in its lifecycle.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitialized
	StateShuttingDown
)

// Session holds per-connection state: the lifecycle phase and write counters
// reported back at shutdown.
type Session struct {
	mu                 sync.Mutex
	state              SessionState
	assessmentsWritten int64
	tracesLogged       int64
}

// NewSession returns a Session in StateUninitialized.
func NewSession() *Session {
	return &Session{state: StateUninitialized}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the session to st.
func (s *Session) SetState(st SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// RecordAssessmentWrite counts one assessment create or update.
func (s *Session) RecordAssessmentWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessmentsWritten++
}

// RecordTraceLogged counts one logged trace.
func (s *Session) RecordTraceLogged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracesLogged++
}

// Stats returns the session's write counters.
func (s *Session) Stats() (assessmentsWritten, tracesLogged int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assessmentsWritten, s.tracesLogged
}
