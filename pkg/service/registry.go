package service

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/actuator-relay/relay-go/pkg/transport"
)

// Session is one accepted client connection. It is owned by the Registry
// from Add until Remove.
type Session struct {
	// ID is the connection identifier used in logs.
	ID string

	// RemoteAddr is the peer address.
	RemoteAddr string

	// AcceptedAt is when the session was registered.
	AcceptedAt time.Time

	conn   transport.ServerConnection
	seq    uint64 // accept order, assigned by Add
	state  atomic.Uint32
	frames atomic.Uint64
	last   atomic.Int64 // unix nanos of last frame
}

// NewSession creates a session for an upgraded connection.
func NewSession(conn transport.ServerConnection) *Session {
	s := &Session{
		ID:         conn.ID(),
		AcceptedAt: time.Now(),
		conn:       conn,
	}
	if addr := conn.RemoteAddr(); addr != nil {
		s.RemoteAddr = addr.String()
	}
	s.last.Store(s.AcceptedAt.UnixNano())
	return s
}

// State returns the current handler state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) SessionState {
	return SessionState(s.state.Swap(uint32(state)))
}

func (s *Session) touch() uint64 {
	s.last.Store(time.Now().UnixNano())
	return s.frames.Add(1)
}

// SessionInfo is a point-in-time copy of a session's bookkeeping.
type SessionInfo struct {
	ID           string
	RemoteAddr   string
	AcceptedAt   time.Time
	LastActivity time.Time
	Frames       uint64
	State        SessionState
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:           s.ID,
		RemoteAddr:   s.RemoteAddr,
		AcceptedAt:   s.AcceptedAt,
		LastActivity: time.Unix(0, s.last.Load()),
		Frames:       s.frames.Load(),
		State:        s.State(),
	}
}

// Registry tracks live sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	nextSeq  uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[*Session]struct{}),
	}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	s.seq = r.nextSeq
	r.sessions[s] = struct{}{}
}

// Remove deregisters a session. It returns false if the session was not
// registered, which happens when CloseAll got to it first.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s]; !ok {
		return false
	}
	delete(r.sessions, s)
	return true
}

// Snapshot returns the registered sessions in accept order.
func (r *Registry) Snapshot() []SessionInfo {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]SessionInfo, len(sessions))
	for i, s := range sessions {
		out[i] = s.info()
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// InterruptAll unblocks every session waiting for a frame. Sessions in
// the middle of a command finish it first. Returns the number of
// sessions interrupted.
func (r *Registry) InterruptAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for s := range r.sessions {
		_ = s.conn.Interrupt()
	}
	return len(r.sessions)
}

// CloseAll closes and removes all registered sessions.
// Returns the number of sessions closed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	for s := range r.sessions {
		_ = s.conn.Close()
		delete(r.sessions, s)
		closed++
	}
	return closed
}
