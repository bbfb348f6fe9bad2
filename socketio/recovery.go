package socketio

import (
	"sync"
	"time"

	"github.com/tristanpoland/socketioxide/pkg/types"
	"github.com/tristanpoland/socketioxide/socketio/parser"
)

// RecoveryOptions enables connection-state recovery: a reconnecting client
// presenting a known private session id is restored into its prior rooms
// and replayed any packets broadcast while it was disconnected, rather
// than starting over as a brand-new connection. Off by default.
type RecoveryOptions struct {
	Enabled         bool
	MaxDisconnectAge time.Duration
	MaxBufferedPackets int
}

// DefaultRecoveryOptions matches the teacher's connection-state-recovery
// defaults.
func DefaultRecoveryOptions() *RecoveryOptions {
	return &RecoveryOptions{
		Enabled:            false,
		MaxDisconnectAge:   2 * time.Minute,
		MaxBufferedPackets: 100,
	}
}

type persistedSession struct {
	rooms       *types.Set[Room]
	data        any
	packets     []*parser.Packet
	disconnectedAt time.Time
}

// recoveryState holds the bounded, time-limited buffer of departed
// sockets' room memberships and missed packets, keyed by private session
// id ("pid"). It is a pure in-memory map with no cluster fan-out, matching
// InMemoryAdapter's scope.
type recoveryState struct {
	mu       sync.Mutex
	sessions map[string]*persistedSession
}

func newRecoveryState() recoveryState {
	return recoveryState{sessions: make(map[string]*persistedSession)}
}

// Persist records a socket's state under pid for later restoration.
func (r *recoveryState) Persist(pid string, rooms *types.Set[Room], data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[pid] = &persistedSession{rooms: rooms, data: data, disconnectedAt: time.Now()}
}

// Buffer appends a missed packet to pid's replay buffer, dropping the
// oldest once MaxBufferedPackets is exceeded.
func (r *recoveryState) Buffer(pid string, p *parser.Packet, max int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[pid]
	if !ok {
		return
	}
	s.packets = append(s.packets, p)
	if len(s.packets) > max {
		s.packets = s.packets[len(s.packets)-max:]
	}
}

// Restore returns and deletes pid's persisted state if it is still within
// maxAge, or ok=false if it was never persisted or has expired.
func (r *recoveryState) Restore(pid string, maxAge time.Duration) (session *persistedSession, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, found := r.sessions[pid]
	if !found {
		return nil, false
	}
	delete(r.sessions, pid)
	if time.Since(s.disconnectedAt) > maxAge {
		return nil, false
	}
	return s, true
}

// BufferForRooms appends p to the replay buffer of every currently
// persisted session whose rooms intersect rooms — used so a broadcast
// made while a recoverable socket is disconnected is not lost.
func (r *recoveryState) BufferForRooms(rooms *types.Set[Room], p *parser.Packet, max int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		hit := false
		for _, room := range rooms.Keys() {
			if s.rooms != nil && s.rooms.Has(room) {
				hit = true
				break
			}
		}
		if hit {
			s.packets = append(s.packets, p)
			if len(s.packets) > max {
				s.packets = s.packets[len(s.packets)-max:]
			}
		}
	}
}
