package socketio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tristanpoland/socketioxide/pkg/log"
	"github.com/tristanpoland/socketioxide/pkg/types"
	"github.com/tristanpoland/socketioxide/socketio/parser"
)

var adapterLog = log.NewLog("socketio:adapter")

// BroadcastFlags modifies how Broadcast/BroadcastWithAck delivers a packet.
type BroadcastFlags struct {
	Volatile bool
	Compress bool
}

// BroadcastOptions selects which sockets a broadcast reaches.
type BroadcastOptions struct {
	Rooms   *types.Set[Room]
	Except  *types.Set[Room]
	Flags   *BroadcastFlags
}

// AckResult is one reply in the stream BroadcastWithAck returns.
type AckResult struct {
	SocketID SocketID
	Args     []any
	Err      error
}

// Adapter fans a packet out to every socket matching a broadcast's room
// filter and tracks room membership. InMemoryAdapter is the only
// implementation this module carries; a clustered adapter would satisfy
// the same interface but is out of scope (see DESIGN.md).
type Adapter interface {
	Rooms() *types.Map[Room, *types.Set[SocketID]]
	Sids() *types.Map[SocketID, *types.Set[Room]]

	AddAll(id SocketID, rooms *types.Set[Room])
	Del(id SocketID, room Room)
	DelAll(id SocketID)

	Broadcast(p *parser.Packet, opts *BroadcastOptions, deliver func(SocketID, *parser.Packet))
	BroadcastWithAck(ctx context.Context, p *parser.Packet, opts *BroadcastOptions, timeout time.Duration, register func(SocketID, Ack), deliver func(SocketID, *parser.Packet)) <-chan AckResult

	SocketRooms(id SocketID) (*types.Set[Room], bool)

	// PersistSession, RestoreSession, and BufferMissedForRooms back
	// connection-state recovery (see recovery.go); a no-op on an adapter
	// that doesn't support it.
	PersistSession(pid string, rooms *types.Set[Room], data any)
	RestoreSession(pid string, maxAge time.Duration) (rooms *types.Set[Room], data any, packets []*parser.Packet, ok bool)
	BufferMissedForRooms(rooms *types.Set[Room], p *parser.Packet, max int)
}

// InMemoryAdapter is the default, single-process Adapter: room membership
// lives entirely in two mutex-guarded maps with no cross-process fan-out.
type InMemoryAdapter struct {
	rooms types.Map[Room, *types.Set[SocketID]]
	sids  types.Map[SocketID, *types.Set[Room]]

	recovery recoveryState
}

// NewInMemoryAdapter creates an empty InMemoryAdapter.
func NewInMemoryAdapter() *InMemoryAdapter {
	a := &InMemoryAdapter{
		rooms: *types.NewMap[Room, *types.Set[SocketID]](),
		sids:  *types.NewMap[SocketID, *types.Set[Room]](),
	}
	a.recovery = newRecoveryState()
	return a
}

func (a *InMemoryAdapter) Rooms() *types.Map[Room, *types.Set[SocketID]] { return &a.rooms }
func (a *InMemoryAdapter) Sids() *types.Map[SocketID, *types.Set[Room]] { return &a.sids }

func (a *InMemoryAdapter) SocketRooms(id SocketID) (*types.Set[Room], bool) {
	return a.sids.Load(id)
}

// PersistSession records a departing socket's rooms and data under pid so a
// reconnecting client presenting the same pid can be restored.
func (a *InMemoryAdapter) PersistSession(pid string, rooms *types.Set[Room], data any) {
	a.recovery.Persist(pid, rooms, data)
}

// RestoreSession returns the rooms, data, and buffered missed packets
// persisted under pid, if any remain within maxAge.
func (a *InMemoryAdapter) RestoreSession(pid string, maxAge time.Duration) (*types.Set[Room], any, []*parser.Packet, bool) {
	s, ok := a.recovery.Restore(pid, maxAge)
	if !ok {
		return nil, nil, nil, false
	}
	return s.rooms, s.data, s.packets, true
}

// BufferMissedForRooms appends p to the replay buffer of every persisted
// session whose rooms intersect rooms.
func (a *InMemoryAdapter) BufferMissedForRooms(rooms *types.Set[Room], p *parser.Packet, max int) {
	a.recovery.BufferForRooms(rooms, p, max)
}

// AddAll joins id to every room in rooms, creating rooms that don't exist.
func (a *InMemoryAdapter) AddAll(id SocketID, rooms *types.Set[Room]) {
	joined, _ := a.sids.LoadOrStore(id, types.NewSet[Room]())
	for _, room := range rooms.Keys() {
		joined.Add(room)
		members, existed := a.rooms.LoadOrStore(room, types.NewSet[SocketID]())
		if !existed {
			adapterLog.Debugf("room %s created", room)
		}
		members.Add(id)
	}
}

func (a *InMemoryAdapter) Del(id SocketID, room Room) {
	if rooms, ok := a.sids.Load(id); ok {
		rooms.Delete(room)
	}
	a.removeFromRoom(room, id)
}

func (a *InMemoryAdapter) removeFromRoom(room Room, id SocketID) {
	members, ok := a.rooms.Load(room)
	if !ok {
		return
	}
	members.Delete(id)
	if members.Len() == 0 {
		a.rooms.Delete(room)
		adapterLog.Debugf("room %s deleted (empty)", room)
	}
}

func (a *InMemoryAdapter) DelAll(id SocketID) {
	if rooms, ok := a.sids.LoadAndDelete(id); ok {
		for _, room := range rooms.Keys() {
			a.removeFromRoom(room, id)
		}
	}
}

// matching returns the set of socket ids that satisfy opts' room filter:
// every socket if Rooms is empty, otherwise the union of each named room's
// members, minus anything in Except.
func (a *InMemoryAdapter) matching(opts *BroadcastOptions) []SocketID {
	except := types.NewSet[SocketID]()
	if opts != nil && opts.Except != nil {
		for _, room := range opts.Except.Keys() {
			if members, ok := a.rooms.Load(room); ok {
				except.Add(members.Keys()...)
			}
		}
	}

	if opts == nil || opts.Rooms == nil || opts.Rooms.Len() == 0 {
		ids := make([]SocketID, 0, a.sids.Len())
		for _, id := range a.sids.Keys() {
			if !except.Has(id) {
				ids = append(ids, id)
			}
		}
		return ids
	}

	seen := types.NewSet[SocketID]()
	var ids []SocketID
	for _, room := range opts.Rooms.Keys() {
		members, ok := a.rooms.Load(room)
		if !ok {
			continue
		}
		for _, id := range members.Keys() {
			if except.Has(id) || seen.Has(id) {
				continue
			}
			seen.Add(id)
			ids = append(ids, id)
		}
	}
	return ids
}

// Broadcast calls deliver once per matching socket, synchronously.
func (a *InMemoryAdapter) Broadcast(p *parser.Packet, opts *BroadcastOptions, deliver func(SocketID, *parser.Packet)) {
	for _, id := range a.matching(opts) {
		deliver(id, p)
	}
}

// BroadcastWithAck delivers p to every matching socket, registers an ack
// callback per recipient via register, and streams each reply on the
// returned channel, which closes once every expected ack has arrived,
// timeout elapses, or ctx is done. Sockets that have not replied by then
// produce no result, and their later replies are dropped.
func (a *InMemoryAdapter) BroadcastWithAck(ctx context.Context, p *parser.Packet, opts *BroadcastOptions, timeout time.Duration, register func(SocketID, Ack), deliver func(SocketID, *parser.Packet)) <-chan AckResult {
	recipients := a.matching(opts)
	results := make(chan AckResult, len(recipients))

	var remaining atomic.Int64
	remaining.Store(int64(len(recipients)))
	if len(recipients) == 0 {
		close(results)
		return results
	}

	done := make(chan struct{})
	deadline := time.After(timeout)
	if timeout <= 0 {
		deadline = nil
	}

	// finished is set under mu when results closes, so late acks are dropped.
	var mu sync.Mutex
	finished := false

	go func() {
		defer func() { mu.Lock(); finished = true; close(results); mu.Unlock() }()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-deadline:
				return
			}
		}
	}()

	for _, id := range recipients {
		id := id
		register(id, func(args []any, err error) {
			mu.Lock()
			defer mu.Unlock()
			if finished {
				return
			}
			select {
			case results <- AckResult{SocketID: id, Args: args, Err: err}:
			case <-ctx.Done():
				return
			}
			if remaining.Add(-1) == 0 {
				close(done)
			}
		})
		deliver(id, p)
	}

	return results
}
