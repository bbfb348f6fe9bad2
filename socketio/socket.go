package socketio

import (
	"context"
	"time"

	"github.com/tristanpoland/socketioxide/pkg/types"
	"github.com/tristanpoland/socketioxide/socketio/parser"
)

// Socket is one client's connection to one Namespace. It is the host
// application's primary handle: On registers event listeners, Emit
// sends events (optionally awaiting a single ack), Join/Leave manage room
// membership through the namespace's adapter.
type Socket struct {
	id        SocketID
	namespace *Namespace
	client    *Client
	Data      any

	// pid is the private session id connection-state recovery persists
	// room membership and replay data under; empty when recovery is
	// disabled for this namespace.
	pid string

	handlers types.Map[EventName, *types.Slice[Handler]]
	acks     types.Map[uint64, Ack]

	connected bool
}

func newSocket(id SocketID, ns *Namespace, client *Client) *Socket {
	return &Socket{
		id:        id,
		namespace: ns,
		client:    client,
		handlers:  *types.NewMap[EventName, *types.Slice[Handler]](),
		acks:      *types.NewMap[uint64, Ack](),
		connected: true,
	}
}

// ID returns the socket's id within its namespace.
func (s *Socket) ID() SocketID { return s.id }

// Namespace returns the namespace this socket belongs to.
func (s *Socket) Namespace() *Namespace { return s.namespace }

// Connected reports whether the socket has not yet disconnected.
func (s *Socket) Connected() bool { return s.connected }

// RemoteAddress returns the peer address of the underlying Engine.IO
// session.
func (s *Socket) RemoteAddress() string { return s.client.engineSocket.RemoteAddress() }

// On registers handler for event.
func (s *Socket) On(event EventName, handler Handler) {
	list, _ := s.handlers.LoadOrStore(event, types.NewSlice[Handler]())
	list.Push(handler)
}

func (s *Socket) dispatch(event EventName, args ...any) {
	if list, ok := s.handlers.Load(event); ok {
		for _, h := range list.All() {
			h(args...)
		}
	}
}

// Emit sends event to this socket's client with no ack expected.
func (s *Socket) Emit(event EventName, args ...any) error {
	if parser.ReservedEvents.Has(string(event)) {
		return ErrReservedEventName
	}
	data := append([]any{string(event)}, args...)
	p := newPacket(parser.Event, s.namespace.name, data)
	s.client.sendPacket(p)
	return nil
}

// EmitWithAck sends event and blocks until the client acknowledges it,
// ctx is cancelled, or timeout elapses.
func (s *Socket) EmitWithAck(ctx context.Context, timeout time.Duration, event EventName, args ...any) ([]any, error) {
	if parser.ReservedEvents.Has(string(event)) {
		return nil, ErrReservedEventName
	}
	ackID := s.namespace.nextAckID()
	data := append([]any{string(event)}, args...)
	p := newPacket(parser.Event, s.namespace.name, data)
	p.ID = &ackID

	type reply struct {
		args []any
		err  error
	}
	result := make(chan reply, 1)
	s.acks.Store(ackID, func(args []any, err error) {
		select {
		case result <- reply{args, err}:
		default:
		}
	})
	s.client.sendPacket(p)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-result:
		return r.args, r.err
	case <-timer.C:
		s.acks.Delete(ackID)
		return nil, ErrAckTimeout
	case <-ctx.Done():
		s.acks.Delete(ackID)
		return nil, ctx.Err()
	}
}

// Join adds this socket to one or more rooms.
func (s *Socket) Join(rooms ...Room) {
	set := types.NewSet(rooms...)
	s.namespace.adapter.AddAll(s.id, set)
}

// Leave removes this socket from a room.
func (s *Socket) Leave(room Room) {
	s.namespace.adapter.Del(s.id, room)
}

// Rooms returns every room this socket currently belongs to.
func (s *Socket) Rooms() []Room {
	if rooms, ok := s.namespace.adapter.SocketRooms(s.id); ok {
		return rooms.Keys()
	}
	return nil
}

// To scopes a broadcast (excluding this socket) to rooms.
func (s *Socket) To(rooms ...Room) *BroadcastOperator {
	return newBroadcastOperator(s.namespace).To(rooms...).Except(Room(s.id))
}

// Disconnect closes this socket; if closeUnderlyingConnection is true the
// entire Engine.IO session (and therefore every other namespace this
// client is connected to) is closed as well.
func (s *Socket) Disconnect(closeUnderlyingConnection bool) {
	if !s.connected {
		return
	}
	s.connected = false
	s.client.sendPacket(newPacket(parser.Disconnect, s.namespace.name, nil))
	s.namespace.removeSocket(s.id)
	s.namespace.EventEmitter.Emit("disconnect", s)
	if closeUnderlyingConnection {
		s.client.close()
	}
}
