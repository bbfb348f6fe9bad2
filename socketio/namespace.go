package socketio

import (
	"sync"
	"sync/atomic"

	"github.com/tristanpoland/socketioxide/pkg/log"
	"github.com/tristanpoland/socketioxide/pkg/types"
	"github.com/tristanpoland/socketioxide/socketio/parser"
)

var namespaceLog = log.NewLog("socketio:namespace")

// ConnectHandler is invoked once a socket has passed every middleware and
// is considered connected.
type ConnectHandler func(*Socket)

// Namespace multiplexes a set of connected Sockets under one path
// ("/" by default). Every namespace owns an Adapter instance for
// room-scoped broadcast.
type Namespace struct {
	name    string
	server  *Server
	adapter Adapter

	sockets types.Map[SocketID, *Socket]
	ackID   atomic.Uint64

	mwMu       sync.RWMutex
	middleware []Middleware
	onConnect  ConnectHandler

	recoveryMu   sync.RWMutex
	recoveryOpts *RecoveryOptions

	*types.EventEmitter
}

func newNamespace(name string, server *Server) *Namespace {
	ns := &Namespace{
		name:         name,
		server:       server,
		sockets:      *types.NewMap[SocketID, *Socket](),
		EventEmitter: types.NewEventEmitter(),
	}
	ns.adapter = NewInMemoryAdapter()
	return ns
}

// Name returns the namespace path, e.g. "/" or "/chat".
func (ns *Namespace) Name() string { return ns.name }

// Adapter returns this namespace's room/broadcast adapter.
func (ns *Namespace) Adapter() Adapter { return ns.adapter }

// Use appends middleware to the connection chain, run in registration
// order before OnConnect.
func (ns *Namespace) Use(mw Middleware) {
	ns.mwMu.Lock()
	defer ns.mwMu.Unlock()
	ns.middleware = append(ns.middleware, mw)
}

// OnConnect registers the callback run once a socket clears every
// middleware.
func (ns *Namespace) OnConnect(handler ConnectHandler) {
	ns.mwMu.Lock()
	defer ns.mwMu.Unlock()
	ns.onConnect = handler
}

func (ns *Namespace) nextAckID() uint64 { return ns.ackID.Add(1) - 1 }

// EnableConnectionStateRecovery turns on connection-state recovery for this
// namespace; a nil opts enables it with DefaultRecoveryOptions' timing. Off
// by default, matching spec.md §4.7's plain adapter behavior.
func (ns *Namespace) EnableConnectionStateRecovery(opts *RecoveryOptions) {
	if opts == nil {
		opts = DefaultRecoveryOptions()
		opts.Enabled = true
	}
	ns.recoveryMu.Lock()
	defer ns.recoveryMu.Unlock()
	ns.recoveryOpts = opts
}

func (ns *Namespace) recoveryOptions() *RecoveryOptions {
	ns.recoveryMu.RLock()
	defer ns.recoveryMu.RUnlock()
	return ns.recoveryOpts
}

// runMiddleware runs the registered chain in order, stopping at the first
// error, then fires OnConnect if every stage passed.
func (ns *Namespace) runMiddleware(sock *Socket, done func(error)) {
	ns.mwMu.RLock()
	chain := append([]Middleware(nil), ns.middleware...)
	onConnect := ns.onConnect
	ns.mwMu.RUnlock()

	var step func(i int)
	step = func(i int) {
		if i >= len(chain) {
			if onConnect != nil {
				onConnect(sock)
			}
			done(nil)
			return
		}
		chain[i](sock, func(err error) {
			if err != nil {
				done(err)
				return
			}
			step(i + 1)
		})
	}
	step(0)
}

func (ns *Namespace) addSocket(sock *Socket) {
	ns.sockets.Store(sock.ID(), sock)
	ns.adapter.AddAll(sock.id, types.NewSet(Room(sock.id)))
	ns.EventEmitter.Emit("connection", sock)
}

func (ns *Namespace) removeSocket(id SocketID) {
	ns.sockets.Delete(id)
	ns.adapter.DelAll(id)
}

// Sockets returns every currently connected socket in this namespace.
func (ns *Namespace) Sockets() []*Socket {
	out := make([]*Socket, 0, ns.sockets.Len())
	ns.sockets.Range(func(_ SocketID, s *Socket) bool {
		out = append(out, s)
		return true
	})
	return out
}

// To scopes a broadcast to one or more rooms.
func (ns *Namespace) To(rooms ...Room) *BroadcastOperator {
	return newBroadcastOperator(ns).To(rooms...)
}

// In is an alias for To, matching the Socket.IO server API's naming.
func (ns *Namespace) In(rooms ...Room) *BroadcastOperator {
	return ns.To(rooms...)
}

// Except scopes a broadcast away from one or more rooms.
func (ns *Namespace) Except(rooms ...Room) *BroadcastOperator {
	return newBroadcastOperator(ns).Except(rooms...)
}

// Emit broadcasts event/args to every socket in the namespace.
func (ns *Namespace) Emit(event EventName, args ...any) error {
	return newBroadcastOperator(ns).Emit(event, args...)
}

func (ns *Namespace) deliver(id SocketID, p *parser.Packet) {
	sock, ok := ns.sockets.Load(id)
	if !ok {
		return
	}
	sock.client.sendPacket(p)
}

func (ns *Namespace) registerAck(id SocketID, ackID uint64, ack Ack) {
	sock, ok := ns.sockets.Load(id)
	if !ok {
		return
	}
	sock.acks.Store(ackID, ack)
}
