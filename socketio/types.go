// Package socketio implements the Socket.IO layer on top of an Engine.IO
// session: namespace multiplexing, the per-connection Socket handle,
// room-based broadcast through a pluggable Adapter, and the client object
// that reassembles Socket.IO packets from the raw Engine.IO byte stream.
package socketio

import "github.com/tristanpoland/socketioxide/socketio/parser"

// SocketID identifies one Socket.IO connection within a namespace. It is
// derived from, but distinct from, the underlying Engine.IO session id,
// since connection-state recovery can rotate it across reconnects.
type SocketID string

// Room is an adapter-local group name a socket can join or leave.
type Room string

// EventName is a Socket.IO event name as a host application emits/listens
// to it (distinct from engineio's internal EventName).
type EventName string

// Ack is called with the decoded reply arguments (and a nil err) once a
// client acknowledges a packet sent with an ack id. An ack that times out
// is dropped without being called.
type Ack func(args []any, err error)

// Handler is a host-registered event listener.
type Handler func(args ...any)

// ConnectError is returned from a namespace's connect middleware/callback
// to reject a handshake; Data is optional and forwarded to the client in
// the CONNECT_ERROR packet.
type ConnectError struct {
	Message string
	Data    any
}

func (e *ConnectError) Error() string { return e.Message }

// Middleware runs in order before a namespace's connect callback; calling
// next with a non-nil error aborts the connection with that error.
type Middleware func(socket *Socket, next func(error))

// newPacket is a small convenience constructor used across this package.
func newPacket(t parser.Type, namespace string, data any) *parser.Packet {
	return &parser.Packet{Type: t, Namespace: namespace, Data: data}
}
