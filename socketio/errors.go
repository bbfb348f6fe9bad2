package socketio

import "errors"

var (
	ErrReservedEventName = errors.New("event name is reserved")
	ErrAckTimeout         = errors.New("ack timeout")
	ErrUnknownNamespace   = errors.New("unknown namespace")
	ErrSocketDisconnected = errors.New("socket is disconnected")
)
