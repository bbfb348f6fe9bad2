package socketio

import (
	"context"
	"time"

	"github.com/tristanpoland/socketioxide/pkg/types"
	"github.com/tristanpoland/socketioxide/socketio/parser"
)

// BroadcastOperator is a fluent, immutable room/flag filter built by
// Namespace.To/In/Except and Socket.To; each call returns a new
// operator rather than mutating the receiver, so a partially-built filter
// can be reused safely.
type BroadcastOperator struct {
	ns      *Namespace
	rooms   *types.Set[Room]
	except  *types.Set[Room]
	flags   BroadcastFlags
	timeout time.Duration
}

func newBroadcastOperator(ns *Namespace) *BroadcastOperator {
	return &BroadcastOperator{
		ns:     ns,
		rooms:  types.NewSet[Room](),
		except: types.NewSet[Room](),
	}
}

func (b *BroadcastOperator) clone() *BroadcastOperator {
	return &BroadcastOperator{
		ns:      b.ns,
		rooms:   types.NewSet(b.rooms.Keys()...),
		except:  types.NewSet(b.except.Keys()...),
		flags:   b.flags,
		timeout: b.timeout,
	}
}

// To restricts delivery to sockets in any of rooms.
func (b *BroadcastOperator) To(rooms ...Room) *BroadcastOperator {
	c := b.clone()
	c.rooms.Add(rooms...)
	return c
}

// In is an alias for To.
func (b *BroadcastOperator) In(rooms ...Room) *BroadcastOperator { return b.To(rooms...) }

// Except excludes sockets in any of rooms.
func (b *BroadcastOperator) Except(rooms ...Room) *BroadcastOperator {
	c := b.clone()
	c.except.Add(rooms...)
	return c
}

// Volatile sets the Volatile broadcast flag. InMemoryAdapter does not read
// it; packets are delivered the same way with or without it.
func (b *BroadcastOperator) Volatile() *BroadcastOperator {
	c := b.clone()
	c.flags.Volatile = true
	return c
}

// Compress sets the Compress broadcast flag. InMemoryAdapter does not read
// it; delivered packets carry no compression hint.
func (b *BroadcastOperator) Compress(compress bool) *BroadcastOperator {
	c := b.clone()
	c.flags.Compress = compress
	return c
}

// Timeout sets how long BroadcastWithAck waits for stragglers.
func (b *BroadcastOperator) Timeout(d time.Duration) *BroadcastOperator {
	c := b.clone()
	c.timeout = d
	return c
}

func (b *BroadcastOperator) options() *BroadcastOptions {
	return &BroadcastOptions{Rooms: b.rooms, Except: b.except, Flags: &b.flags}
}

// Emit broadcasts event/args to every matching socket; reserved event
// names are rejected, matching the single-socket Socket.Emit behavior.
func (b *BroadcastOperator) Emit(event EventName, args ...any) error {
	if parser.ReservedEvents.Has(string(event)) {
		return ErrReservedEventName
	}
	data := append([]any{string(event)}, args...)
	p := newPacket(parser.Event, b.ns.name, data)
	b.ns.adapter.Broadcast(p, b.options(), b.ns.deliver)

	if recOpts := b.ns.recoveryOptions(); recOpts != nil && recOpts.Enabled && b.rooms.Len() > 0 {
		b.ns.adapter.BufferMissedForRooms(b.rooms, p, recOpts.MaxBufferedPackets)
	}
	return nil
}

// EmitWithAck broadcasts event/args and streams one AckResult per
// acknowledging socket on the returned channel, which closes once every
// matching socket has replied or Timeout has elapsed.
func (b *BroadcastOperator) EmitWithAck(ctx context.Context, event EventName, args ...any) (<-chan AckResult, error) {
	if parser.ReservedEvents.Has(string(event)) {
		return nil, ErrReservedEventName
	}
	data := append([]any{string(event)}, args...)
	ackID := b.ns.nextAckID()
	p := newPacket(parser.Event, b.ns.name, data)
	p.ID = &ackID

	timeout := b.timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	register := func(id SocketID, ack Ack) {
		b.ns.registerAck(id, ackID, ack)
	}
	results := b.ns.adapter.BroadcastWithAck(ctx, p, b.options(), timeout, register, b.ns.deliver)
	return results, nil
}
