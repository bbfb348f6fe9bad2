package socketio

import (
	"context"
	"testing"
	"time"

	"github.com/tristanpoland/socketioxide/pkg/types"
	"github.com/tristanpoland/socketioxide/socketio/parser"
)

func TestInMemoryAdapterJoinLeave(t *testing.T) {
	a := NewInMemoryAdapter()

	a.AddAll("s1", types.NewSet[Room]("lobby", "vip"))
	a.AddAll("s2", types.NewSet[Room]("lobby"))

	rooms, ok := a.SocketRooms("s1")
	if !ok || rooms.Len() != 2 {
		t.Fatalf("expected s1 in 2 rooms, got %v ok=%v", rooms, ok)
	}

	members, ok := a.Rooms().Load("lobby")
	if !ok || members.Len() != 2 {
		t.Fatalf("expected 2 members in lobby, got %v", members)
	}

	a.Del("s1", "vip")
	if _, ok := a.Rooms().Load("vip"); ok {
		t.Fatal("expected vip room to be deleted once empty")
	}

	a.DelAll("s2")
	if _, ok := a.SocketRooms("s2"); ok {
		t.Fatal("expected s2 to have no rooms after DelAll")
	}
	members, _ = a.Rooms().Load("lobby")
	if members.Len() != 1 {
		t.Fatalf("expected lobby to have 1 member left, got %d", members.Len())
	}
}

func TestInMemoryAdapterBroadcastMatching(t *testing.T) {
	a := NewInMemoryAdapter()
	a.AddAll("s1", types.NewSet[Room]("lobby"))
	a.AddAll("s2", types.NewSet[Room]("lobby"))
	a.AddAll("s3", types.NewSet[Room]("other"))

	delivered := map[SocketID]bool{}
	opts := &BroadcastOptions{
		Rooms:  types.NewSet[Room]("lobby"),
		Except: types.NewSet[Room](),
		Flags:  &BroadcastFlags{},
	}
	a.Broadcast(&parser.Packet{}, opts, func(id SocketID, p *parser.Packet) {
		delivered[id] = true
	})

	if len(delivered) != 2 || !delivered["s1"] || !delivered["s2"] {
		t.Fatalf("expected s1,s2 delivered, got %v", delivered)
	}
	if delivered["s3"] {
		t.Fatal("s3 should not have received the lobby broadcast")
	}
}

func TestInMemoryAdapterBroadcastWithAck(t *testing.T) {
	a := NewInMemoryAdapter()
	a.AddAll("s1", types.NewSet[Room]("lobby"))
	a.AddAll("s2", types.NewSet[Room]("lobby"))

	opts := &BroadcastOptions{Rooms: types.NewSet[Room]("lobby"), Except: types.NewSet[Room]()}

	var acks []func(args []any, err error)
	register := func(id SocketID, ack Ack) {
		acks = append(acks, ack)
	}
	deliver := func(id SocketID, p *parser.Packet) {}

	ctx := context.Background()
	results := a.BroadcastWithAck(ctx, &parser.Packet{}, opts, time.Second, register, deliver)

	for _, ack := range acks {
		ack([]any{"ok"}, nil)
	}

	count := 0
	for range results {
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 ack results, got %d", count)
	}
}

func TestInMemoryAdapterBroadcastWithAckTimeout(t *testing.T) {
	a := NewInMemoryAdapter()
	a.AddAll("s1", types.NewSet[Room]("lobby"))

	opts := &BroadcastOptions{Rooms: types.NewSet[Room]("lobby"), Except: types.NewSet[Room]()}
	results := a.BroadcastWithAck(context.Background(), &parser.Packet{}, opts, 10*time.Millisecond,
		func(SocketID, Ack) {}, func(SocketID, *parser.Packet) {})

	count := 0
	for range results {
		count++
	}
	if count != 0 {
		t.Fatalf("expected no acks before timeout, got %d", count)
	}
}
