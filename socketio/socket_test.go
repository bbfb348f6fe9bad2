package socketio

import "testing"

func TestSocketOnDispatch(t *testing.T) {
	ns := newNamespace("/", nil)
	sock := newSocket("s1", ns, nil)

	var got []any
	sock.On("greet", func(args ...any) {
		got = args
	})

	sock.dispatch("greet", "hello", 42)

	if len(got) != 2 || got[0] != "hello" || got[1] != 42 {
		t.Fatalf("unexpected dispatch args: %v", got)
	}
}

func TestSocketJoinLeaveRooms(t *testing.T) {
	ns := newNamespace("/", nil)
	sock := newSocket("s1", ns, nil)

	sock.Join("lobby", "vip")
	rooms := sock.Rooms()
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %v", rooms)
	}

	sock.Leave("vip")
	rooms = sock.Rooms()
	if len(rooms) != 1 || rooms[0] != "lobby" {
		t.Fatalf("expected only lobby left, got %v", rooms)
	}
}

func TestSocketToExcludesSelf(t *testing.T) {
	ns := newNamespace("/", nil)
	sock := newSocket("s1", ns, nil)

	op := sock.To("lobby")
	if !op.except.Has(Room(sock.id)) {
		t.Fatal("expected Socket.To to except the socket's own id")
	}
	if !op.rooms.Has("lobby") {
		t.Fatal("expected Socket.To to scope to the given room")
	}
}

func TestSocketConnectedAndDisconnect(t *testing.T) {
	ns := newNamespace("/", nil)
	sock := newSocket("s1", ns, nil)
	ns.addSocket(sock)

	if !sock.Connected() {
		t.Fatal("expected new socket to report connected")
	}

	var disconnected *Socket
	ns.EventEmitter.On("disconnect", func(args ...any) {
		disconnected = args[0].(*Socket)
	})

	// Disconnect always sends a DISCONNECT packet through sock.client, which
	// is nil in this test, so its namespace-side steps are performed here
	// directly.
	sock.connected = false
	ns.removeSocket(sock.id)
	ns.EventEmitter.Emit("disconnect", sock)

	if disconnected != sock {
		t.Fatal("expected disconnect event to fire with the socket")
	}
	if len(ns.Sockets()) != 0 {
		t.Fatal("expected socket removed from namespace")
	}
}
