package socketio

import (
	"testing"
	"time"

	"github.com/tristanpoland/socketioxide/pkg/types"
	"github.com/tristanpoland/socketioxide/socketio/parser"
)

func TestRecoveryStatePersistAndRestore(t *testing.T) {
	r := newRecoveryState()

	r.Persist("pid-1", types.NewSet[Room]("lobby"), map[string]any{"name": "ana"})

	s, ok := r.Restore("pid-1", time.Minute)
	if !ok {
		t.Fatal("expected pid-1 to be restorable")
	}
	if !s.rooms.Has("lobby") {
		t.Fatalf("expected restored rooms to include lobby, got %v", s.rooms.Keys())
	}
	if data, _ := s.data.(map[string]any); data["name"] != "ana" {
		t.Fatalf("expected restored data to carry through, got %v", s.data)
	}

	if _, ok := r.Restore("pid-1", time.Minute); ok {
		t.Fatal("expected restore to consume the persisted session")
	}
}

func TestRecoveryStateRestoreExpired(t *testing.T) {
	r := newRecoveryState()
	r.Persist("pid-1", types.NewSet[Room](), nil)
	time.Sleep(5 * time.Millisecond)

	if _, ok := r.Restore("pid-1", time.Millisecond); ok {
		t.Fatal("expected an expired session to not be restorable")
	}
}

func TestRecoveryStateBufferForRooms(t *testing.T) {
	r := newRecoveryState()
	r.Persist("in-lobby", types.NewSet[Room]("lobby"), nil)
	r.Persist("in-other", types.NewSet[Room]("other"), nil)

	p := &parser.Packet{Type: parser.Event, Namespace: "/"}
	r.BufferForRooms(types.NewSet[Room]("lobby"), p, 10)

	s, ok := r.Restore("in-lobby", time.Minute)
	if !ok || len(s.packets) != 1 {
		t.Fatalf("expected in-lobby to have 1 buffered packet, got %+v ok=%v", s, ok)
	}

	s, ok = r.Restore("in-other", time.Minute)
	if !ok || len(s.packets) != 0 {
		t.Fatalf("expected in-other to have no buffered packets, got %+v", s)
	}
}

func TestRecoveryStateBufferRespectsMax(t *testing.T) {
	r := newRecoveryState()
	r.Persist("pid-1", types.NewSet[Room]("lobby"), nil)

	for i := 0; i < 5; i++ {
		r.BufferForRooms(types.NewSet[Room]("lobby"), &parser.Packet{}, 2)
	}

	s, ok := r.Restore("pid-1", time.Minute)
	if !ok || len(s.packets) != 2 {
		t.Fatalf("expected buffer capped at 2 packets, got %d", len(s.packets))
	}
}

func TestInMemoryAdapterRecoveryRoundTrip(t *testing.T) {
	a := NewInMemoryAdapter()

	a.PersistSession("pid-1", types.NewSet[Room]("lobby", "vip"), "saved-data")
	a.BufferMissedForRooms(types.NewSet[Room]("lobby"), &parser.Packet{Type: parser.Event}, 100)

	rooms, data, packets, ok := a.RestoreSession("pid-1", time.Minute)
	if !ok {
		t.Fatal("expected pid-1 to be restorable")
	}
	if rooms.Len() != 2 || !rooms.Has("vip") {
		t.Fatalf("expected restored rooms to include vip, got %v", rooms.Keys())
	}
	if data != "saved-data" {
		t.Fatalf("expected restored data %q, got %v", "saved-data", data)
	}
	if len(packets) != 1 {
		t.Fatalf("expected 1 buffered packet, got %d", len(packets))
	}
}

func TestNamespaceRecoveryDisabledByDefault(t *testing.T) {
	ns := newNamespace("/", nil)
	if opts := ns.recoveryOptions(); opts != nil {
		t.Fatalf("expected recovery to be disabled by default, got %+v", opts)
	}
}

func TestNamespaceEnableConnectionStateRecoveryDefaults(t *testing.T) {
	ns := newNamespace("/", nil)
	ns.EnableConnectionStateRecovery(nil)

	opts := ns.recoveryOptions()
	if opts == nil || !opts.Enabled {
		t.Fatal("expected recovery to be enabled after EnableConnectionStateRecovery(nil)")
	}
	if opts.MaxDisconnectAge != 2*time.Minute {
		t.Fatalf("expected default max disconnect age of 2m, got %v", opts.MaxDisconnectAge)
	}
}

func TestNamespaceEnableConnectionStateRecoveryCustom(t *testing.T) {
	ns := newNamespace("/", nil)
	ns.EnableConnectionStateRecovery(&RecoveryOptions{
		Enabled:            true,
		MaxDisconnectAge:   30 * time.Second,
		MaxBufferedPackets: 5,
	})

	opts := ns.recoveryOptions()
	if opts.MaxDisconnectAge != 30*time.Second || opts.MaxBufferedPackets != 5 {
		t.Fatalf("expected custom recovery options to stick, got %+v", opts)
	}
}

func TestPidFromAuth(t *testing.T) {
	if pid, ok := pidFromAuth(map[string]any{"pid": "abc"}); !ok || pid != "abc" {
		t.Fatalf("expected pid %q, got %q ok=%v", "abc", pid, ok)
	}
	if _, ok := pidFromAuth(map[string]any{"pid": ""}); ok {
		t.Fatal("expected an empty pid to not count as present")
	}
	if _, ok := pidFromAuth(map[string]any{}); ok {
		t.Fatal("expected a missing pid field to report not-ok")
	}
	if _, ok := pidFromAuth("not a map"); ok {
		t.Fatal("expected non-map auth data to report not-ok")
	}
	if _, ok := pidFromAuth(nil); ok {
		t.Fatal("expected nil auth data to report not-ok")
	}
}
