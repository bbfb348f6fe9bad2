package engineio

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tristanpoland/socketioxide/engineio/packet"
	"github.com/tristanpoland/socketioxide/engineio/transport"
)

func TestSocketOpenSendsHandshakeAndStartsHeartbeat(t *testing.T) {
	tr := transport.NewPolling(context.Background(), 4, true, 1_000_000)
	srv := NewServer(nil)
	sock := newSocket("abc", srv, "1.2.3.4", 4, tr)

	var opened *packet.Packet
	tr.Events().On("packet", func(args ...any) {}) // transport side doesn't see its own sends

	sock.On("open", func(args ...any) {})

	queued := make(chan *packet.Packet, 1)
	sock.On("packetCreate", func(args ...any) {
		if p, ok := args[0].(*packet.Packet); ok {
			queued <- p
		}
	})

	if err := sock.open(10*time.Millisecond, 10*time.Millisecond, []string{"websocket"}, 1_000_000); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	select {
	case opened = <-queued:
	case <-time.After(time.Second):
		t.Fatal("expected an OPEN packet to be queued")
	}

	if opened.Type != packet.OPEN {
		t.Fatalf("expected OPEN packet, got %v", opened.Type)
	}
	var handshake map[string]any
	if err := json.Unmarshal(opened.Data, &handshake); err != nil {
		t.Fatalf("handshake payload did not decode as JSON: %v", err)
	}
	if handshake["sid"] != "abc" {
		t.Fatalf("expected sid in handshake, got %v", handshake["sid"])
	}

	if sock.ReadyState() != StateOpen {
		t.Fatalf("expected session to be open, got %v", sock.ReadyState())
	}

	select {
	case ping := <-queued:
		if ping.Type != packet.PING {
			t.Fatalf("expected the heartbeat to queue a PING, got %v", ping.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the heartbeat to queue a PING after pingInterval")
	}
}

func TestSocketPingTimeoutClosesSession(t *testing.T) {
	tr := transport.NewPolling(context.Background(), 4, true, 1_000_000)
	srv := NewServer(nil)
	sock := newSocket("abc", srv, "1.2.3.4", 4, tr)

	closed := make(chan CloseReason, 1)
	sock.On("close", func(args ...any) {
		if reason, ok := args[0].(CloseReason); ok {
			closed <- reason
		}
	})

	if err := sock.open(5*time.Millisecond, 5*time.Millisecond, nil, 1_000_000); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	select {
	case reason := <-closed:
		if reason != ReasonPingTimeout {
			t.Fatalf("expected ping timeout close, got %v", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the session to close after a missed heartbeat")
	}

	if sock.ReadyState() != StateClosed {
		t.Fatalf("expected closed state, got %v", sock.ReadyState())
	}
}

func TestSocketSendRejectedWhenNotOpen(t *testing.T) {
	tr := transport.NewPolling(context.Background(), 4, true, 1_000_000)
	srv := NewServer(nil)
	sock := newSocket("abc", srv, "1.2.3.4", 4, tr)

	if err := sock.Send([]byte("hi"), false, nil); err != ErrSessionClosed {
		t.Fatalf("expected ErrSessionClosed before the session opens, got %v", err)
	}
}

func TestSocketForcedCloseIsIdempotent(t *testing.T) {
	tr := transport.NewPolling(context.Background(), 4, true, 1_000_000)
	srv := NewServer(nil)
	sock := newSocket("abc", srv, "1.2.3.4", 4, tr)

	closeCount := 0
	sock.On("close", func(args ...any) { closeCount++ })

	sock.Close(ReasonForcedClose)
	sock.Close(ReasonForcedClose)

	if closeCount != 1 {
		t.Fatalf("expected exactly one close event, got %d", closeCount)
	}
	if sock.CloseReason() != ReasonForcedClose {
		t.Fatalf("expected forced close reason recorded, got %v", sock.CloseReason())
	}
}

func TestOnErrorMapsOverlappingPollToMultipleHTTPPollingError(t *testing.T) {
	tr := transport.NewPolling(context.Background(), 4, true, 1_000_000)
	srv := NewServer(nil)
	sock := newSocket("abc", srv, "1.2.3.4", 4, tr)
	if err := sock.open(time.Hour, time.Hour, nil, 1_000_000); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	closed := make(chan CloseReason, 1)
	sock.On("close", func(args ...any) {
		if reason, ok := args[0].(CloseReason); ok {
			closed <- reason
		}
	})

	tr.Events().Emit("error", transport.ReasonOverlappingPoll, nil)

	select {
	case reason := <-closed:
		if reason != ReasonMultipleHTTPPollingError {
			t.Fatalf("expected %v, got %v", ReasonMultipleHTTPPollingError, reason)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the overlapping poll reason to close the session")
	}
}

func TestMaybeUpgradeTimesOutAndClosesProbeTransport(t *testing.T) {
	tr := transport.NewPolling(context.Background(), 4, true, 1_000_000)
	srv := NewServer(nil)
	sock := newSocket("abc", srv, "1.2.3.4", 4, tr)
	if err := sock.open(time.Hour, time.Hour, []string{"websocket"}, 1_000_000); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	probe := transport.NewPolling(context.Background(), 4, true, 1_000_000)
	sock.maybeUpgrade(probe, 5*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for sock.upgrading.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sock.upgrading.Load() {
		t.Fatal("expected upgrading to be cleared once the upgrade timeout fired")
	}
	if probe.ReadyState() == transport.ReadyStateOpen {
		t.Fatal("expected the probing transport to be closed on upgrade timeout")
	}
}

func TestMaybeUpgradeProbeSuccessCancelsTimeout(t *testing.T) {
	tr := transport.NewPolling(context.Background(), 4, true, 1_000_000)
	srv := NewServer(nil)
	sock := newSocket("abc", srv, "1.2.3.4", 4, tr)
	if err := sock.open(time.Hour, time.Hour, []string{"websocket"}, 1_000_000); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	probe := transport.NewPolling(context.Background(), 4, true, 1_000_000)

	upgraded := make(chan struct{})
	sock.On("upgrade", func(args ...any) { close(upgraded) })

	sock.maybeUpgrade(probe, 20*time.Millisecond)
	probe.Events().Emit("packet", packet.New(packet.PING, []byte("probe")))
	probe.Events().Emit("packet", packet.New(packet.UPGRADE, nil))

	select {
	case <-upgraded:
	case <-time.After(time.Second):
		t.Fatal("expected the upgrade to complete")
	}

	time.Sleep(40 * time.Millisecond)
	if sock.upgrading.Load() {
		t.Fatal("expected upgrading to be cleared after a successful upgrade")
	}
	if !sock.upgraded.Load() {
		t.Fatal("expected upgraded to be set")
	}
}

func TestSendPacketClosesSessionWhenQueueExceedsMaxBufferSize(t *testing.T) {
	tr := transport.NewPolling(context.Background(), 4, true, 1_000_000)
	srv := NewServer(&ServerOptions{MaxBufferSize: 150})
	sock := newSocket("abc", srv, "1.2.3.4", 4, tr)
	// The OPEN handshake payload itself counts toward the buffer (the GET
	// that would flush it is never parked in this test), so the cap must
	// clear that first before the test payload pushes it over.
	if err := sock.open(time.Hour, time.Hour, nil, 1_000_000); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	closed := make(chan CloseReason, 1)
	sock.On("close", func(args ...any) {
		if reason, ok := args[0].(CloseReason); ok {
			closed <- reason
		}
	})

	oversized := []byte(strings.Repeat("x", 200))
	if err := sock.Send(oversized, false, nil); err == nil {
		t.Fatal("expected Send to report the session closing once the buffer cap is exceeded")
	}

	select {
	case reason := <-closed:
		if reason != ReasonTransportError {
			t.Fatalf("expected transport error close reason, got %v", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the session to close once max_buffer_size was exceeded")
	}
}
