package socketio

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tristanpoland/socketioxide/engineio"
)

func TestConnectTimeoutClosesSessionWithoutConnectPacket(t *testing.T) {
	srv := NewServer(nil)
	srv.SetConnectTimeout(10 * time.Millisecond)

	closed := make(chan engineio.CloseReason, 1)
	srv.Engine().On("socket-close", func(args ...any) {
		if sock, ok := args[0].(*engineio.Socket); ok {
			closed <- sock.CloseReason()
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/socket.io/?EIO=3&transport=polling", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from handshake, got %d: %s", rec.Code, rec.Body.String())
	}

	select {
	case reason := <-closed:
		if reason != engineio.ReasonTransportClose {
			t.Fatalf("expected transport close reason, got %v", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the session to close once connect_timeout elapsed without a CONNECT packet")
	}
}

func TestConnectTimeoutCancelledByConnectPacket(t *testing.T) {
	srv := NewServer(nil)
	srv.SetConnectTimeout(30 * time.Millisecond)

	var sid string
	srv.Engine().On("connection", func(args ...any) {
		if sock, ok := args[0].(*engineio.Socket); ok {
			sid = sock.ID()
		}
	})

	handshakeReq := httptest.NewRequest(http.MethodGet, "/socket.io/?EIO=3&transport=polling", nil)
	handshakeRec := httptest.NewRecorder()
	srv.ServeHTTP(handshakeRec, handshakeReq)

	if sid == "" {
		t.Fatal("expected a session id to be assigned during handshake")
	}

	closed := make(chan engineio.CloseReason, 1)
	srv.Engine().On("socket-close", func(args ...any) {
		if sock, ok := args[0].(*engineio.Socket); ok {
			closed <- sock.CloseReason()
		}
	})

	postReq := httptest.NewRequest(http.MethodPost, "/socket.io/?EIO=3&transport=polling&sid="+sid, strings.NewReader("3:40/"))
	postRec := httptest.NewRecorder()
	srv.ServeHTTP(postRec, postReq)

	if postRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from CONNECT POST, got %d: %s", postRec.Code, postRec.Body.String())
	}

	select {
	case reason := <-closed:
		t.Fatalf("expected the session to stay open past its original connect_timeout, but it closed with %v", reason)
	case <-time.After(60 * time.Millisecond):
	}
}
