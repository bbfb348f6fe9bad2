package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tristanpoland/socketioxide/engineio/packet"
)

func TestPollingWritableTracksPendingGet(t *testing.T) {
	p := NewPolling(context.Background(), 4, true, 1_000_000)

	if p.Writable() {
		t.Fatal("expected polling to be unwritable before any GET is held open")
	}

	req := httptest.NewRequest(http.MethodGet, "/engine.io/", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		p.OnRequest(rec, req)
		close(done)
	}()

	waitUntil(t, func() bool { return p.Writable() })

	if err := p.Send([]*packet.Packet{packet.New(packet.MESSAGE, []byte("hi"))}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected the held GET to return once Send flushed it")
	}

	if p.Writable() {
		t.Fatal("expected polling to be unwritable again once the GET was consumed")
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected a non-empty response body")
	}
}

func TestPollingOverlappingGetReleasesBothRequests(t *testing.T) {
	p := NewPolling(context.Background(), 4, true, 1_000_000)

	var errReason string
	p.Events().On("error", func(args ...any) {
		if reason, ok := args[0].(string); ok {
			errReason = reason
		}
	})

	first := httptest.NewRequest(http.MethodGet, "/engine.io/", nil)
	firstRec := httptest.NewRecorder()
	firstDone := make(chan struct{})
	go func() {
		p.OnRequest(firstRec, first)
		close(firstDone)
	}()
	waitUntil(t, func() bool { return p.Writable() })

	second := httptest.NewRequest(http.MethodGet, "/engine.io/", nil)
	secondRec := httptest.NewRecorder()
	p.OnRequest(secondRec, second)

	select {
	case <-firstDone:
	case <-time.After(time.Second):
		t.Fatal("expected the first parked GET to be released once a second GET arrived")
	}

	if secondRec.Code != http.StatusBadRequest {
		t.Fatalf("expected the overlapping GET to get 400, got %d", secondRec.Code)
	}
	if firstRec.Body.Len() == 0 {
		t.Fatal("expected the stale parked GET to receive a response body instead of hanging")
	}
	if errReason != ReasonOverlappingPoll {
		t.Fatalf("expected %q error reason, got %q", ReasonOverlappingPoll, errReason)
	}
}

func TestPollingDataRequestDecodesPayload(t *testing.T) {
	p := NewPolling(context.Background(), 4, true, 1_000_000)

	var received []byte
	p.Events().On("packet", func(args ...any) {
		if pkt, ok := args[0].(*packet.Packet); ok {
			received = pkt.Data
		}
	})

	req := httptest.NewRequest(http.MethodPost, "/engine.io/", io.NopCloser(strings.NewReader("4hello")))
	rec := httptest.NewRecorder()
	p.OnRequest(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if string(received) != "hello" {
		t.Fatalf("expected decoded data %q, got %q", "hello", received)
	}
}

func TestPollingNegotiateEncoding(t *testing.T) {
	p := NewPolling(context.Background(), 4, true, 1_000_000)

	p.NegotiateEncoding("gzip, deflate, br")
	if p.lastEncoding != "br" {
		t.Fatalf("expected br preferred, got %q", p.lastEncoding)
	}

	p.NegotiateEncoding("identity")
	if p.lastEncoding != "" {
		t.Fatalf("expected no encoding negotiated, got %q", p.lastEncoding)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}
