package transport

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"

	"github.com/tristanpoland/socketioxide/engineio/packet"
	"github.com/tristanpoland/socketioxide/pkg/log"
)

var pollingLog = log.NewLog("engineio:polling")

// defaultCompressionThreshold gates when a polling response body is compressed:
// bodies smaller than this are sent uncompressed, matching the teacher's
// HttpCompression.Threshold behavior where compressing a tiny payload would
// cost more than it saves.
const defaultCompressionThreshold = 1024

// Polling implements the Engine.IO long-polling transport: a pending GET
// request is held open until a packet is available, the transport closes,
// or the request's context ends (there is no separate poll timeout), and
// the client delivers its own packets via POST.
type Polling struct {
	base

	mu                   sync.Mutex
	pendingResponse      http.ResponseWriter
	pendingDone          chan struct{}
	compressionThreshold int64
	lastEncoding         string
}

// NewPolling constructs a Polling transport for one HTTP round trip's
// negotiated protocol revision and binary support.
func NewPolling(ctx context.Context, revision int, supportsBinary bool, maxHTTPBufferSize int64) *Polling {
	return &Polling{
		base:                 newBase(ctx, revision, supportsBinary, maxHTTPBufferSize),
		compressionThreshold: defaultCompressionThreshold,
	}
}

func (*Polling) Name() string            { return "polling" }
func (*Polling) HandlesUpgrades() bool    { return false }

// OnRequest dispatches a GET (poll for data) or POST (deliver data) request.
func (p *Polling) OnRequest(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p.onPollRequest(w, r)
	case http.MethodPost:
		p.onDataRequest(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (p *Polling) onPollRequest(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	if p.pendingResponse != nil {
		staleResp := p.pendingResponse
		staleDone := p.pendingDone
		p.pendingResponse = nil
		p.pendingDone = nil
		p.writable.Store(false)
		p.mu.Unlock()

		pollingLog.Debug("request overlap")
		// Release the GET that was already parked so it returns promptly
		// instead of hanging until its own request context is cancelled.
		if staleResp != nil {
			if body, err := p.parser.EncodePayload([]*packet.Packet{packet.New(packet.NOOP, nil)}); err == nil {
				staleResp.Header().Set("Content-Type", "text/plain; charset=UTF-8")
				p.writeCompressed(staleResp, body)
			} else {
				staleResp.WriteHeader(http.StatusOK)
			}
		}
		if staleDone != nil {
			close(staleDone)
		}

		p.onError(ReasonOverlappingPoll, nil)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p.pendingResponse = w
	done := make(chan struct{})
	p.pendingDone = done
	p.mu.Unlock()

	p.setReadyState(ReadyStateOpen)
	p.writable.Store(true)
	p.Emit("drain")

	select {
	case <-done:
	case <-r.Context().Done():
		p.mu.Lock()
		if p.pendingResponse == w {
			p.pendingResponse = nil
			p.pendingDone = nil
			p.writable.Store(false)
		}
		p.mu.Unlock()
		p.onError("poll connection closed prematurely", r.Context().Err())
	}
}

func (p *Polling) onDataRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, p.maxHTTPBufferSize+1))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if p.maxHTTPBufferSize > 0 && int64(len(body)) > p.maxHTTPBufferSize {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	packets, err := p.parser.DecodePayload(body)
	if err != nil {
		p.onError("parse error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for _, pkt := range packets {
		p.onPacket(pkt)
	}

	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Content-Length", "2")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}

// Send flushes queued packets to the pending GET response, if any is
// currently held open; if none is held open the caller (the owning
// session) must buffer and retry on the next poll.
func (p *Polling) Send(packets []*packet.Packet) error {
	p.mu.Lock()
	w := p.pendingResponse
	done := p.pendingDone
	p.pendingResponse = nil
	p.pendingDone = nil
	p.writable.Store(false)
	p.mu.Unlock()

	if w == nil {
		return nil
	}
	defer close(done)

	body, err := p.parser.EncodePayload(packets)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	p.writeCompressed(w, body)
	return nil
}

func (p *Polling) writeCompressed(w http.ResponseWriter, body []byte) {
	if p.lastEncoding == "" || int64(len(body)) < p.compressionThreshold {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
		return
	}

	var buf strings.Builder
	var writer io.WriteCloser
	switch p.lastEncoding {
	case "gzip":
		writer = gzip.NewWriter(&buf)
	case "deflate":
		fw, _ := flate.NewWriter(&buf, flate.DefaultCompression)
		writer = fw
	case "br":
		writer = brotli.NewWriter(&buf)
	case "zstd":
		zw, _ := zstd.NewWriter(&buf)
		writer = zw
	default:
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
		return
	}
	writer.Write(body)
	writer.Close()

	w.Header().Set("Content-Encoding", p.lastEncoding)
	w.Write([]byte(buf.String()))
}

// Close begins a graceful shutdown: a long-poll GET parked waiting for data
// is released with a final NOOP so it returns instead of hanging until its
// own request context is cancelled, then the transport moves to closed.
func (p *Polling) Close() {
	p.mu.Lock()
	staleResp := p.pendingResponse
	staleDone := p.pendingDone
	p.pendingResponse = nil
	p.pendingDone = nil
	p.writable.Store(false)
	p.mu.Unlock()

	if staleResp != nil {
		if body, err := p.parser.EncodePayload([]*packet.Packet{packet.New(packet.NOOP, nil)}); err == nil {
			staleResp.Header().Set("Content-Type", "text/plain; charset=UTF-8")
			p.writeCompressed(staleResp, body)
		} else {
			staleResp.WriteHeader(http.StatusOK)
		}
	}
	if staleDone != nil {
		close(staleDone)
	}

	p.onClose()
}

// NegotiateEncoding picks a response Content-Encoding from the request's
// Accept-Encoding header, preferring the orderings the teacher's polling
// transport negotiates in (br, zstd, gzip, deflate).
func (p *Polling) NegotiateEncoding(acceptEncoding string) {
	for _, enc := range []string{"br", "zstd", "gzip", "deflate"} {
		if strings.Contains(acceptEncoding, enc) {
			p.lastEncoding = enc
			return
		}
	}
	p.lastEncoding = ""
}

