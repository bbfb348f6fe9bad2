// Package transport implements the Engine.IO polling and websocket
// transports: the two concrete ways a packet queue is delivered to and
// received from a peer over HTTP.
package transport

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/tristanpoland/socketioxide/engineio/packet"
	"github.com/tristanpoland/socketioxide/engineio/parser"
	"github.com/tristanpoland/socketioxide/pkg/log"
	"github.com/tristanpoland/socketioxide/pkg/types"
)

// ReadyState mirrors the small state machine every transport moves through
// independent of the owning session's own state machine.
type ReadyState string

const (
	ReadyStateOpen      ReadyState = "open"
	ReadyStateClosing   ReadyState = "closing"
	ReadyStateClosed    ReadyState = "closed"
	ReadyStatePausing   ReadyState = "pausing"
	ReadyStatePaused    ReadyState = "paused"
)

// ReasonOverlappingPoll is the "error" event reason Polling emits when a
// second GET arrives while one is already held open for the same session;
// the owning Socket maps it to ReasonMultipleHTTPPollingError specifically,
// every other reason to ReasonTransportError.
const ReasonOverlappingPoll = "overlap from client"

// Transport is the behavior a session needs from whichever concrete
// transport (Polling or WebSocket) currently carries it. A transport emits
// "packet", "error", "close", and (polling only) "drain" on its EventEmitter,
// mirroring the teacher's EventEmitter-driven signaling between a socket
// and its active transport.
type Transport interface {
	// Events exposes the transport's signaling hub so a session can
	// subscribe to "packet", "error", "close", and "drain".
	Events() *types.EventEmitter

	Name() string
	Sid() string
	SetSid(string)
	Writable() bool
	Protocol() int
	HandlesUpgrades() bool
	Discarded() bool
	Discard()
	ReadyState() ReadyState

	// OnRequest is called with every incoming HTTP request routed to this
	// transport (GET for polling reads and the websocket upgrade, POST for
	// polling writes).
	OnRequest(w http.ResponseWriter, r *http.Request)
	// Send writes a packet queue out over this transport.
	Send(packets []*packet.Packet) error
	// Close begins a graceful transport shutdown.
	Close()
}

// base holds the fields and signaling shared by every transport
// implementation; it satisfies most of Transport by embedding
// *types.EventEmitter and is embedded by Polling/WebSocket in turn.
type base struct {
	*types.EventEmitter

	sid               string
	protocolRevision  int
	parser            parser.Parser
	supportsBinary    bool
	maxHTTPBufferSize int64

	writable  atomic.Bool
	discarded atomic.Bool
	state     atomic.Value // ReadyState
}

func newBase(ctx context.Context, revision int, supportsBinary bool, maxHTTPBufferSize int64) base {
	p, err := parser.ForProtocol(revision)
	if err != nil {
		p = parser.V4()
		revision = 4
	}
	b := base{
		EventEmitter:      types.NewEventEmitter(),
		protocolRevision:  revision,
		parser:            p,
		supportsBinary:    supportsBinary,
		maxHTTPBufferSize: maxHTTPBufferSize,
	}
	b.state.Store(ReadyStateOpen)
	return b
}

func (b *base) Events() *types.EventEmitter { return b.EventEmitter }

func (b *base) Sid() string             { return b.sid }
func (b *base) SetSid(sid string)       { b.sid = sid }
func (b *base) Writable() bool          { return b.writable.Load() }
func (b *base) Protocol() int           { return b.protocolRevision }
func (b *base) Discarded() bool         { return b.discarded.Load() }
func (b *base) Discard()                { b.discarded.Store(true) }
func (b *base) ReadyState() ReadyState  { return b.state.Load().(ReadyState) }

func (b *base) setReadyState(state ReadyState) {
	log.NewLog("engineio:transport").Debugf("readyState updated from %s to %s", b.ReadyState(), state)
	b.state.Store(state)
}

func (b *base) onError(reason string, err error) {
	b.Emit("error", reason, err)
}

func (b *base) onPacket(p *packet.Packet) {
	b.Emit("packet", p)
}

func (b *base) onClose() {
	b.setReadyState(ReadyStateClosed)
	b.Emit("close")
}
