package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tristanpoland/socketioxide/engineio/packet"
	"github.com/tristanpoland/socketioxide/pkg/log"
)

var websocketLog = log.NewLog("engineio:ws")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocket implements the Engine.IO websocket transport: a persistent,
// full-duplex connection that replaces polling after a successful upgrade.
type WebSocket struct {
	base

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocket constructs a WebSocket transport over an already-accepted
// gorilla/websocket connection (the HTTP upgrade itself is the session
// registry's job, since it must happen before a Transport exists).
func NewWebSocket(ctx context.Context, conn *websocket.Conn, revision int, maxHTTPBufferSize int64) *WebSocket {
	ws := &WebSocket{
		base: newBase(ctx, revision, true, maxHTTPBufferSize),
		conn: conn,
	}
	ws.writable.Store(true)
	return ws
}

func (*WebSocket) Name() string         { return "websocket" }
func (*WebSocket) HandlesUpgrades() bool { return true }

// Upgrade performs the HTTP -> WebSocket protocol switch for r and returns
// the resulting transport, or an error if the handshake fails.
func Upgrade(w http.ResponseWriter, r *http.Request, revision int, maxHTTPBufferSize int64) (*WebSocket, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocket(r.Context(), conn, revision, maxHTTPBufferSize), nil
}

// OnRequest is a no-op for an already-upgraded connection; all further
// traffic flows through the websocket frames read by Listen, not through
// subsequent HTTP requests.
func (ws *WebSocket) OnRequest(w http.ResponseWriter, r *http.Request) {}

// Listen runs the read loop for the lifetime of the connection, decoding
// each frame into a packet and emitting it, until the peer closes the
// connection or ctx is cancelled. It blocks the calling goroutine.
func (ws *WebSocket) Listen(ctx context.Context) {
	defer ws.onClose()

	go func() {
		<-ctx.Done()
		ws.conn.Close()
	}()

	for {
		messageType, data, err := ws.conn.ReadMessage()
		if err != nil {
			websocketLog.Debug("websocket read error: %v", err)
			return
		}

		isBinary := messageType == websocket.BinaryMessage
		pkt, err := ws.parser.DecodePacket(data, isBinary)
		if err != nil {
			ws.onError("parse error", err)
			continue
		}
		ws.onPacket(pkt)
	}
}

// Send writes each queued packet as its own websocket frame — unlike
// polling, websocket never concatenates multiple packets into one frame.
func (ws *WebSocket) Send(packets []*packet.Packet) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	for _, pkt := range packets {
		encoded, isBinary, err := ws.parser.EncodePacket(pkt, ws.supportsBinary)
		if err != nil {
			return err
		}
		frameType := websocket.TextMessage
		if isBinary {
			frameType = websocket.BinaryMessage
		}
		if err := ws.conn.WriteMessage(frameType, encoded); err != nil {
			return err
		}
	}
	return nil
}

// Close terminates the underlying connection.
func (ws *WebSocket) Close() {
	ws.setReadyState(ReadyStateClosing)
	ws.conn.Close()
}
