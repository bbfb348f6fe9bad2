package engineio

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tristanpoland/socketioxide/engineio/transport"
	"github.com/tristanpoland/socketioxide/pkg/log"
	"github.com/tristanpoland/socketioxide/pkg/types"
	"github.com/tristanpoland/socketioxide/pkg/utils"
)

var serverLog = log.NewLog("engineio:server")

// Server is the Engine.IO session registry and HTTP request dispatcher: it
// parses the EIO/transport/sid query parameters of every request routed to
// it, creates sessions on handshake, forwards subsequent requests to the
// session's active transport, and drives the polling<->websocket upgrade
// handshake.
type Server struct {
	*types.EventEmitter

	options  *ServerOptions
	sessions types.Map[string, *Socket]
}

// NewServer creates a Server. A nil options uses DefaultServerOptions.
func NewServer(options *ServerOptions) *Server {
	return &Server{
		EventEmitter: types.NewEventEmitter(),
		options:      options.ApplyDefaults(),
		sessions:     *types.NewMap[string, *Socket](),
	}
}

// Socket looks up a session by id.
func (s *Server) Socket(id string) (*Socket, bool) {
	return s.sessions.Load(id)
}

// ClientsCount returns the number of currently registered sessions.
func (s *Server) ClientsCount() int { return s.sessions.Len() }

// Close forcibly closes every registered session.
func (s *Server) Close() {
	for _, id := range s.sessions.Keys() {
		if sock, ok := s.sessions.Load(id); ok {
			sock.Close(ReasonForcedServerClose)
		}
	}
}

func (s *Server) onSocketClose(sock *Socket) {
	s.sessions.Delete(sock.id)
	s.Emit("socket-close", sock)
}

// ServeHTTP implements http.Handler: it dispatches to the handshake or
// session-continuation logic. The request path is neither checked against
// nor stripped of the configured Path.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.options.Cors != nil {
		handled := false
		types.CorsMiddleware(s.options.Cors, w, r, func(error) { handled = true })
		if !handled {
			return
		}
	}

	if s.options.AllowRequest != nil {
		if err := s.options.AllowRequest(r); err != nil {
			s.writeError(w, http.StatusForbidden, 4, "forbidden")
			return
		}
	}

	query := r.URL.Query()
	eio := query.Get("EIO")
	transportName := TransportName(query.Get("transport"))
	sid := query.Get("sid")

	revision := 0
	switch eio {
	case "3":
		revision = 3
	case "4":
		revision = 4
	default:
		s.writeError(w, http.StatusBadRequest, 0, "Transport unknown")
		return
	}

	if !s.options.transportAllowed(transportName) || (transportName != TransportPolling && transportName != TransportWebsocket) {
		s.writeError(w, http.StatusBadRequest, 0, "Transport unknown")
		return
	}

	if sid == "" {
		s.handshake(w, r, revision, transportName)
		return
	}

	sock, ok := s.sessions.Load(sid)
	if !ok {
		s.writeError(w, http.StatusBadRequest, 1, "Session ID unknown")
		return
	}
	s.continueSession(w, r, sock, transportName)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message})
}

func (s *Server) handshake(w http.ResponseWriter, r *http.Request, revision int, transportName TransportName) {
	id, err := utils.GenerateId()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, 0, "internal error")
		return
	}

	var t transport.Transport
	switch transportName {
	case TransportPolling:
		supportsBinary := !r.URL.Query().Has("b64")
		t = transport.NewPolling(r.Context(), revision, supportsBinary, s.options.MaxHTTPBufferSize)
	case TransportWebsocket:
		ws, err := transport.Upgrade(w, r, revision, s.options.MaxHTTPBufferSize)
		if err != nil {
			serverLog.Debugf("websocket upgrade failed: %v", err)
			return
		}
		t = ws
	}

	sock := newSocket(id, s, remoteAddress(r), revision, t)
	s.sessions.Store(id, sock)
	s.Emit("connection", sock)

	if ws, ok := t.(*transport.WebSocket); ok {
		go ws.Listen(context.Background())
	}

	if err := sock.open(s.options.PingInterval, s.options.PingTimeout, upgradesFrom(s.options, transportName), s.options.MaxHTTPBufferSize); err != nil {
		serverLog.Errorf("failed to open session %s: %v", id, err)
		return
	}

	if transportName == TransportPolling {
		t.OnRequest(w, r)
	}
}

func (s *Server) continueSession(w http.ResponseWriter, r *http.Request, sock *Socket, transportName TransportName) {
	sock.transportMu.RLock()
	current := sock.activeTransport
	sock.transportMu.RUnlock()

	if transportName == TransportWebsocket && current.Name() != "websocket" && s.options.AllowUpgrades {
		ws, err := transport.Upgrade(w, r, sock.protocolVersion, s.options.MaxHTTPBufferSize)
		if err != nil {
			serverLog.Debugf("upgrade failed: %v", err)
			return
		}
		sock.maybeUpgrade(ws, s.options.UpgradeTimeout)
		go ws.Listen(context.Background())
		return
	}

	current.OnRequest(w, r)
}

func upgradesFrom(options *ServerOptions, current TransportName) []string {
	if !options.AllowUpgrades || current != TransportPolling {
		return []string{}
	}
	var upgrades []string
	for _, t := range options.Transports {
		if t == TransportWebsocket {
			upgrades = append(upgrades, string(t))
		}
	}
	return upgrades
}

func remoteAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}
