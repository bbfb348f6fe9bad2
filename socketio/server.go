package socketio

import (
	"net/http"
	"sync"
	"time"

	"github.com/tristanpoland/socketioxide/engineio"
	"github.com/tristanpoland/socketioxide/pkg/log"
)

var serverLog = log.NewLog("socketio:server")

// defaultConnectTimeout matches spec.md §6's connect_timeout default: how
// long a session may stay open without sending a Socket.IO CONNECT packet
// before it is closed with TransportClose.
const defaultConnectTimeout = 45 * time.Second

// Server is the Socket.IO layer's entry point: it owns the namespace
// registry and wraps an Engine.IO Server for transport, handshake, and
// heartbeat concerns. Mounting it on an HTTP mux is just ServeHTTP.
type Server struct {
	engine *engineio.Server

	mu   sync.RWMutex
	nsps map[string]*Namespace

	clientsMu sync.Mutex
	clients   map[string]*Client // engine session id -> client

	connectTimeout time.Duration
}

// NewServer creates a Server backed by a new Engine.IO Server built from
// options (nil uses engineio.DefaultServerOptions). The "/" namespace is
// registered automatically, matching the default-namespace behavior every
// Socket.IO client assumes.
func NewServer(options *engineio.ServerOptions) *Server {
	s := &Server{
		engine:         engineio.NewServer(options),
		nsps:           make(map[string]*Namespace),
		clients:        make(map[string]*Client),
		connectTimeout: defaultConnectTimeout,
	}
	s.Of("/")

	s.engine.On("connection", func(args ...any) {
		engineSocket, ok := args[0].(*engineio.Socket)
		if !ok {
			return
		}
		s.onConnection(engineSocket)
	})

	return s
}

// Engine returns the underlying Engine.IO server, for callers that need
// transport-level controls (ClientsCount, Close, raw session lookup).
func (s *Server) Engine() *engineio.Server { return s.engine }

// SetConnectTimeout overrides the default 45s deadline a session is given
// to send its first Socket.IO CONNECT packet before being closed with
// TransportClose (spec.md §6 connect_timeout). A non-positive d disables
// the deadline entirely.
func (s *Server) SetConnectTimeout(d time.Duration) {
	s.connectTimeout = d
}

// Of returns the namespace registered at name, creating it on first use.
func (s *Server) Of(name string) *Namespace {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.nsps[name]; ok {
		return ns
	}
	ns := newNamespace(name, s)
	s.nsps[name] = ns
	serverLog.Debugf("initializing namespace %s", name)
	return ns
}

func (s *Server) namespace(name string) (*Namespace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.nsps[name]
	return ns, ok
}

func (s *Server) onConnection(engineSocket *engineio.Socket) {
	client := newClient(s, engineSocket)

	s.clientsMu.Lock()
	s.clients[engineSocket.ID()] = client
	s.clientsMu.Unlock()

	engineSocket.On("close", func(args ...any) {
		s.clientsMu.Lock()
		delete(s.clients, engineSocket.ID())
		s.clientsMu.Unlock()
	})

	engineSocket.On("open", func(args ...any) {
		client.open()
	})
}

// ServeHTTP mounts the Socket.IO server on an HTTP mux; it delegates
// directly to the Engine.IO transport dispatcher.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Close shuts down every namespace's sockets and the underlying Engine.IO
// server.
func (s *Server) Close() {
	s.engine.Close()
}
