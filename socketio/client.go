package socketio

import (
	"sync"

	"github.com/tristanpoland/socketioxide/engineio"
	"github.com/tristanpoland/socketioxide/pkg/log"
	"github.com/tristanpoland/socketioxide/pkg/types"
	"github.com/tristanpoland/socketioxide/pkg/utils"
	"github.com/tristanpoland/socketioxide/socketio/parser"
)

var clientLog = log.NewLog("socketio:client")

// Client binds one Engine.IO session to the Socket.IO protocol: it decodes
// the session's raw byte/message stream into Packets, routes each to the
// right Namespace, and re-encodes outgoing Packets back onto the session.
// A client may have a Socket open in more than one namespace at once — the
// namespace multiplexing the wire protocol describes.
type Client struct {
	server       *Server
	engineSocket *engineio.Socket
	decoder      *parser.Decoder

	mu      sync.Mutex
	sockets map[string]*Socket // namespace name -> socket

	connectTimerMu sync.Mutex
	connectTimer   *utils.Timer
}

func newClient(server *Server, engineSocket *engineio.Socket) *Client {
	c := &Client{
		server:       server,
		engineSocket: engineSocket,
		decoder:      parser.NewDecoder(),
		sockets:      make(map[string]*Socket),
	}

	c.decoder.On("decoded", func(args ...any) {
		if p, ok := args[0].(*parser.Packet); ok {
			c.onPacket(p)
		}
	})

	engineSocket.On("message", func(args ...any) {
		data, _ := args[0].([]byte)
		binary, _ := args[1].(bool)
		var err error
		if binary {
			err = c.decoder.AddBinary(data)
		} else {
			err = c.decoder.AddText(data)
		}
		if err != nil {
			clientLog.Errorf("decode error: %v", err)
			engineSocket.Close(engineio.ReasonParseError)
		}
	})

	engineSocket.On("close", func(args ...any) {
		c.onEngineClose()
	})

	return c
}

// open runs once the Engine.IO handshake completes. Per this module's
// v4-default-namespace decision, an Engine.IO protocol 4 session
// immediately attempts to connect "/"; if "/" is not registered, the
// session is closed with TransportClose rather than kept open behind a
// ConnectError, since protocol 4 mandates a default namespace. Every other
// session arms a connect-timeout deadline instead: if the peer never sends
// a CONNECT packet, the session is closed with TransportClose once the
// deadline passes (spec.md §4.6, §6 connect_timeout).
func (c *Client) open() {
	if c.engineSocket.ProtocolVersion() != 4 {
		c.armConnectTimeout()
		return
	}
	if _, ok := c.server.namespace("/"); !ok {
		clientLog.Debug("v4 client connected with no default namespace registered, closing")
		c.engineSocket.Close(engineio.ReasonTransportClose)
		return
	}
	c.connect("/", nil)
}

func (c *Client) armConnectTimeout() {
	timeout := c.server.connectTimeout
	if timeout <= 0 {
		return
	}
	c.connectTimerMu.Lock()
	c.connectTimer = utils.SetTimeout(func() {
		clientLog.Debug("connect timeout: no CONNECT packet received, closing")
		c.engineSocket.Close(engineio.ReasonTransportClose)
	}, timeout)
	c.connectTimerMu.Unlock()
}

func (c *Client) cancelConnectTimeout() {
	c.connectTimerMu.Lock()
	timer := c.connectTimer
	c.connectTimer = nil
	c.connectTimerMu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (c *Client) onPacket(p *parser.Packet) {
	switch p.Type {
	case parser.Connect:
		c.connect(p.Namespace, p.Data)
	case parser.Event, parser.BinaryEvent:
		c.onEvent(p)
	case parser.Ack, parser.BinaryAck:
		c.onAck(p)
	case parser.Disconnect:
		c.mu.Lock()
		sock, ok := c.sockets[p.Namespace]
		delete(c.sockets, p.Namespace)
		c.mu.Unlock()
		if ok {
			sock.connected = false
			sock.namespace.removeSocket(sock.id)
			sock.namespace.EventEmitter.Emit("disconnect", sock)
		}
	case parser.ConnectError:
		clientLog.Debug("received unexpected CONNECT_ERROR from peer")
	}
}

func (c *Client) connect(namespaceName string, authData any) {
	c.cancelConnectTimeout()

	ns, ok := c.server.namespace(namespaceName)
	if !ok {
		c.sendConnectError(namespaceName, "Invalid namespace")
		return
	}

	sock := newSocket(SocketID(c.engineSocket.ID()+"#"+namespaceName), ns, c)
	if authData != nil {
		sock.Data = authData
	}

	var replay []*parser.Packet
	if recOpts := ns.recoveryOptions(); recOpts != nil && recOpts.Enabled {
		if pid, ok := pidFromAuth(authData); ok {
			if rooms, data, packets, found := ns.adapter.RestoreSession(pid, recOpts.MaxDisconnectAge); found {
				sock.pid = pid
				if data != nil {
					sock.Data = data
				}
				if rooms != nil {
					ns.adapter.AddAll(sock.id, rooms)
				}
				replay = packets
			}
		}
		if sock.pid == "" {
			if newPid, err := utils.GenerateId(); err == nil {
				sock.pid = newPid
			}
		}
	}

	ns.runMiddleware(sock, func(err error) {
		if err != nil {
			message := err.Error()
			var data any
			if ce, ok := err.(*ConnectError); ok {
				message = ce.Message
				data = ce.Data
			}
			c.sendConnectErrorWithData(namespaceName, message, data)
			return
		}

		c.mu.Lock()
		c.sockets[namespaceName] = sock
		c.mu.Unlock()

		ns.addSocket(sock)
		ack := map[string]any{"sid": string(sock.id)}
		if sock.pid != "" {
			ack["pid"] = sock.pid
		}
		c.sendPacket(newPacket(parser.Connect, namespaceName, ack))

		for _, p := range replay {
			c.sendPacket(p)
		}
	})
}

// pidFromAuth extracts a "pid" field from a CONNECT packet's auth payload,
// the shape a host's Socket.IO client sends when attempting to recover a
// prior connection.
func pidFromAuth(authData any) (string, bool) {
	m, ok := authData.(map[string]any)
	if !ok {
		return "", false
	}
	pid, ok := m["pid"].(string)
	return pid, ok && pid != ""
}

func (c *Client) sendConnectError(namespaceName, message string) {
	c.sendConnectErrorWithData(namespaceName, message, nil)
}

func (c *Client) sendConnectErrorWithData(namespaceName, message string, data any) {
	payload := map[string]any{"message": message}
	if data != nil {
		payload["data"] = data
	}
	c.sendPacket(newPacket(parser.ConnectError, namespaceName, payload))
}

func (c *Client) onEvent(p *parser.Packet) {
	c.mu.Lock()
	sock, ok := c.sockets[p.Namespace]
	c.mu.Unlock()
	if !ok {
		return
	}

	args, _ := p.Data.([]any)
	if len(args) == 0 {
		return
	}
	eventName, _ := args[0].(string)
	rest := args[1:]

	if p.ID != nil {
		id := *p.ID
		rest = append(append([]any{}, rest...), func(replyArgs ...any) {
			c.sendPacket(&parser.Packet{Type: parser.Ack, Namespace: p.Namespace, Data: replyArgs, ID: &id})
		})
	}

	sock.dispatch(EventName(eventName), rest...)
}

func (c *Client) onAck(p *parser.Packet) {
	if p.ID == nil {
		return
	}
	c.mu.Lock()
	sock, ok := c.sockets[p.Namespace]
	c.mu.Unlock()
	if !ok {
		return
	}
	ack, ok := sock.acks.LoadAndDelete(*p.ID)
	if !ok {
		return
	}
	args, _ := p.Data.([]any)
	ack(args, nil)
}

func (c *Client) onEngineClose() {
	c.cancelConnectTimeout()

	c.mu.Lock()
	sockets := c.sockets
	c.sockets = make(map[string]*Socket)
	c.mu.Unlock()

	for _, sock := range sockets {
		sock.connected = false
		c.persistForRecovery(sock)
		sock.namespace.removeSocket(sock.id)
		sock.namespace.EventEmitter.Emit("disconnect", sock)
	}
}

// persistForRecovery saves sock's rooms and data under its pid if its
// namespace has connection-state recovery enabled, so a reconnecting client
// presenting the same pid can be restored. Only called for ungraceful
// disconnects (engine session loss), not an explicit client Disconnect.
func (c *Client) persistForRecovery(sock *Socket) {
	recOpts := sock.namespace.recoveryOptions()
	if recOpts == nil || !recOpts.Enabled || sock.pid == "" {
		return
	}
	rooms, ok := sock.namespace.adapter.SocketRooms(sock.id)
	if !ok {
		rooms = types.NewSet[Room]()
	}
	sock.namespace.adapter.PersistSession(sock.pid, types.NewSet(rooms.Keys()...), sock.Data)
}

// sendPacket encodes p and writes the resulting frame(s) to the
// underlying Engine.IO session, one MESSAGE packet per frame.
func (c *Client) sendPacket(p *parser.Packet) {
	for _, frame := range parser.Encode(p) {
		if err := c.engineSocket.Send(frame.Data, frame.Binary, nil); err != nil {
			clientLog.Debugf("send failed: %v", err)
			return
		}
	}
}

func (c *Client) close() {
	c.engineSocket.Close(engineio.ReasonForcedClose)
}
