// Package engineio implements the Engine.IO session layer: the state
// machine, transport-upgrade protocol, heartbeat, and session registry that
// sit beneath a Socket.IO server (or any other protocol layered on top of
// Engine.IO).
package engineio

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tristanpoland/socketioxide/engineio/packet"
	"github.com/tristanpoland/socketioxide/engineio/transport"
	"github.com/tristanpoland/socketioxide/pkg/log"
	"github.com/tristanpoland/socketioxide/pkg/types"
	"github.com/tristanpoland/socketioxide/pkg/utils"
)

var socketLog = log.NewLog("engineio:socket")

// ReadyState is the Engine.IO session lifecycle state.
type ReadyState string

const (
	StateOpening  ReadyState = "opening"
	StateOpen     ReadyState = "open"
	StateClosing  ReadyState = "closing"
	StateClosed   ReadyState = "closed"
)

// CloseReason explains why a session transitioned to Closed.
type CloseReason string

const (
	ReasonTransportError          CloseReason = "transport error"
	ReasonTransportClose          CloseReason = "transport close"
	ReasonForcedClose             CloseReason = "forced close"
	ReasonPingTimeout             CloseReason = "ping timeout"
	ReasonParseError              CloseReason = "parse error"
	ReasonForcedServerClose       CloseReason = "forced server close"
	ReasonMultipleHTTPPollingError CloseReason = "multiple http polling error"
)

type sendCallback func()

type queuedPacket struct {
	packet   *packet.Packet
	callback sendCallback
}

// Socket is one Engine.IO session: the protocol state machine bound to a
// SID, independent of which concrete transport currently carries it. A
// socket owns its send queue and heartbeat timers; host code (typically a
// Socket.IO namespace) reaches it only through the Server's registry.
type Socket struct {
	*types.EventEmitter

	id              string
	server          *Server
	remoteAddress   string
	protocolVersion int
	Data            any

	state       atomic.Value // ReadyState
	upgraded    atomic.Bool
	upgrading   atomic.Bool

	transportMu sync.RWMutex
	activeTransport transport.Transport

	queueMu sync.Mutex
	queue   []*queuedPacket

	timerMu      sync.Mutex
	pingTimer    *utils.Timer
	upgradeTimer *utils.Timer

	closeOnce sync.Once
	closeReason CloseReason
}

func newSocket(id string, server *Server, remoteAddress string, protocolVersion int, t transport.Transport) *Socket {
	s := &Socket{
		EventEmitter:    types.NewEventEmitter(),
		id:              id,
		server:          server,
		remoteAddress:   remoteAddress,
		protocolVersion: protocolVersion,
	}
	s.state.Store(StateOpening)
	s.setTransport(t)
	return s
}

// ID returns the session's opaque identifier.
func (s *Socket) ID() string { return s.id }

// RemoteAddress returns the peer address captured at handshake time.
func (s *Socket) RemoteAddress() string { return s.remoteAddress }

// ProtocolVersion returns 3 or 4.
func (s *Socket) ProtocolVersion() int { return s.protocolVersion }

// ReadyState returns the session's current lifecycle state.
func (s *Socket) ReadyState() ReadyState { return s.state.Load().(ReadyState) }

// CloseReason returns why the session closed, or "" while still open.
func (s *Socket) CloseReason() CloseReason { return s.closeReason }

func (s *Socket) setState(state ReadyState) {
	socketLog.Debugf("session %s: %s -> %s", s.id, s.ReadyState(), state)
	s.state.Store(state)
}

func (s *Socket) setTransport(t transport.Transport) {
	s.transportMu.Lock()
	s.activeTransport = t
	s.transportMu.Unlock()

	t.Events().On(types.EventName("packet"), func(args ...any) {
		if pkt, ok := args[0].(*packet.Packet); ok {
			s.onPacket(pkt)
		}
	})
	t.Events().On(types.EventName("error"), func(args ...any) {
		reason, _ := args[0].(string)
		s.onError(reason)
	})
	t.Events().On(types.EventName("close"), func(args ...any) {
		if t.Discarded() {
			return
		}
		s.onTransportClose()
	})
	t.Events().On(types.EventName("drain"), func(args ...any) {
		s.flush()
	})
}

// open finalizes the handshake: transitions Opening -> Open, sends the
// OPEN packet carrying the handshake payload, and starts the heartbeat.
func (s *Socket) open(pingInterval, pingTimeout time.Duration, upgrades []string, maxPayload int64) error {
	s.setState(StateOpen)

	handshake := map[string]any{
		"sid":          s.id,
		"upgrades":     upgrades,
		"pingInterval": int(pingInterval / time.Millisecond),
		"pingTimeout":  int(pingTimeout / time.Millisecond),
		"maxPayload":   maxPayload,
	}
	payload, err := json.Marshal(handshake)
	if err != nil {
		return err
	}
	if err := s.sendPacket(packet.New(packet.OPEN, payload), nil); err != nil {
		return err
	}
	s.Emit("open")

	if s.protocolVersion == 4 {
		s.resetServerHeartbeat(pingInterval, pingTimeout)
	} else {
		s.resetClientHeartbeat(pingInterval, pingTimeout)
	}
	return nil
}

// resetServerHeartbeat implements the v4 server-initiated heartbeat: every
// pingInterval the server sends PING and expects PONG within pingTimeout.
func (s *Socket) resetServerHeartbeat(pingInterval, pingTimeout time.Duration) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.pingTimer != nil {
		s.pingTimer.Stop()
	}
	s.pingTimer = utils.SetTimeout(func() {
		s.sendPacket(packet.New(packet.PING, nil), nil)
		s.timerMu.Lock()
		s.pingTimer = utils.SetTimeout(func() {
			s.Close(ReasonPingTimeout)
		}, pingTimeout)
		s.timerMu.Unlock()
	}, pingInterval)
}

// resetClientHeartbeat implements the v3 client-initiated heartbeat: the
// server expects a PING within pingInterval+pingTimeout and replies PONG.
func (s *Socket) resetClientHeartbeat(pingInterval, pingTimeout time.Duration) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.pingTimer != nil {
		s.pingTimer.Stop()
	}
	s.pingTimer = utils.SetTimeout(func() {
		s.Close(ReasonPingTimeout)
	}, pingInterval+pingTimeout)
}

func (s *Socket) onPacket(pkt *packet.Packet) {
	if s.ReadyState() != StateOpen && s.ReadyState() != StateOpening {
		return
	}
	socketLog.Debugf("received packet %s", pkt.Type)

	switch pkt.Type {
	case packet.PING:
		if s.protocolVersion == 3 {
			s.resetClientHeartbeat(s.server.options.PingInterval, s.server.options.PingTimeout)
			s.sendPacket(packet.New(packet.PONG, pkt.Data), nil)
		}
		s.Emit("heartbeat")
	case packet.PONG:
		if s.protocolVersion == 4 {
			s.resetServerHeartbeat(s.server.options.PingInterval, s.server.options.PingTimeout)
		}
		s.Emit("heartbeat")
	case packet.ERROR:
		s.onClose(ReasonParseError)
	case packet.MESSAGE:
		s.Emit("data", pkt.Data, pkt.Binary)
		s.Emit("message", pkt.Data, pkt.Binary)
	case packet.CLOSE:
		s.onClose(ReasonTransportClose)
	}
}

// onError maps a transport-reported error reason to a session close reason:
// an overlapping long-poll GET gets its own spec-enumerated reason, every
// other transport failure closes as a plain transport error.
func (s *Socket) onError(reason string) {
	if reason == transport.ReasonOverlappingPoll {
		s.onClose(ReasonMultipleHTTPPollingError)
		return
	}
	s.onClose(ReasonTransportError)
}

func (s *Socket) onTransportClose() {
	if s.upgrading.Load() || s.ReadyState() == StateClosing {
		return
	}
	s.onClose(ReasonTransportClose)
}

// Send enqueues an application payload as a MESSAGE packet. callback, if
// non-nil, runs once the packet has actually been written to the
// transport (immediately for websocket, on the next successful poll flush
// for polling).
func (s *Socket) Send(data []byte, binary bool, callback sendCallback) error {
	if s.ReadyState() != StateOpen {
		return ErrSessionClosed
	}
	pkt := packet.New(packet.MESSAGE, data)
	pkt.Binary = binary
	return s.sendPacket(pkt, callback)
}

func (s *Socket) sendPacket(pkt *packet.Packet, callback sendCallback) error {
	if s.ReadyState() == StateClosing || s.ReadyState() == StateClosed {
		return ErrSessionClosed
	}
	s.Emit("packetCreate", pkt)
	s.queueMu.Lock()
	s.queue = append(s.queue, &queuedPacket{packet: pkt, callback: callback})
	queuedBytes := s.queuedBytesLocked()
	s.queueMu.Unlock()

	if max := s.server.options.MaxBufferSize; max > 0 && queuedBytes > max {
		socketLog.Debugf("session %s: outbound queue exceeded max buffer size, closing", s.id)
		s.Close(ReasonTransportError)
		return ErrSessionClosed
	}

	s.flush()
	return nil
}

// queuedBytesLocked sums the payload size of every packet currently queued;
// callers must hold queueMu.
func (s *Socket) queuedBytesLocked() int64 {
	var total int64
	for _, qp := range s.queue {
		total += int64(len(qp.packet.Data))
	}
	return total
}

// flush drains the queue to the active transport if it is currently
// writable; polling transports become writable again on the next GET,
// which fires a "drain" event that re-triggers flush.
func (s *Socket) flush() {
	s.transportMu.RLock()
	t := s.activeTransport
	s.transportMu.RUnlock()
	if t == nil || !t.Writable() {
		return
	}

	s.queueMu.Lock()
	if len(s.queue) == 0 {
		s.queueMu.Unlock()
		return
	}
	pending := s.queue
	s.queue = nil
	s.queueMu.Unlock()

	packets := make([]*packet.Packet, len(pending))
	for i, qp := range pending {
		packets[i] = qp.packet
	}
	if err := t.Send(packets); err != nil {
		s.onError("send failed")
		return
	}
	for _, qp := range pending {
		if qp.callback != nil {
			qp.callback()
		}
	}
	s.Emit("flush")
}

// maybeUpgrade installs newTransport as a probe candidate during the
// Engine.IO upgrade handshake. Once the client's UPGRADE packet arrives on
// newTransport, finishUpgrade discards the old transport and promotes the
// new one to active. If neither the probe nor the upgrade packet arrives
// within upgradeTimeout, the probing transport is closed and the session
// falls back to its current transport, matching the spec's "cancels the
// upgrade and closes only the probing WebSocket" requirement.
func (s *Socket) maybeUpgrade(newTransport transport.Transport, upgradeTimeout time.Duration) {
	s.upgrading.Store(true)

	var once sync.Once
	cancelUpgrade := func() {
		once.Do(func() {
			s.timerMu.Lock()
			if s.upgradeTimer != nil {
				s.upgradeTimer.Stop()
				s.upgradeTimer = nil
			}
			s.timerMu.Unlock()
			newTransport.Close()
			s.upgrading.Store(false)
		})
	}

	s.timerMu.Lock()
	s.upgradeTimer = utils.SetTimeout(func() {
		socketLog.Debugf("session %s: upgrade timed out, cancelling", s.id)
		cancelUpgrade()
	}, upgradeTimeout)
	s.timerMu.Unlock()

	newTransport.Events().Once(types.EventName("packet"), func(args ...any) {
		pkt, ok := args[0].(*packet.Packet)
		if !ok || pkt.Type != packet.PING || string(pkt.Data) != "probe" {
			cancelUpgrade()
			return
		}
		newTransport.Send([]*packet.Packet{packet.New(packet.PONG, []byte("probe"))})

		newTransport.Events().Once(types.EventName("packet"), func(args ...any) {
			confirm, ok := args[0].(*packet.Packet)
			if ok && confirm.Type == packet.UPGRADE {
				once.Do(func() {
					s.timerMu.Lock()
					if s.upgradeTimer != nil {
						s.upgradeTimer.Stop()
						s.upgradeTimer = nil
					}
					s.timerMu.Unlock()
					s.finishUpgrade(newTransport)
				})
			}
		})
	})
}

func (s *Socket) finishUpgrade(newTransport transport.Transport) {
	s.transportMu.Lock()
	old := s.activeTransport
	s.activeTransport = newTransport
	s.transportMu.Unlock()

	s.upgraded.Store(true)
	s.upgrading.Store(false)
	s.setTransport(newTransport)
	if old != nil {
		old.Discard()
		old.Close()
	}
	s.Emit("upgrade", newTransport)
	s.flush()
}

// Close transitions the session to Closing, asks the active transport to
// close, and then moves to Closed without waiting for the transport to
// finish shutting down; reason is recorded for diagnostics and surfaced to
// host code via the "close" event.
func (s *Socket) Close(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.closeReason = reason
		s.setState(StateClosing)
		s.stopTimers()

		s.transportMu.RLock()
		t := s.activeTransport
		s.transportMu.RUnlock()

		finish := func() {
			s.onClose(reason)
		}
		if reason == ReasonForcedClose || reason == ReasonForcedServerClose {
			if t != nil {
				t.Send([]*packet.Packet{packet.New(packet.NOOP, nil)})
				t.Close()
			}
			finish()
			return
		}
		if t != nil {
			t.Close()
		}
		finish()
	})
}

func (s *Socket) onClose(reason CloseReason) {
	if s.ReadyState() == StateClosed {
		return
	}
	s.closeReason = reason
	s.setState(StateClosed)
	s.stopTimers()
	s.server.onSocketClose(s)
	s.Emit("close", reason)
}

func (s *Socket) stopTimers() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.pingTimer != nil {
		s.pingTimer.Stop()
	}
	if s.upgradeTimer != nil {
		s.upgradeTimer.Stop()
		s.upgradeTimer = nil
	}
}

