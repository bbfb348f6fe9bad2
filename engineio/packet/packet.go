// Package packet defines the Engine.IO packet types and wire-level packet
// structure shared by the v3 and v4 codecs.
package packet

// Type represents an Engine.IO packet type.
type Type string

// String returns the string representation of the packet type.
func (t Type) String() string {
	return string(t)
}

// IsValid reports whether t is one of the open-wire packet types. ERROR is
// deliberately excluded: it is only ever produced locally by the decoder,
// never sent on the wire by a well-behaved peer.
func (t Type) IsValid() bool {
	switch t {
	case OPEN, CLOSE, PING, PONG, MESSAGE, UPGRADE, NOOP:
		return true
	default:
		return false
	}
}

// Packet types for the Engine.IO protocol.
const (
	// OPEN is sent from the server when a new transport is opened.
	OPEN Type = "open"
	// CLOSE is sent to request the close of this transport.
	CLOSE Type = "close"
	// PING is used in the heartbeat protocol.
	PING Type = "ping"
	// PONG is used in the heartbeat protocol.
	PONG Type = "pong"
	// MESSAGE carries an application payload.
	MESSAGE Type = "message"
	// UPGRADE is sent before upgrading the transport.
	UPGRADE Type = "upgrade"
	// NOOP is used to close a polling request without side effects.
	NOOP Type = "noop"
	// ERROR indicates a parsing failure; never sent on the wire.
	ERROR Type = "error"
)

// Options carries per-packet delivery hints.
type Options struct {
	// Compress indicates this packet payload may be compressed by the
	// transport if the negotiated encoding and size threshold allow it.
	Compress bool
}

// Packet is a single Engine.IO protocol packet. Data holds the raw payload
// bytes for MESSAGE packets (nil/empty for control packets other than OPEN,
// which carries a JSON handshake payload, and ERROR, which carries a
// human-readable reason). Binary is set by the caller to indicate Data is
// opaque bytes rather than UTF-8 text — the encoder cannot infer this
// reliably since arbitrary binary data can itself be valid UTF-8.
type Packet struct {
	Type    Type
	Data    []byte
	Binary  bool
	Options *Options
}

// New creates a packet with no delivery options.
func New(t Type, data []byte) *Packet {
	return &Packet{Type: t, Data: data}
}

// NewBinary creates a MESSAGE packet carrying an opaque binary payload.
func NewBinary(data []byte) *Packet {
	return &Packet{Type: MESSAGE, Data: data, Binary: true}
}

// NewWithOptions creates a packet carrying delivery options.
func NewWithOptions(t Type, data []byte, options *Options) *Packet {
	return &Packet{Type: t, Data: data, Options: options}
}
