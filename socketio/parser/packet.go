// Package parser implements the Socket.IO packet codec: encoding a packet
// (plus any binary attachments it carries) into the string/binary frame
// sequence a transport sends, and decoding that sequence back into a
// packet once all of its attachments have arrived.
package parser

// Type is a Socket.IO packet type.
type Type int

const (
	Connect Type = iota
	Disconnect
	Event
	Ack
	ConnectError
	BinaryEvent
	BinaryAck
)

// Valid reports whether t is a recognized Socket.IO packet type.
func (t Type) Valid() bool { return t >= Connect && t <= BinaryAck }

func (t Type) String() string {
	switch t {
	case Connect:
		return "CONNECT"
	case Disconnect:
		return "DISCONNECT"
	case Event:
		return "EVENT"
	case Ack:
		return "ACK"
	case ConnectError:
		return "CONNECT_ERROR"
	case BinaryEvent:
		return "BINARY_EVENT"
	case BinaryAck:
		return "BINARY_ACK"
	default:
		return "UNKNOWN"
	}
}

// Packet is a single Socket.IO protocol packet, already namespace-routed
// but not yet wire-encoded.
type Packet struct {
	Type        Type
	Namespace   string
	Data        any
	ID          *uint64
	Attachments uint64
}

// Placeholder is the JSON shape substituted for each binary value found
// inside Data during encoding: {"_placeholder":true,"num":n}.
type Placeholder struct {
	Placeholder bool `json:"_placeholder"`
	Num         int  `json:"num"`
}
