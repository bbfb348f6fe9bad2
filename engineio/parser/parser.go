// Package parser implements the Engine.IO wire codec for protocol versions
// 3 and 4: encoding/decoding a single packet, and concatenating/splitting a
// polling payload made of several packets.
package parser

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tristanpoland/socketioxide/engineio/packet"
)

// Sentinel errors for parser operations.
var (
	ErrPacketNil         = errors.New("packet must not be nil")
	ErrPacketType        = errors.New("invalid packet type")
	ErrDataNil           = errors.New("data must not be nil")
	ErrInvalidDataLength = errors.New("invalid data length")
	ErrParser            = errors.New("parsing error")
)

// ErrorPacket is returned alongside a parse error so callers that forward
// it to a peer (rather than just closing the session) have something to
// send.
var ErrorPacket = &packet.Packet{Type: packet.ERROR, Data: []byte("parser error")}

// SEPARATOR is the v4 polling payload packet separator.
const SEPARATOR byte = 0x1e

// packetTypes maps packet types to their wire format byte.
var packetTypes = map[packet.Type]byte{
	packet.OPEN:    '0',
	packet.CLOSE:   '1',
	packet.PING:    '2',
	packet.PONG:    '3',
	packet.MESSAGE: '4',
	packet.UPGRADE: '5',
	packet.NOOP:    '6',
}

var packetTypesReverse = map[byte]packet.Type{
	'0': packet.OPEN,
	'1': packet.CLOSE,
	'2': packet.PING,
	'3': packet.PONG,
	'4': packet.MESSAGE,
	'5': packet.UPGRADE,
	'6': packet.NOOP,
}

// Parser encodes/decodes packets and payloads for one Engine.IO protocol
// revision. v3 and v4 differ in payload framing (length-prefixed vs
// separator-delimited) and in how binary packets are represented when the
// transport does not support binary frames natively.
type Parser interface {
	// Protocol returns the Engine.IO protocol revision this parser speaks.
	Protocol() int
	// EncodePacket renders a single packet as bytes ready to send.
	// supportsBinary indicates the transport can carry a raw binary frame;
	// when false, binary packets are base64-encoded inline.
	EncodePacket(p *packet.Packet, supportsBinary bool) ([]byte, bool, error)
	// DecodePacket parses a single packet previously produced by
	// EncodePacket. isBinaryFrame indicates data arrived as a raw binary
	// websocket frame rather than a text frame.
	DecodePacket(data []byte, isBinaryFrame bool) (*packet.Packet, error)
	// EncodePayload concatenates packets into one polling response body.
	EncodePayload(packets []*packet.Packet) ([]byte, error)
	// DecodePayload splits a polling request body into packets.
	DecodePayload(data []byte) ([]*packet.Packet, error)
}

func lookupType(t packet.Type) (byte, bool) {
	b, ok := packetTypes[t]
	return b, ok
}

func lookupByte(b byte) (packet.Type, bool) {
	t, ok := packetTypesReverse[b]
	return t, ok
}

// ForProtocol returns the parser for the given EIO protocol revision (3 or
// 4), or an error if it is unsupported.
func ForProtocol(revision int) (Parser, error) {
	switch revision {
	case 3:
		return V3(), nil
	case 4:
		return V4(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported EIO revision %d", ErrParser, revision)
	}
}

func splitOnSeparator(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	return bytes.Split(data, []byte{SEPARATOR})
}
