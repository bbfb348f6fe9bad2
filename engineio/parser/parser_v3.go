package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/tristanpoland/socketioxide/engineio/packet"
)

type parserV3 struct{}

var defaultV3 Parser = &parserV3{}

// V3 returns the Engine.IO protocol 3 codec. Protocol 3 frames a polling
// payload with a "<utf16-length>:<packet>" prefix per packet rather than
// v4's separator byte, and represents binary packets as base64 text
// prefixed with 'b' — protocol 3 has no notion of a binary polling frame,
// so EncodePacket/DecodePacket never see supportsBinary/isBinaryFrame true
// over polling; WebSocket frames bypass this codec's payload framing
// entirely and carry one packet per frame.
func V3() Parser { return defaultV3 }

func (*parserV3) Protocol() int { return 3 }

func (*parserV3) EncodePacket(p *packet.Packet, supportsBinary bool) ([]byte, bool, error) {
	if p == nil {
		return nil, false, ErrPacketNil
	}
	typeByte, ok := lookupType(p.Type)
	if !ok {
		return nil, false, ErrPacketType
	}

	if p.Binary {
		if supportsBinary {
			return p.Data, true, nil
		}
		out := make([]byte, 0, 2+base64.StdEncoding.EncodedLen(len(p.Data)))
		out = append(out, 'b', typeByte)
		enc := make([]byte, base64.StdEncoding.EncodedLen(len(p.Data)))
		base64.StdEncoding.Encode(enc, p.Data)
		out = append(out, enc...)
		return out, false, nil
	}

	out := make([]byte, 0, 1+len(p.Data))
	out = append(out, typeByte)
	out = append(out, p.Data...)
	return out, false, nil
}

func (*parserV3) DecodePacket(data []byte, isBinaryFrame bool) (*packet.Packet, error) {
	if data == nil {
		return ErrorPacket, ErrDataNil
	}
	if isBinaryFrame {
		return &packet.Packet{Type: packet.MESSAGE, Data: data, Binary: true}, nil
	}
	if len(data) == 0 {
		return ErrorPacket, ErrInvalidDataLength
	}
	if data[0] == 'b' {
		if len(data) < 2 {
			return ErrorPacket, ErrInvalidDataLength
		}
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(data)-2))
		n, err := base64.StdEncoding.Decode(decoded, data[2:])
		if err != nil {
			return ErrorPacket, err
		}
		return &packet.Packet{Type: packet.MESSAGE, Data: decoded[:n], Binary: true}, nil
	}
	t, ok := lookupByte(data[0])
	if !ok {
		return ErrorPacket, fmt.Errorf("%w, unknown data type [%c]", ErrParser, data[0])
	}
	return &packet.Packet{Type: t, Data: data[1:]}, nil
}

// utf16Len returns the number of UTF-16 code units required to represent b,
// since v3 payload length prefixes count UTF-16 units (matching the
// original JavaScript client's String.length semantics) rather than bytes.
func utf16Len(b []byte) int {
	n := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		if r1, r2 := utf16.EncodeRune(r); r1 == 0xFFFD && r2 == 0xFFFD {
			n++
		} else {
			n += 2
		}
	}
	return n
}

func (p *parserV3) EncodePayload(packets []*packet.Packet) ([]byte, error) {
	if len(packets) == 0 {
		return []byte("0:"), nil
	}
	var buf bytes.Buffer
	for _, pkt := range packets {
		encoded, _, err := p.EncodePacket(pkt, false)
		if err != nil {
			return nil, err
		}
		buf.WriteString(strconv.Itoa(utf16Len(encoded)))
		buf.WriteByte(':')
		buf.Write(encoded)
	}
	return buf.Bytes(), nil
}

func (p *parserV3) DecodePayload(data []byte) ([]*packet.Packet, error) {
	packets := make([]*packet.Packet, 0, 4)
	for len(data) > 0 {
		sep := bytes.IndexByte(data, ':')
		if sep < 1 {
			return packets, ErrInvalidDataLength
		}
		length, err := strconv.Atoi(string(data[:sep]))
		if err != nil {
			return packets, ErrInvalidDataLength
		}
		data = data[sep+1:]

		// length counts UTF-16 units; walk runes until we have consumed
		// that many units, tracking how many bytes that took.
		consumed := 0
		units := 0
		for units < length {
			if consumed >= len(data) {
				return packets, ErrInvalidDataLength
			}
			r, size := utf8.DecodeRune(data[consumed:])
			consumed += size
			if r1, r2 := utf16.EncodeRune(r); r1 == 0xFFFD && r2 == 0xFFFD {
				units++
			} else {
				units += 2
			}
		}

		chunk := data[:consumed]
		data = data[consumed:]
		if len(chunk) == 0 {
			continue
		}
		pkt, err := p.DecodePacket(chunk, false)
		if err != nil {
			return packets, err
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}
