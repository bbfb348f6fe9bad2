package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/tristanpoland/socketioxide/engineio/packet"
)

type parserV4 struct{}

var defaultV4 Parser = &parserV4{}

// V4 returns the Engine.IO protocol 4 codec.
func V4() Parser { return defaultV4 }

func (*parserV4) Protocol() int { return 4 }

func (*parserV4) EncodePacket(p *packet.Packet, supportsBinary bool) ([]byte, bool, error) {
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
		out := make([]byte, 0, 1+base64.StdEncoding.EncodedLen(len(p.Data)))
		out = append(out, 'b')
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

func (*parserV4) DecodePacket(data []byte, isBinaryFrame bool) (*packet.Packet, error) {
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
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(data)-1))
		n, err := base64.StdEncoding.Decode(decoded, data[1:])
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

func (p *parserV4) EncodePayload(packets []*packet.Packet) ([]byte, error) {
	var buf bytes.Buffer
	for i, pkt := range packets {
		encoded, _, err := p.EncodePacket(pkt, false)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte(SEPARATOR)
		}
		buf.Write(encoded)
	}
	return buf.Bytes(), nil
}

func (p *parserV4) DecodePayload(data []byte) ([]*packet.Packet, error) {
	parts := splitOnSeparator(data)
	packets := make([]*packet.Packet, 0, len(parts))
	for _, part := range parts {
		if len(part) == 0 {
			continue
		}
		pkt, err := p.DecodePacket(part, false)
		if err != nil {
			return packets, err
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}
