package parser

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/tristanpoland/socketioxide/pkg/log"
)

var parserLog = log.NewLog("socketio:parser")

// ErrIllegalAttachments is returned when a decoded placeholder references
// an attachment index that was never received.
var ErrIllegalAttachments = errors.New("illegal attachments")

// Encode renders p as the frame sequence a transport sends: one leading
// string frame (the type/namespace/id header plus JSON body with binary
// values replaced by placeholders), followed by one raw binary frame per
// extracted attachment, in placeholder order.
func Encode(p *Packet) []Frame {
	if (p.Type == Event || p.Type == Ack) && HasBinary(p.Data) {
		if p.Type == Event {
			p.Type = BinaryEvent
		} else {
			p.Type = BinaryAck
		}
		return encodeBinary(p)
	}
	return []Frame{{Binary: false, Data: []byte(encodeString(p))}}
}

// Frame is one element of an encoded packet: either the text header frame
// or one binary attachment frame.
type Frame struct {
	Binary bool
	Data   []byte
}

func encodeString(p *Packet) string {
	var b strings.Builder
	b.WriteByte(byte('0' + p.Type))

	if p.Type == BinaryEvent || p.Type == BinaryAck {
		b.WriteString(strconv.FormatUint(p.Attachments, 10))
		b.WriteByte('-')
	}
	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.ID != nil {
		b.WriteString(strconv.FormatUint(*p.ID, 10))
	}
	if p.Data != nil {
		if encoded, err := json.Marshal(p.Data); err == nil {
			b.Write(encoded)
		} else {
			parserLog.Errorf("failed to marshal packet data: %v", err)
		}
	}
	result := b.String()
	parserLog.Debugf("encoded %s as %s", p.Type, result)
	return result
}

func encodeBinary(p *Packet) []Frame {
	substituted, attachments := Deconstruct(p.Data)
	p.Data = substituted
	p.Attachments = uint64(len(attachments))

	frames := make([]Frame, 0, len(attachments)+1)
	frames = append(frames, Frame{Binary: false, Data: []byte(encodeString(p))})
	for _, a := range attachments {
		frames = append(frames, Frame{Binary: true, Data: a})
	}
	return frames
}
