package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tristanpoland/socketioxide/pkg/types"
)

// ReservedEvents are event names with protocol-level meaning; a namespace
// must reject a host application trying to emit one of these directly.
var ReservedEvents = types.NewSet(
	"connect",
	"connect_error",
	"disconnect",
	"disconnecting",
)

var (
	ErrPlaintextDuringReconstruction = errors.New("got a text frame while reconstructing a binary packet")
	ErrBinaryWithoutReconstruction   = errors.New("got a binary frame when no packet is being reconstructed")
	ErrInvalidPayload                = errors.New("invalid payload")
	ErrIllegalNamespace               = errors.New("illegal namespace")
	ErrIllegalID                      = errors.New("illegal packet id")
)

// Decoder turns a stream of frames (as delivered by the Engine.IO session,
// one "message" event at a time) back into Packets, buffering
// binary attachments until a BinaryEvent/BinaryAck packet's declared
// attachment count is satisfied.
type Decoder struct {
	*types.EventEmitter

	mu            sync.Mutex
	reconstructing *Packet
	attachments    [][]byte
}

// NewDecoder creates a Decoder. It emits "decoded" with the completed
// *Packet each time one is fully assembled.
func NewDecoder() *Decoder {
	return &Decoder{EventEmitter: types.NewEventEmitter()}
}

// AddText feeds one text frame (a packet header, or a standalone
// non-binary packet) into the decoder.
func (d *Decoder) AddText(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reconstructing != nil {
		return ErrPlaintextDuringReconstruction
	}

	p, err := decodeHeader(data)
	if err != nil {
		return err
	}

	if p.Type == BinaryEvent || p.Type == BinaryAck {
		if p.Attachments == 0 {
			d.Emit("decoded", p)
			return nil
		}
		d.reconstructing = p
		d.attachments = nil
		return nil
	}

	d.Emit("decoded", p)
	return nil
}

// AddBinary feeds one binary attachment frame into the decoder, completing
// and emitting the in-progress packet once every declared attachment has
// arrived.
func (d *Decoder) AddBinary(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reconstructing == nil {
		return ErrBinaryWithoutReconstruction
	}
	d.attachments = append(d.attachments, data)

	if uint64(len(d.attachments)) < d.reconstructing.Attachments {
		return nil
	}

	rebuilt, err := Reconstruct(d.reconstructing.Data, d.attachments)
	if err != nil {
		d.reconstructing = nil
		d.attachments = nil
		return err
	}
	p := d.reconstructing
	p.Data = rebuilt
	d.reconstructing = nil
	d.attachments = nil

	d.Emit("decoded", p)
	return nil
}

// Reconstructing reports whether the decoder currently awaits binary
// attachments for an in-progress packet.
func (d *Decoder) Reconstructing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reconstructing != nil
}

func decodeHeader(data []byte) (*Packet, error) {
	s := string(data)
	p := &Packet{}

	if len(s) == 0 {
		return nil, ErrInvalidPayload
	}
	typeDigit := s[0] - '0'
	p.Type = Type(typeDigit)
	if !p.Type.Valid() {
		return nil, fmt.Errorf("unknown packet type %d", typeDigit)
	}
	s = s[1:]

	if p.Type == BinaryEvent || p.Type == BinaryAck {
		dash := strings.IndexByte(s, '-')
		if dash < 1 {
			return nil, ErrIllegalID
		}
		count, err := strconv.ParseUint(s[:dash], 10, 64)
		if err != nil {
			return nil, ErrIllegalID
		}
		p.Attachments = count
		s = s[dash+1:]
	}

	p.Namespace = "/"
	if len(s) > 0 && s[0] == '/' {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			p.Namespace = s
			s = ""
		} else {
			p.Namespace = s[:comma]
			s = s[comma+1:]
		}
	}

	idEnd := 0
	for idEnd < len(s) && s[idEnd] >= '0' && s[idEnd] <= '9' {
		idEnd++
	}
	if idEnd > 0 {
		id, err := strconv.ParseUint(s[:idEnd], 10, 64)
		if err != nil {
			return nil, ErrIllegalID
		}
		p.ID = &id
		s = s[idEnd:]
	}

	if len(s) > 0 {
		var payload any
		if err := json.Unmarshal([]byte(s), &payload); err != nil {
			return nil, ErrInvalidPayload
		}
		p.Data = payload
	}

	return p, nil
}
