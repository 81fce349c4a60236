package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	HeaderSize     = 6
	MaxPayloadSize = 64*1024 - HeaderSize
)

// ErrOversizedFrame is returned when a frame's declared payload length
// exceeds MaxPayloadSize. The caller must treat the session as fatally
// broken, mirroring the frontend accept-loop's buffer-overflow handling.
var ErrOversizedFrame = errors.New("wire: frame exceeds maximum payload size")

// Frame is a single decoded unit: message id plus raw JSON payload bytes.
type Frame struct {
	MessageID MessageID
	Payload   []byte
}

// Encode renders a frame as header||payload, ready to write to the socket.
func Encode(id MessageID, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("wire: encode %d bytes: %w", len(payload), ErrOversizedFrame)
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(id))
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// EncodeJSON marshals v and encodes it as the payload for id.
func EncodeJSON(id MessageID, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal payload for %#04x: %w", id, err)
	}
	return Encode(id, payload)
}

// Decoder accumulates bytes read from a connection and yields complete
// frames as they become available, buffering partial frames in between
// calls. It never blocks — Feed only appends, Next only drains what is
// already present. This mirrors the growable-receive-buffer idiom of a
// classic accept-loop, adapted to this protocol's fixed 6-byte header.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, 4096)}
}

// Feed appends newly-read bytes to the decode buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next drains and returns the next complete frame, if any is buffered.
// ok is false when only a partial frame (or nothing) remains; err is set
// only on ErrOversizedFrame, which is fatal for the owning session.
func (d *Decoder) Next() (frame Frame, ok bool, err error) {
	if len(d.buf) < HeaderSize {
		return Frame{}, false, nil
	}
	id := MessageID(binary.BigEndian.Uint16(d.buf[0:2]))
	length := binary.BigEndian.Uint32(d.buf[2:6])
	if length > MaxPayloadSize {
		return Frame{}, false, fmt.Errorf("wire: declared length %d: %w", length, ErrOversizedFrame)
	}
	total := HeaderSize + int(length)
	if len(d.buf) < total {
		return Frame{}, false, nil
	}

	payload := make([]byte, length)
	copy(payload, d.buf[HeaderSize:total])

	remaining := len(d.buf) - total
	copy(d.buf, d.buf[total:])
	d.buf = d.buf[:remaining]

	return Frame{MessageID: id, Payload: payload}, true, nil
}
