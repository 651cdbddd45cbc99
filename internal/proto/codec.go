package proto

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// Stream wire format:
// ┌─────────┬─────────────────────┐
// │ Length  │       Payload       │
// │ 4 bytes │ UTF-8 JSON envelope │
// │ (BE u32)│                     │
// └─────────┴─────────────────────┘
//
// Length counts the payload only.

const (
	// MaxFrameSize bounds a single payload.
	MaxFrameSize = 1 << 20

	headerSize  = 4
	readChunk   = 4096
	minBufAlloc = 4096
)

var (
	// ErrFrameTooLarge is returned when a length prefix exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	// ErrMalformedFrame is returned when a payload is not a valid envelope.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Encoder writes length-prefixed frames.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes f as a single length-prefixed record.
func (e *Encoder) Encode(f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)

	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Decoder reads length-prefixed frames. Bytes of a partially received frame
// stay buffered across calls, so Decode can be retried after a read timeout.
type Decoder struct {
	r   io.Reader
	buf []byte
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, buf: make([]byte, 0, minBufAlloc)}
}

// Buffered returns the number of bytes received but not yet decoded.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Decode returns the next frame.
func (d *Decoder) Decode() (Frame, error) {
	for {
		frame, n, err := d.parse()
		if err != nil {
			return Frame{}, err
		}
		if n > 0 {
			d.buf = d.buf[:copy(d.buf, d.buf[n:])]
			return frame, nil
		}
		if err := d.fill(); err != nil {
			return Frame{}, err
		}
	}
}

// parse decodes a frame from the buffered bytes. n is zero when more input
// is needed.
func (d *Decoder) parse() (Frame, int, error) {
	if len(d.buf) < headerSize {
		return Frame{}, 0, nil
	}
	size := binary.BigEndian.Uint32(d.buf)
	if size > MaxFrameSize {
		return Frame{}, 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	end := headerSize + int(size)
	if len(d.buf) < end {
		return Frame{}, 0, nil
	}

	frame, err := DecodeEnvelope(d.buf[headerSize:end])
	if err != nil {
		return Frame{}, 0, err
	}
	return frame, end, nil
}

func (d *Decoder) fill() error {
	if cap(d.buf)-len(d.buf) < readChunk {
		d.buf = slices.Grow(d.buf, readChunk)
	}
	n, err := d.r.Read(d.buf[len(d.buf):cap(d.buf)])
	d.buf = d.buf[:len(d.buf)+n]
	if n > 0 {
		return nil
	}
	if err == nil {
		return io.ErrNoProgress
	}
	return err
}

// DecodeEnvelope parses one JSON envelope.
func DecodeEnvelope(payload []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return f, nil
}
