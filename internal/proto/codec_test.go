package proto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// chunkReader hands out its data in fixed-size pieces and can inject an
// error once before a given offset.
type chunkReader struct {
	data    []byte
	chunk   int
	failAt  int
	failErr error
	failed  bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	if !r.failed && r.failErr != nil && r.failAt <= 0 {
		r.failed = true
		return 0, r.failErr
	}
	n := min(r.chunk, len(p), len(r.data))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	r.failAt -= n
	return n, nil
}

var errTimeout = errors.New("i/o timeout")

func encodeAll(t *testing.T, frames ...Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	return buf.Bytes()
}

func mustFrame(t *testing.T, typ string, data any) Frame {
	t.Helper()
	f, err := NewFrame(typ, data)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	return f
}

func TestDecoderReassemblesByteByByte(t *testing.T) {
	raw := encodeAll(t,
		mustFrame(t, TypeAuthResult, AuthResultData{OK: true}),
		mustFrame(t, TypeLine, LineDeltaData{
			Target: Target{Kind: "channel", Name: "#test"},
			Line:   LineData{TS: 1700000000000, Type: LineMessage, From: "alice", Text: "hi", Kind: "chat"},
		}),
	)

	dec := NewDecoder(&chunkReader{data: raw, chunk: 1})

	first, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	var res AuthResultData
	if err := first.Decode(&res); err != nil || !res.OK {
		t.Fatalf("unexpected auth result %+v, %v", res, err)
	}

	second, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}
	var delta LineDeltaData
	if err := second.Decode(&delta); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	if delta.Target.Name != "#test" || delta.Line.Text != "hi" || delta.Line.From != "alice" {
		t.Fatalf("unexpected delta: %+v", delta)
	}

	if _, err := dec.Decode(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestDecoderResumesAfterTimeoutMidFrame(t *testing.T) {
	raw := encodeAll(t, mustFrame(t, TypeControl, ControlData{Kind: ControlPing}))

	r := &chunkReader{data: raw, chunk: 3, failAt: 6, failErr: errTimeout}
	dec := NewDecoder(r)

	if _, err := dec.Decode(); !errors.Is(err, errTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if dec.Buffered() == 0 {
		t.Fatal("expected partial frame to stay buffered")
	}

	f, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode after timeout: %v", err)
	}
	var ctl ControlData
	if err := f.Decode(&ctl); err != nil || ctl.Kind != ControlPing {
		t.Fatalf("unexpected control %+v, %v", ctl, err)
	}
	if dec.Buffered() != 0 {
		t.Fatalf("expected empty buffer, got %d bytes", dec.Buffered())
	}
}

func TestDecoderIgnoresUnknownFields(t *testing.T) {
	payload := []byte(`{"type":"auth_result","version":7,"data":{"ok":false,"reason":"bad password","retry_after":30}}`)
	var raw bytes.Buffer
	_ = binary.Write(&raw, binary.BigEndian, uint32(len(payload)))
	raw.Write(payload)

	f, err := NewDecoder(&raw).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var res AuthResultData
	if err := f.Decode(&res); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if res.OK || res.Reason != "bad password" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDecoderRejectsOversizedFrame(t *testing.T) {
	var raw bytes.Buffer
	_ = binary.Write(&raw, binary.BigEndian, uint32(MaxFrameSize+1))

	if _, err := NewDecoder(&raw).Decode(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecoderRejectsMalformedPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "RIDE[garbage"},
		{"missing type", `{"data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw bytes.Buffer
			_ = binary.Write(&raw, binary.BigEndian, uint32(len(tt.payload)))
			raw.WriteString(tt.payload)

			if _, err := NewDecoder(&raw).Decode(); !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("expected ErrMalformedFrame, got %v", err)
			}
		})
	}
}

func TestFrameDecodeWithoutData(t *testing.T) {
	f, err := NewFrame(TypeControl, nil)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	var ctl ControlData
	if err := f.Decode(&ctl); err == nil {
		t.Fatal("expected error decoding empty frame")
	}
}
