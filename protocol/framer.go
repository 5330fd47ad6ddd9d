package protocol

import (
	// Go Internal Packages
	"bytes"
	"encoding/json"
	"fmt"
)

// Framing bytes of the terminal link.
const (
	STX byte = 0x02
	ETX byte = 0x03
	LF  byte = 0x0A
	CR  byte = 0x0D
	NUL byte = 0x00
)

// WrapPayload lays a JSON payload out in the frame format the terminal
// expects: STX LF payload LF ETX LF. The caller writes it in one piece.
func WrapPayload(payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+4)
	buf = append(buf, STX, LF)
	buf = append(buf, payload...)
	buf = append(buf, LF, ETX, LF)
	return buf
}

// EncodeFrame marshals v and wraps it in the terminal framing.
func EncodeFrame(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return WrapPayload(payload), nil
}

// Frame is one decoded inbound frame. Err is set when the captured
// payload was not valid JSON; the decoder has already moved past the
// frame, so the stream stays in sync.
type Frame struct {
	Raw  []byte
	JSON json.RawMessage
	Err  error
}

// Decoder reassembles frames from an arbitrary chunking of the inbound
// byte stream. Bytes before a start marker are discarded and a partial
// frame is retained until its end marker arrives.
type Decoder struct {
	pending []byte
}

// Feed appends p to the pending buffer and returns every complete
// frame now available, in arrival order.
func (d *Decoder) Feed(p []byte) []Frame {
	d.pending = append(d.pending, p...)

	var frames []Frame
	for {
		start := bytes.IndexByte(d.pending, STX)
		if start < 0 {
			d.pending = d.pending[:0]
			return frames
		}
		if start > 0 {
			d.pending = d.pending[start:]
		}

		end := bytes.IndexByte(d.pending, ETX)
		if end < 0 {
			return frames
		}

		raw := make([]byte, end+1)
		copy(raw, d.pending[:end+1])
		d.pending = d.pending[end+1:]

		frames = append(frames, decodeFrame(raw))
	}
}

func decodeFrame(raw []byte) Frame {
	payload := scrub(raw[1 : len(raw)-1])
	if !json.Valid(payload) {
		return Frame{Raw: raw, Err: fmt.Errorf("frame payload is not valid JSON")}
	}
	return Frame{Raw: raw, JSON: payload}
}

// scrub drops the framing and filler bytes a captured payload may
// carry before it is parsed as JSON.
func scrub(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case STX, ETX, LF, CR, NUL:
		default:
			out = append(out, c)
		}
	}
	return out
}
