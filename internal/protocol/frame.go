package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/0xhappyboy/luminmq/internal/codec"
)

// Identifier is the fixed literal that opens every Head.
const Identifier = "luminmq"

// EndMarker is the fixed literal that closes every Frame.
const EndMarker = "END"

// DefaultMaxFrameBytes is the ceiling on a decoded body-size before a Frame
// is rejected as oversize.
const DefaultMaxFrameBytes = 16 * 1024 * 1024

var (
	// ErrBadHead is returned when a decoded Head's identifier does not
	// match Identifier. The caller must still discard HeadSize bytes to
	// keep later framing attempts (on other connections) unaffected by
	// this one's desync; this connection itself is always closed.
	ErrBadHead = errors.New("protocol: bad frame head")
	// ErrOversizeFrame is returned when a Head's body-size exceeds the
	// configured maximum.
	ErrOversizeFrame = errors.New("protocol: oversize frame body")
	// ErrBadEnd is returned when the trailing marker does not decode to
	// EndMarker.
	ErrBadEnd = errors.New("protocol: bad frame end")
)

// HeadSize is the constant encoded byte length of a Head record. It never
// varies across a process run because Identifier and the body-size field
// are both fixed-format, so it is computed once here rather than on every
// frame.
var HeadSize = computeHeadSize()

func computeHeadSize() int {
	w := codec.NewWriter(16)
	w.WriteString(Identifier)
	w.WriteUint32(0)
	return w.Len()
}

// endSize is the constant encoded byte length of an End record.
var endSize = computeEndSize()

func computeEndSize() int {
	w := codec.NewWriter(8)
	w.WriteString(EndMarker)
	return w.Len()
}

// Frame is the head/body/end unit of transmission. Only the decoded body
// Message is kept; head and end are recomputed whenever a frame is written.
type Frame struct {
	Message Message
}

// ready encodes body, head and end into a single contiguous buffer, ready
// for one Write call. This mirrors the wire algorithm: body-size is
// recomputed from the current body encoding immediately before emission.
func ready(msg Message, maxFrameBytes int) ([]byte, error) {
	bodyW := codec.NewWriter(64)
	msg.Encode(bodyW)
	body := bodyW.Bytes()
	if len(body) > maxFrameBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrOversizeFrame, len(body), maxFrameBytes)
	}

	out := codec.NewWriter(HeadSize + len(body) + endSize)
	out.WriteString(Identifier)
	out.WriteUint32(uint32(len(body)))
	out.WriteBytes(body)
	out.WriteString(EndMarker)
	return out.Bytes(), nil
}

// WriteFrame encodes msg as a full Frame and emits it to w in a single
// Write call. A partial write is reported to the caller as fatal for this
// connection; there is no frame-level retry.
func WriteFrame(w io.Writer, msg Message, maxFrameBytes int) error {
	buf, err := ready(msg, maxFrameBytes)
	if err != nil {
		return err
	}
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("protocol: short write (%d of %d bytes)", n, len(buf))
	}
	return nil
}

// ErrNeedMore is returned by TryReadFrame when buf does not yet hold a
// complete frame. It is not a framing error: the caller should keep buf
// buffered and retry once more bytes arrive on the next readiness event.
var ErrNeedMore = errors.New("protocol: incomplete frame, need more data")

// TryReadFrame attempts to decode exactly one Frame from the head of buf
// without blocking. It is the non-blocking counterpart to ReadFrame, used
// by a readiness-driven dispatcher that only ever has "whatever bytes are
// currently buffered" rather than a blocking stream to read from.
//
// On success it returns the decoded Frame and the number of bytes
// consumed from the front of buf. If buf does not yet hold a complete
// frame it returns ErrNeedMore and the caller must leave buf untouched.
// Any other error is a genuine framing error (bad head, oversize, bad
// body, bad end) and the connection must be closed; on ErrBadHead the
// caller must still advance past HeadSize bytes (reflected in consumed)
// before giving up, per the same discard-then-close rule ReadFrame
// follows.
func TryReadFrame(buf []byte, maxFrameBytes int) (frame Frame, consumed int, err error) {
	if len(buf) < HeadSize {
		return Frame{}, 0, ErrNeedMore
	}
	hr := codec.NewReader(buf[:HeadSize])
	ident, err := hr.ReadString()
	if err != nil {
		return Frame{}, 0, fmt.Errorf("protocol: head: %w", err)
	}
	bodySize, err := hr.ReadUint32()
	if err != nil {
		return Frame{}, 0, fmt.Errorf("protocol: head: %w", err)
	}
	if ident != Identifier {
		return Frame{}, HeadSize, ErrBadHead
	}
	if int(bodySize) > maxFrameBytes {
		return Frame{}, HeadSize, fmt.Errorf("%w: %d > %d", ErrOversizeFrame, bodySize, maxFrameBytes)
	}

	total := HeadSize + int(bodySize) + endSize
	if len(buf) < total {
		return Frame{}, 0, ErrNeedMore
	}

	body := buf[HeadSize : HeadSize+int(bodySize)]
	msg, err := DecodeMessage(codec.NewReader(body))
	if err != nil {
		return Frame{}, total, fmt.Errorf("protocol: bad body: %w", err)
	}

	endBuf := buf[HeadSize+int(bodySize) : total]
	end, err := codec.NewReader(endBuf).ReadString()
	if err != nil {
		return Frame{}, total, fmt.Errorf("protocol: end: %w", err)
	}
	if end != EndMarker {
		return Frame{}, total, ErrBadEnd
	}

	return Frame{Message: msg}, total, nil
}

// ReadFrame decodes exactly one Frame from r.
//
// Steps, in order: fill until ≥ HeadSize bytes are available and decode
// Head; verify the identifier; read exactly body-size bytes and decode
// Body; read and verify the End marker. Any failure is reported as a
// typed error and the caller must treat the connection as unrecoverable —
// this function never attempts to resynchronize a misaligned stream.
func ReadFrame(r *bufio.Reader, maxFrameBytes int) (Frame, error) {
	head, err := r.Peek(HeadSize)
	if err != nil {
		// Short read: fewer than HeadSize bytes ever arrived (peer
		// closed or error). Not a framing error in the bad-head
		// sense, just propagate.
		return Frame{}, fmt.Errorf("protocol: head: %w", err)
	}
	hr := codec.NewReader(head)
	ident, err := hr.ReadString()
	if err != nil {
		return Frame{}, fmt.Errorf("protocol: head: %w", err)
	}
	bodySize, err := hr.ReadUint32()
	if err != nil {
		return Frame{}, fmt.Errorf("protocol: head: %w", err)
	}
	if ident != Identifier {
		if _, derr := r.Discard(HeadSize); derr != nil {
			return Frame{}, fmt.Errorf("%w (and discard failed: %v)", ErrBadHead, derr)
		}
		return Frame{}, ErrBadHead
	}
	if _, err := r.Discard(HeadSize); err != nil {
		return Frame{}, fmt.Errorf("protocol: head: %w", err)
	}

	if int(bodySize) > maxFrameBytes {
		return Frame{}, fmt.Errorf("%w: %d > %d", ErrOversizeFrame, bodySize, maxFrameBytes)
	}

	body := make([]byte, bodySize)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("protocol: body: %w", err)
	}
	msg, err := DecodeMessage(codec.NewReader(body))
	if err != nil {
		return Frame{}, fmt.Errorf("protocol: bad body: %w", err)
	}

	endBuf, err := r.Peek(endSize)
	if err != nil {
		return Frame{}, fmt.Errorf("protocol: end: %w", err)
	}
	end, err := codec.NewReader(endBuf).ReadString()
	if err != nil {
		return Frame{}, fmt.Errorf("protocol: end: %w", err)
	}
	if _, err := r.Discard(endSize); err != nil {
		return Frame{}, fmt.Errorf("protocol: end: %w", err)
	}
	if end != EndMarker {
		return Frame{}, ErrBadEnd
	}

	return Frame{Message: msg}, nil
}
