package codec

import "testing"

func TestRoundTripPrimitives(t *testing.T) {
	w := NewWriter(32)
	w.WriteUint8(7)
	w.WriteUint16(1234)
	w.WriteUint32(987654321)
	w.WriteUint64(1<<40 + 3)
	w.WriteString("luminmq")

	r := NewReader(w.Bytes())
	if v, err := r.ReadUint8(); err != nil || v != 7 {
		t.Fatalf("ReadUint8 = %v, %v", v, err)
	}
	if v, err := r.ReadUint16(); err != nil || v != 1234 {
		t.Fatalf("ReadUint16 = %v, %v", v, err)
	}
	if v, err := r.ReadUint32(); err != nil || v != 987654321 {
		t.Fatalf("ReadUint32 = %v, %v", v, err)
	}
	if v, err := r.ReadUint64(); err != nil || v != 1<<40+3 {
		t.Fatalf("ReadUint64 = %v, %v", v, err)
	}
	if s, err := r.ReadString(); err != nil || s != "luminmq" {
		t.Fatalf("ReadString = %q, %v", s, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected reader exhausted, got %d bytes remaining", r.Remaining())
	}
}

func TestReadStringEmpty(t *testing.T) {
	w := NewWriter(4)
	w.WriteString("")
	r := NewReader(w.Bytes())
	s, err := r.ReadString()
	if err != nil || s != "" {
		t.Fatalf("ReadString = %q, %v", s, err)
	}
}

func TestShortRead(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.ReadUint32(); err != ErrShortRead {
		t.Fatalf("expected ErrShortRead, got %v", err)
	}
}

func TestOversizeLength(t *testing.T) {
	w := NewWriter(8)
	w.WriteString("hello world")
	r := NewReaderWithLimit(w.Bytes(), 4)
	if _, err := r.ReadString(); err == nil {
		t.Fatalf("expected oversize length error, got nil")
	}
}

func TestTruncatedStringBody(t *testing.T) {
	w := NewWriter(8)
	w.WriteString("hello")
	// Truncate after the length prefix so the body is short.
	truncated := w.Bytes()[:1]
	r := NewReader(truncated)
	if _, err := r.ReadString(); err != ErrShortRead {
		t.Fatalf("expected ErrShortRead, got %v", err)
	}
}
