package broker

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xhappyboy/luminmq/internal/connreg"
	"github.com/0xhappyboy/luminmq/internal/protocol"
)

func testRegistry() *GroupRegistry {
	conns := connreg.New()
	return NewGroupRegistry(conns, protocol.DefaultMaxFrameBytes, 10*time.Millisecond, nil, nil, zerolog.Nop())
}

func TestChannelFIFOOrder(t *testing.T) {
	reg := testRegistry()
	reg.Create("g", Cluster)
	ch := reg.InsertChannel("g", "t", ChannelPull)

	for i := 0; i < 5; i++ {
		ch.Enqueue(protocol.Message{GroupID: "g", Topic: "t", Payload: string(rune('a' + i))})
	}
	for i := 0; i < 5; i++ {
		msg, ok := ch.Dequeue()
		if !ok {
			t.Fatalf("expected message %d", i)
		}
		if msg.Payload != string(rune('a'+i)) {
			t.Fatalf("FIFO order violated: got %q at position %d", msg.Payload, i)
		}
	}
	if !ch.IsEmpty() {
		t.Fatalf("expected channel empty after draining")
	}
}

func TestInsertMessageNoopOnMissingGroup(t *testing.T) {
	reg := testRegistry()
	reg.InsertMessage("nope", "nope", protocol.Message{Payload: "x"})
	if reg.MessageCount("nope", "nope") != 0 {
		t.Fatalf("expected no message counted for missing group")
	}
}

func TestCreateIdempotent(t *testing.T) {
	reg := testRegistry()
	g1 := reg.Create("g", Cluster)
	g2 := reg.Create("g", Broadcast)
	if g1 != g2 {
		t.Fatalf("expected Create to be idempotent and return the same Group")
	}
	if g2.Mode != Cluster {
		t.Fatalf("expected second Create to be a no-op, mode changed to %v", g2.Mode)
	}
}

func TestInsertChannelIdempotent(t *testing.T) {
	reg := testRegistry()
	reg.Create("g", Cluster)
	ch1 := reg.InsertChannel("g", "t", ChannelPull)
	ch2 := reg.InsertChannel("g", "t", ChannelPush)
	if ch1 != ch2 {
		t.Fatalf("expected InsertChannel to be idempotent")
	}
	if ch2.Mode() != ChannelPull {
		t.Fatalf("expected second InsertChannel to be a no-op, mode changed to %v", ch2.Mode())
	}
}

// fakeConn implements net.Conn with a recording Write, sufficient for
// exercising Channel delivery without a real socket.
type fakeConn struct {
	net.Conn
	writes [][]byte
}

func (f *fakeConn) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	f.writes = append(f.writes, cp)
	return len(p), nil
}
func (f *fakeConn) Close() error { return nil }

func TestBroadcastFanOutDeliversToAllBoundTokens(t *testing.T) {
	conns := connreg.New()
	reg := NewGroupRegistry(conns, protocol.DefaultMaxFrameBytes, 5*time.Millisecond, nil, nil, zerolog.Nop())
	reg.Create("g", Broadcast)
	ch := reg.InsertChannel("g", "t", ChannelPush)

	fakes := make([]*fakeConn, 3)
	for i := range fakes {
		tok := conns.NextToken()
		fakes[i] = &fakeConn{}
		conns.Insert(tok, fakes[i])
		conns.Bind(tok, "g", "t")
	}

	ch.Enqueue(protocol.Message{GroupID: "g", Topic: "t", Payload: "hi"})

	deadline := time.After(500 * time.Millisecond)
	for {
		allWrote := true
		for _, f := range fakes {
			if len(f.writes) == 0 {
				allWrote = false
			}
		}
		if allWrote {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for broadcast fan-out")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !ch.IsEmpty() {
		t.Fatalf("expected queue drained after broadcast tick")
	}
}

func TestClusterDeliversToExactlyOneToken(t *testing.T) {
	conns := connreg.New()
	reg := NewGroupRegistry(conns, protocol.DefaultMaxFrameBytes, 5*time.Millisecond, nil, nil, zerolog.Nop())
	reg.Create("g", Cluster)
	ch := reg.InsertChannel("g", "t", ChannelPush)

	fakes := make([]*fakeConn, 3)
	for i := range fakes {
		tok := conns.NextToken()
		fakes[i] = &fakeConn{}
		conns.Insert(tok, fakes[i])
		conns.Bind(tok, "g", "t")
	}

	ch.Enqueue(protocol.Message{GroupID: "g", Topic: "t", Payload: "hi"})

	deadline := time.After(500 * time.Millisecond)
	for {
		total := 0
		for _, f := range fakes {
			total += len(f.writes)
		}
		if total == 1 {
			break
		}
		if total > 1 {
			t.Fatalf("expected exactly one delivery, got %d", total)
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for cluster delivery")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if !ch.IsEmpty() {
		t.Fatalf("expected queue drained after cluster tick")
	}
}
