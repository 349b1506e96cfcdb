package handler

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xhappyboy/luminmq/internal/broker"
	"github.com/0xhappyboy/luminmq/internal/connreg"
	"github.com/0xhappyboy/luminmq/internal/protocol"
)

type fakeConn struct {
	net.Conn
	writes []protocol.Message
}

func (f *fakeConn) Write(p []byte) (int, error) {
	return len(p), nil
}
func (f *fakeConn) Close() error { return nil }

func newTestHandler(t *testing.T) (*Handler, *connreg.Registry, *broker.GroupRegistry) {
	t.Helper()
	conns := connreg.New()
	groups := broker.NewGroupRegistry(conns, protocol.DefaultMaxFrameBytes, time.Hour, nil, nil, zerolog.Nop())
	return New(groups, conns, protocol.DefaultMaxFrameBytes, nil, zerolog.Nop()), conns, groups
}

func TestHandleBusinessSendEnqueues(t *testing.T) {
	h, conns, groups := newTestHandler(t)
	groups.Create("g", broker.Cluster)
	groups.InsertChannel("g", "t", broker.ChannelPull)

	tok := conns.NextToken()
	conns.Insert(tok, &fakeConn{})

	msg := protocol.Message{GroupID: "g", Topic: "t", Kind: protocol.KindBusiness, Role: protocol.RoleSend, Payload: "hello"}
	if err := h.Handle(tok, msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := groups.MessageCount("g", "t"); got != 1 {
		t.Fatalf("expected message-count 1, got %d", got)
	}
}

func TestHandleBusinessPullSuccessThenEmpty(t *testing.T) {
	h, conns, groups := newTestHandler(t)
	groups.Create("g", broker.Cluster)
	groups.InsertChannel("g", "t", broker.ChannelPull)
	groups.InsertMessage("g", "t", protocol.Message{GroupID: "g", Topic: "t", Payload: "hello"})

	tok := conns.NextToken()
	conns.Insert(tok, &fakeConn{})

	pull := protocol.Message{GroupID: "g", Topic: "t", Kind: protocol.KindBusiness, Role: protocol.RolePull}
	if err := h.Handle(tok, pull); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := groups.MessageCount("g", "t"); got != 0 {
		t.Fatalf("expected queue drained, got count %d", got)
	}

	// Second pull on an empty queue must not error; the handler writes a
	// Fail reply rather than returning an error.
	if err := h.Handle(tok, pull); err != nil {
		t.Fatalf("Handle on empty queue: %v", err)
	}
}

func TestHandleSystemBind(t *testing.T) {
	h, conns, groups := newTestHandler(t)
	tok := conns.NextToken()
	conns.Insert(tok, &fakeConn{})

	bind := protocol.Message{Kind: protocol.KindSystem, Payload: "bind:g:t:pull"}
	if err := h.Handle(tok, bind); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if !groups.Contains("g") {
		t.Fatalf("expected bind to create group g")
	}
	mode, ok := groups.GetChannelMode("g", "t")
	if !ok || mode != broker.ChannelPull {
		t.Fatalf("expected pull channel mode, got %v ok=%v", mode, ok)
	}
	b, ok := conns.BindingFor(tok)
	if !ok || b.GroupID != "g" || b.Topic != "t" {
		t.Fatalf("expected token bound to g/t, got %+v ok=%v", b, ok)
	}
}

func TestHandlePullIgnoredWhenChannelIsPush(t *testing.T) {
	h, conns, groups := newTestHandler(t)
	groups.Create("g", broker.Cluster)
	groups.InsertChannel("g", "t", broker.ChannelPush)
	groups.InsertMessage("g", "t", protocol.Message{GroupID: "g", Topic: "t", Payload: "hello"})

	tok := conns.NextToken()
	conns.Insert(tok, &fakeConn{})

	pull := protocol.Message{GroupID: "g", Topic: "t", Kind: protocol.KindBusiness, Role: protocol.RolePull}
	if err := h.Handle(tok, pull); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := groups.MessageCount("g", "t"); got != 1 {
		t.Fatalf("expected pull against a push channel to be a no-op, count = %d", got)
	}
}

func TestHandleIgnoredKindNone(t *testing.T) {
	h, conns, _ := newTestHandler(t)
	tok := conns.NextToken()
	conns.Insert(tok, &fakeConn{})
	if err := h.Handle(tok, protocol.Message{Kind: protocol.KindNone}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
}
