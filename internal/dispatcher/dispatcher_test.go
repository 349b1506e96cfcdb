//go:build linux

package dispatcher

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/0xhappyboy/luminmq/internal/broker"
	"github.com/0xhappyboy/luminmq/internal/connreg"
	"github.com/0xhappyboy/luminmq/internal/handler"
	"github.com/0xhappyboy/luminmq/internal/protocol"
)

// boundAddr reads back the OS-assigned address of a listening socket
// created with port 0, so the test client knows where to dial.
func boundAddr(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", err
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "", fmt.Errorf("unexpected sockaddr type %T", sa)
	}
	return fmt.Sprintf("%s:%d", net.IP(in4.Addr[:]).String(), in4.Port), nil
}

func startTestDispatcher(t *testing.T) (addr string, groups *broker.GroupRegistry, stop chan struct{}) {
	t.Helper()
	conns := connreg.New()
	groups = broker.NewGroupRegistry(conns, protocol.DefaultMaxFrameBytes, time.Hour, nil, nil, zerolog.Nop())
	groups.Create("group-test", broker.Cluster)
	groups.InsertChannel("group-test", "topic-test", broker.ChannelPull)

	h := handler.New(groups, conns, protocol.DefaultMaxFrameBytes, nil, zerolog.Nop())

	d, err := New(Config{
		Addr:             "127.0.0.1:0",
		MaxFrameBytes:    protocol.DefaultMaxFrameBytes,
		DefaultBindGroup: "group-test",
		DefaultBindTopic: "topic-test",
	}, conns, h, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sa, err := boundAddr(d.listenFD)
	if err != nil {
		t.Fatalf("getsockname: %v", err)
	}

	stop = make(chan struct{})
	go func() {
		_ = d.Run(stop)
	}()
	t.Cleanup(func() {
		close(stop)
		d.Close()
	})
	return sa, groups, stop
}

func TestDispatcherAcceptsAndEnqueuesSend(t *testing.T) {
	addr, groups, _ := startTestDispatcher(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	msg := protocol.Message{GroupID: "group-test", Topic: "topic-test", Kind: protocol.KindBusiness, Role: protocol.RoleSend, Payload: "hello"}
	if err := protocol.WriteFrame(conn, msg, protocol.DefaultMaxFrameBytes); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if groups.MessageCount("group-test", "topic-test") == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected message to be enqueued, count = %d", groups.MessageCount("group-test", "topic-test"))
}
