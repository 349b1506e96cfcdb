package protocol

import (
	"testing"

	"github.com/0xhappyboy/luminmq/internal/codec"
)

func TestMessageRoundTrip(t *testing.T) {
	m := Message{
		GroupID: "g",
		Topic:   "t",
		Kind:    KindBusiness,
		Role:    RoleSend,
		Status:  StatusNone,
		Payload: "hello",
	}
	w := codec.NewWriter(64)
	m.Encode(w)

	got, err := DecodeMessage(codec.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got != m {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestMessageRoundTripEmptyPayload(t *testing.T) {
	m := Message{GroupID: "g", Topic: "t", Kind: KindSystem, Role: RoleNone, Status: StatusNone}
	w := codec.NewWriter(64)
	m.Encode(w)

	got, err := DecodeMessage(codec.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got != m {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestFailReply(t *testing.T) {
	m := Message{GroupID: "g", Topic: "t", Kind: KindBusiness, Role: RolePull, Status: StatusNone, Payload: "hello"}
	reply := m.FailReply()
	if reply.Status != StatusFail || reply.Payload != "No message exists." {
		t.Fatalf("unexpected fail reply: %+v", reply)
	}
	if m.Status != StatusNone {
		t.Fatalf("original message mutated: %+v", m)
	}
}

func TestEnumNumericMapping(t *testing.T) {
	if KindSystem != 0 || KindBusiness != 1 || KindNone != 2 {
		t.Fatalf("msg-type numeric mapping drifted")
	}
	if RolePull != 0 || RoleSend != 1 || RoleNone != 2 {
		t.Fatalf("consumer-type numeric mapping drifted")
	}
	if StatusSuccess != 0 || StatusFail != 1 || StatusNone != 2 {
		t.Fatalf("status numeric mapping drifted")
	}
}
