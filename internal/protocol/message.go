// Package protocol implements the wire-level Message encoding and the
// head/body/end framing that carries it over a byte stream.
package protocol

import (
	"fmt"

	"github.com/0xhappyboy/luminmq/internal/codec"
)

// MessageKind classifies a Message's purpose on the wire.
type MessageKind uint16

const (
	KindSystem   MessageKind = 0
	KindBusiness MessageKind = 1
	KindNone     MessageKind = 2
)

func (k MessageKind) String() string {
	switch k {
	case KindSystem:
		return "system"
	case KindBusiness:
		return "business"
	default:
		return "none"
	}
}

// ConsumerRole classifies how a Business message should be handled.
type ConsumerRole uint16

const (
	RolePull ConsumerRole = 0
	RoleSend ConsumerRole = 1
	RoleNone ConsumerRole = 2
)

func (r ConsumerRole) String() string {
	switch r {
	case RolePull:
		return "pull"
	case RoleSend:
		return "send"
	default:
		return "none"
	}
}

// DeliveryStatus reports the outcome of a Pull reply.
type DeliveryStatus uint16

const (
	StatusSuccess DeliveryStatus = 0
	StatusFail    DeliveryStatus = 1
	StatusNone    DeliveryStatus = 2
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFail:
		return "fail"
	default:
		return "none"
	}
}

// Message is the logical routing envelope passed between the dispatcher,
// handler and channels. It is treated as a value type: every method that
// would "mutate" a field returns a new Message rather than modifying the
// receiver in place.
type Message struct {
	GroupID string
	Topic   string
	Kind    MessageKind
	Role    ConsumerRole
	Status  DeliveryStatus
	Payload string
}

// WithStatus returns a copy of m with Status replaced.
func (m Message) WithStatus(s DeliveryStatus) Message {
	m.Status = s
	return m
}

// WithPayload returns a copy of m with Payload replaced.
func (m Message) WithPayload(p string) Message {
	m.Payload = p
	return m
}

// FailReply builds the reply LuminMQ sends back to a Pull request when the
// channel's queue is empty: the original envelope with status=Fail and a
// fixed human-readable payload.
func (m Message) FailReply() Message {
	return m.WithStatus(StatusFail).WithPayload("No message exists.")
}

// SuccessReply builds the reply sent back for a successful Pull: the
// dequeued message with status=Success.
func (m Message) SuccessReply() Message {
	return m.WithStatus(StatusSuccess)
}

// The MessageDTO wire order is: group-id, topic, msg-type, consumer-type,
// status, data.

// Encode writes m's wire form (MessageDTO) into w.
func (m Message) Encode(w *codec.Writer) {
	w.WriteString(m.GroupID)
	w.WriteString(m.Topic)
	w.WriteUint16(uint16(m.Kind))
	w.WriteUint16(uint16(m.Role))
	w.WriteUint16(uint16(m.Status))
	w.WriteString(m.Payload)
}

// DecodeMessage reads a MessageDTO from r and returns the logical Message.
func DecodeMessage(r *codec.Reader) (Message, error) {
	var m Message
	groupID, err := r.ReadString()
	if err != nil {
		return m, fmt.Errorf("group-id: %w", err)
	}
	topic, err := r.ReadString()
	if err != nil {
		return m, fmt.Errorf("topic: %w", err)
	}
	kind, err := r.ReadUint16()
	if err != nil {
		return m, fmt.Errorf("msg-type: %w", err)
	}
	role, err := r.ReadUint16()
	if err != nil {
		return m, fmt.Errorf("consumer-type: %w", err)
	}
	status, err := r.ReadUint16()
	if err != nil {
		return m, fmt.Errorf("status: %w", err)
	}
	payload, err := r.ReadString()
	if err != nil {
		return m, fmt.Errorf("data: %w", err)
	}
	m.GroupID = groupID
	m.Topic = topic
	m.Kind = MessageKind(kind)
	m.Role = ConsumerRole(role)
	m.Status = DeliveryStatus(status)
	m.Payload = payload
	return m, nil
}

// EncodedSize returns the byte length of m's wire form. The codec contract
// computes size via encoding rather than separate size arithmetic.
func (m Message) EncodedSize() int {
	w := codec.NewWriter(64)
	m.Encode(w)
	return w.Len()
}
