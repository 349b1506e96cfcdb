// Package handler implements the per-frame action dispatch: enqueue
// (Send), dequeue-and-reply (Pull), push fan-out binding (System), exactly
// as driven by the Dispatcher for each decoded inbound frame.
package handler

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/0xhappyboy/luminmq/internal/broker"
	"github.com/0xhappyboy/luminmq/internal/connreg"
	"github.com/0xhappyboy/luminmq/internal/protocol"
)

// bindPrefix opens a System message payload that requests a (group,
// topic, channel-mode) binding: "bind:<group-id>:<topic-name>:<channel-mode>".
// This is the sub-protocol this implementation defines to resolve the
// reference sources' open TODO on System message semantics; the wire
// schema (MessageDTO) itself is untouched, the convention lives entirely
// in the opaque payload string.
const bindPrefix = "bind"

// defaultGroupMode is used when a bind request names a group that does
// not exist yet; the admin API remains the normal way to choose Cluster
// vs Broadcast, so a producer-driven implicit create defaults to the less
// surprising per-consumer delivery discipline.
const defaultGroupMode = broker.Cluster

// Handler wires decoded frames to the broker's registries.
type Handler struct {
	groups        *broker.GroupRegistry
	conns         *connreg.Registry
	maxFrameBytes int
	metrics       broker.MetricsSink
	logger        zerolog.Logger
}

// New returns a Handler bound to groups and conns. metrics may be nil, in
// which case pull/write observations are silently dropped.
func New(groups *broker.GroupRegistry, conns *connreg.Registry, maxFrameBytes int, metrics broker.MetricsSink, logger zerolog.Logger) *Handler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Handler{groups: groups, conns: conns, maxFrameBytes: maxFrameBytes, metrics: metrics, logger: logger}
}

type noopMetrics struct{}

func (noopMetrics) ObserveEnqueue(string, string)          {}
func (noopMetrics) ObserveDelivery(string, string, string) {}
func (noopMetrics) ObservePullEmpty(string, string)        {}
func (noopMetrics) ObserveFrameWrite()                     {}
func (noopMetrics) SetQueueDepth(string, string, int)      {}

// Handle processes one decoded inbound Message from the connection
// identified by token. Any returned error means the caller (the
// Dispatcher) must close and deregister the connection; Handle itself
// never does so, since only the Dispatcher holds the readiness-loop
// context for that.
func (h *Handler) Handle(token int, msg protocol.Message) error {
	switch msg.Kind {
	case protocol.KindSystem:
		h.handleSystem(token, msg)
	case protocol.KindBusiness:
		return h.handleBusiness(token, msg)
	default:
		// kind = None: ignored.
	}
	return nil
}

func (h *Handler) handleSystem(token int, msg protocol.Message) {
	groupID, topic, mode, ok := parseBind(msg.Payload)
	if !ok {
		// Reference fallback: bind from the envelope's own group/topic
		// fields as-is, creating the channel in Push mode if it is new.
		groupID, topic = msg.GroupID, msg.Topic
		mode = broker.ChannelPush
	}
	if groupID == "" || topic == "" {
		return
	}
	if !h.groups.Contains(groupID) {
		h.groups.Create(groupID, defaultGroupMode)
	}
	h.groups.InsertChannel(groupID, topic, mode)
	h.conns.Bind(token, groupID, topic)
}

func (h *Handler) handleBusiness(token int, msg protocol.Message) error {
	switch msg.Role {
	case protocol.RoleSend:
		h.groups.InsertMessage(msg.GroupID, msg.Topic, msg)
		return nil
	case protocol.RolePull:
		return h.handlePull(token, msg)
	default:
		// role = None: ignored.
		return nil
	}
}

func (h *Handler) handlePull(token int, msg protocol.Message) error {
	mode, exists := h.groups.GetChannelMode(msg.GroupID, msg.Topic)
	if !exists || mode != broker.ChannelPull {
		return nil
	}
	reply, ok := h.groups.GetMessage(msg.GroupID, msg.Topic)
	if !ok {
		h.metrics.ObservePullEmpty(msg.GroupID, msg.Topic)
		reply = msg.FailReply()
	} else {
		reply = reply.SuccessReply()
	}
	handled, err := h.conns.Handle(token, func(conn *connreg.Connection) error {
		if conn.Conn == nil {
			return nil
		}
		return protocol.WriteFrame(conn.Conn, reply, h.maxFrameBytes)
	})
	if err != nil {
		h.logger.Warn().Err(err).Int("token", token).Msg("pull reply failed")
		return err
	}
	if handled {
		h.metrics.ObserveFrameWrite()
	}
	return nil
}

// parseBind parses a "bind:<group-id>:<topic-name>:<channel-mode>" System
// payload. channel-mode may be empty, in which case ParseChannelMode
// supplies the default.
func parseBind(payload string) (groupID, topic string, mode broker.ChannelMode, ok bool) {
	parts := strings.SplitN(payload, ":", 4)
	if len(parts) < 3 || parts[0] != bindPrefix {
		return "", "", broker.ChannelNone, false
	}
	groupID, topic = parts[1], parts[2]
	modeStr := ""
	if len(parts) == 4 {
		modeStr = parts[3]
	}
	parsedMode, err := broker.ParseChannelMode(strings.ToLower(modeStr))
	if err != nil {
		return "", "", broker.ChannelNone, false
	}
	if groupID == "" || topic == "" {
		return "", "", broker.ChannelNone, false
	}
	return groupID, topic, parsedMode, true
}
