package broker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xhappyboy/luminmq/internal/connreg"
	"github.com/0xhappyboy/luminmq/internal/protocol"
)

// GroupRegistry is the process-wide mapping from group-id to Group.
type GroupRegistry struct {
	mu     sync.RWMutex
	groups map[string]*Group

	conns         *connreg.Registry
	maxFrameBytes int
	tickInterval  time.Duration
	metrics       MetricsSink
	audit         AuditSink
	logger        zerolog.Logger
}

// NewGroupRegistry returns an empty GroupRegistry. conns is the
// Connection Registry every Channel created through this registry will
// deliver push frames through; metrics and audit may be nil.
func NewGroupRegistry(conns *connreg.Registry, maxFrameBytes int, tickInterval time.Duration, metrics MetricsSink, audit AuditSink, logger zerolog.Logger) *GroupRegistry {
	return &GroupRegistry{
		groups:        make(map[string]*Group),
		conns:         conns,
		maxFrameBytes: maxFrameBytes,
		tickInterval:  tickInterval,
		metrics:       metrics,
		audit:         audit,
		logger:        logger,
	}
}

// Create registers a new Group with the given mode. Creating a group with
// an id that already exists is a no-op; the existing group (and its mode)
// is left untouched. Creation starts the group's background tick.
func (r *GroupRegistry) Create(id string, mode GroupMode) *Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[id]; ok {
		return g
	}
	g := newGroup(id, mode, r.conns, r.maxFrameBytes, r.tickInterval, r.metrics, r.audit, r.logger)
	r.groups[id] = g
	g.Start()
	return g
}

// Get returns the Group for id, if it exists.
func (r *GroupRegistry) Get(id string) (*Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	return g, ok
}

// Contains reports whether id has a Group.
func (r *GroupRegistry) Contains(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// ContainsTopic reports whether (groupID, topic) has a Channel.
func (r *GroupRegistry) ContainsTopic(groupID, topic string) bool {
	g, ok := r.Get(groupID)
	if !ok {
		return false
	}
	return g.ContainsTopic(topic)
}

// InsertChannel creates topic's Channel under groupID's Group and starts
// its delivery worker. If groupID does not yet exist this is a silent
// no-op, matching the registry's contract that callers are responsible
// for creating the group first.
func (r *GroupRegistry) InsertChannel(groupID, topic string, mode ChannelMode) *Channel {
	g, ok := r.Get(groupID)
	if !ok {
		return nil
	}
	return g.InsertChannel(topic, mode)
}

// InsertMessage enqueues msg into (groupID, topic)'s Channel. It is a
// silent no-op when the group or topic does not exist.
func (r *GroupRegistry) InsertMessage(groupID, topic string, msg protocol.Message) {
	g, ok := r.Get(groupID)
	if !ok {
		return
	}
	ch, ok := g.GetChannel(topic)
	if !ok {
		return
	}
	ch.Enqueue(msg)
}

// GetChannelMode returns the channel-mode of (groupID, topic), if it
// exists.
func (r *GroupRegistry) GetChannelMode(groupID, topic string) (ChannelMode, bool) {
	g, ok := r.Get(groupID)
	if !ok {
		return ChannelNone, false
	}
	ch, ok := g.GetChannel(topic)
	if !ok {
		return ChannelNone, false
	}
	return ch.Mode(), true
}

// GetMessage dequeues one message from (groupID, topic)'s Channel. It
// returns ok=false when the group, topic, or queue is empty.
func (r *GroupRegistry) GetMessage(groupID, topic string) (protocol.Message, bool) {
	g, ok := r.Get(groupID)
	if !ok {
		return protocol.Message{}, false
	}
	ch, ok := g.GetChannel(topic)
	if !ok {
		return protocol.Message{}, false
	}
	return ch.Dequeue()
}

// GroupCount reports the number of registered groups.
func (r *GroupRegistry) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// MessageCount reports the number of queued messages for (groupID,
// topic), or 0 if it does not exist.
func (r *GroupRegistry) MessageCount(groupID, topic string) int {
	g, ok := r.Get(groupID)
	if !ok {
		return 0
	}
	ch, ok := g.GetChannel(topic)
	if !ok {
		return 0
	}
	return ch.Length()
}

// Groups returns a snapshot of every registered Group, for admin listing.
func (r *GroupRegistry) Groups() []*Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	return out
}

// Shutdown stops every group's heartbeat and every channel's delivery
// worker. No frames in flight are drained.
func (r *GroupRegistry) Shutdown() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.groups {
		g.Stop()
	}
}
