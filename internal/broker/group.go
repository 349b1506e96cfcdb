package broker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xhappyboy/luminmq/internal/connreg"
)

// heartbeatInterval paces the Group-level tick used only to keep a live
// per-topic queue-depth gauge fresh; it carries no delivery semantics of
// its own (that lives in Channel.tick).
const heartbeatInterval = time.Second

// Group is a delivery-policy scope: a fixed mode plus a mapping from
// topic name to Channel.
type Group struct {
	ID   string
	Mode GroupMode

	mu       sync.RWMutex
	channels map[string]*Channel

	conns         *connreg.Registry
	maxFrameBytes int
	tickInterval  time.Duration
	metrics       MetricsSink
	audit         AuditSink
	logger        zerolog.Logger

	startOnce sync.Once
	done      chan struct{}
}

func newGroup(id string, mode GroupMode, conns *connreg.Registry, maxFrameBytes int, tickInterval time.Duration, metrics MetricsSink, audit AuditSink, logger zerolog.Logger) *Group {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if audit == nil {
		audit = noopAudit{}
	}
	return &Group{
		ID:            id,
		Mode:          mode,
		channels:      make(map[string]*Channel),
		conns:         conns,
		maxFrameBytes: maxFrameBytes,
		tickInterval:  tickInterval,
		metrics:       metrics,
		audit:         audit,
		logger:        logger.With().Str("group", id).Logger(),
		done:          make(chan struct{}),
	}
}

// InsertChannel creates topic's Channel if it does not already exist and
// starts its delivery worker immediately. Inserting a duplicate topic is
// a no-op that returns the existing Channel.
func (g *Group) InsertChannel(topic string, mode ChannelMode) *Channel {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ch, ok := g.channels[topic]; ok {
		return ch
	}
	ch := newChannel(g.ID, topic, g.Mode, mode, g.conns, g.maxFrameBytes, g.tickInterval, g.metrics, g.audit, g.logger)
	g.channels[topic] = ch
	ch.Start()
	return ch
}

// GetChannel returns topic's Channel, if it exists.
func (g *Group) GetChannel(topic string) (*Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ch, ok := g.channels[topic]
	return ch, ok
}

// ContainsTopic reports whether topic has a Channel.
func (g *Group) ContainsTopic(topic string) bool {
	_, ok := g.GetChannel(topic)
	return ok
}

// Topics returns the names of every Channel in the group.
func (g *Group) Topics() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.channels))
	for t := range g.channels {
		out = append(out, t)
	}
	return out
}

// Start launches the Group's own background heartbeat tick. Safe to call
// more than once.
func (g *Group) Start() {
	g.startOnce.Do(func() {
		go g.run()
	})
}

// Stop signals the Group's heartbeat and every owned Channel's delivery
// worker to exit.
func (g *Group) Stop() {
	select {
	case <-g.done:
	default:
		close(g.done)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, ch := range g.channels {
		ch.Stop()
	}
}

// run is the Group's own tick loop. The reference sources give each group
// a periodic no-op tick; here it refreshes the queue-depth gauge across
// every channel so it stays live even for topics with no recent
// enqueue/dequeue activity.
func (g *Group) run() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			g.mu.RLock()
			for topic, ch := range g.channels {
				g.metrics.SetQueueDepth(g.ID, topic, ch.Length())
			}
			g.mu.RUnlock()
		}
	}
}
