package broker

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xhappyboy/luminmq/internal/connreg"
	"github.com/0xhappyboy/luminmq/internal/protocol"
)

// Channel is the per-(group, topic) FIFO queue plus, in Push mode, the
// background worker that delivers queued messages to bound connections.
type Channel struct {
	groupID string
	topic   string

	groupMode GroupMode
	mode      ChannelMode

	mu    sync.Mutex
	queue []protocol.Message

	conns         *connreg.Registry
	maxFrameBytes int
	tickInterval  time.Duration
	metrics       MetricsSink
	audit         AuditSink
	logger        zerolog.Logger

	startOnce sync.Once
	done      chan struct{}
}

// newChannel constructs a Channel. metrics and audit may be nil, in which
// case no-op implementations are used; conns must be non-nil before Start
// runs, since every push tick looks up bound tokens through it.
func newChannel(groupID, topic string, groupMode GroupMode, mode ChannelMode, conns *connreg.Registry, maxFrameBytes int, tickInterval time.Duration, metrics MetricsSink, audit AuditSink, logger zerolog.Logger) *Channel {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if audit == nil {
		audit = noopAudit{}
	}
	return &Channel{
		groupID:       groupID,
		topic:         topic,
		groupMode:     groupMode,
		mode:          mode,
		conns:         conns,
		maxFrameBytes: maxFrameBytes,
		tickInterval:  tickInterval,
		metrics:       metrics,
		audit:         audit,
		logger:        logger.With().Str("group", groupID).Str("topic", topic).Logger(),
		done:          make(chan struct{}),
	}
}

// Mode reports the channel's delivery posture.
func (c *Channel) Mode() ChannelMode { return c.mode }

// Enqueue appends msg to the tail of the FIFO queue.
func (c *Channel) Enqueue(msg protocol.Message) {
	c.mu.Lock()
	c.queue = append(c.queue, msg)
	depth := len(c.queue)
	c.mu.Unlock()
	c.metrics.ObserveEnqueue(c.groupID, c.topic)
	c.metrics.SetQueueDepth(c.groupID, c.topic, depth)
}

// Dequeue removes and returns the message at the head of the queue, or
// ok=false if the queue is empty.
func (c *Channel) Dequeue() (msg protocol.Message, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return protocol.Message{}, false
	}
	msg = c.queue[0]
	c.queue = c.queue[1:]
	c.metrics.SetQueueDepth(c.groupID, c.topic, len(c.queue))
	return msg, true
}

// IsEmpty reports whether the queue currently has no messages.
func (c *Channel) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) == 0
}

// Length reports the number of messages currently queued.
func (c *Channel) Length() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Start launches the delivery worker if and only if the channel is in
// Push mode. It is safe to call more than once; only the first call has
// effect.
func (c *Channel) Start() {
	if c.mode != ChannelPush {
		return
	}
	c.startOnce.Do(func() {
		go c.run()
	})
}

// Stop signals the delivery worker to exit. It does not drain in-flight
// frames; per the concurrency model, shutdown leaves no delivery guarantee
// for messages mid-tick.
func (c *Channel) Stop() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Channel) run() {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick runs one delivery round. Broadcast dequeues at most one message per
// tick and fans it out to every token bound at that moment; Cluster
// chooses one bound token uniformly at random and delivers one dequeued
// message to it. Neither mode dequeues when no tokens are bound.
func (c *Channel) tick() {
	tokens := c.conns.TokensFor(c.groupID, c.topic)
	if len(tokens) == 0 {
		return
	}

	switch c.groupMode {
	case Broadcast:
		msg, ok := c.Dequeue()
		if !ok {
			return
		}
		for _, tok := range tokens {
			c.deliver(tok, msg)
		}
	case Cluster:
		tok := tokens[rand.Intn(len(tokens))]
		msg, ok := c.Dequeue()
		if !ok {
			return
		}
		c.deliver(tok, msg)
	}
}

func (c *Channel) deliver(token int, msg protocol.Message) {
	handled, err := c.conns.Handle(token, func(conn *connreg.Connection) error {
		if conn.Conn == nil {
			return nil
		}
		return protocol.WriteFrame(conn.Conn, msg, c.maxFrameBytes)
	})
	if err != nil {
		c.logger.Warn().Err(err).Int("token", token).Msg("push delivery failed")
		c.conns.Remove(token)
		return
	}
	if !handled {
		return
	}
	c.metrics.ObserveFrameWrite()
	c.metrics.ObserveDelivery(c.groupID, c.topic, c.groupMode.String())
	c.audit.RecordDelivery(c.groupID, c.topic, "push", []byte(msg.Payload))
}
