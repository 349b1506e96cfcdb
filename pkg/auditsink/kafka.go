// Package auditsink implements broker.AuditSink on top of a Kafka/Redpanda
// producer, adapted from the reference franz-go consumer: same client
// construction and lifecycle shape, run in reverse as a best-effort
// producer rather than a consumer.
package auditsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// record is the JSON body written for every delivered message.
type record struct {
	GroupID   string `json:"group_id"`
	Topic     string `json:"topic"`
	Mode      string `json:"mode"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Sink is a best-effort Kafka audit producer: a failed or slow broker
// never blocks delivery, it only loses audit records. It implements
// broker.AuditSink without importing the broker package, keeping the
// dependency direction one-way.
type Sink struct {
	client *kgo.Client
	logger zerolog.Logger
}

// Config configures a Sink.
type Config struct {
	Brokers []string
	Logger  zerolog.Logger
}

// New builds a Sink. It dials no broker synchronously; franz-go connects
// lazily on first produce.
func New(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("auditsink: at least one broker is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchMaxBytes(1024*1024),
		kgo.ProduceRequestTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("auditsink: failed to create kafka client: %w", err)
	}
	return &Sink{client: client, logger: cfg.Logger}, nil
}

// topicFor mirrors the reference TopicToEventType convention in reverse:
// one audit topic per group/topic pair rather than per event category.
func topicFor(groupID, topic string) string {
	return fmt.Sprintf("luminmq.audit.%s.%s", groupID, topic)
}

// RecordDelivery publishes one audit record asynchronously. Produce
// errors are logged and dropped; audit delivery never holds up message
// delivery on the hot path.
func (s *Sink) RecordDelivery(groupID, topic, mode string, msg []byte) {
	rec := record{GroupID: groupID, Topic: topic, Mode: mode, Payload: msg, Timestamp: time.Now().UnixMilli()}
	body, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn().Err(err).Msg("auditsink: failed to marshal record")
		return
	}

	kafkaTopic := topicFor(groupID, topic)
	kr := &kgo.Record{Topic: kafkaTopic, Key: []byte(groupID), Value: body}
	s.client.Produce(context.Background(), kr, func(_ *kgo.Record, err error) {
		if err != nil {
			s.logger.Warn().Err(err).Str("topic", kafkaTopic).Msg("auditsink: produce failed")
		}
	})
}

// Close flushes in-flight produces and releases the client.
func (s *Sink) Close() {
	_ = s.client.Flush(context.Background())
	s.client.Close()
}
