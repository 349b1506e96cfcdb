package broker

// MetricsSink receives delivery-engine observations. It is implemented by
// the metrics package; broker takes it as an interface so that a caller
// embedding the registries need not depend on Prometheus at all. A nil
// MetricsSink is safe to pass everywhere in this package via noopMetrics.
type MetricsSink interface {
	ObserveEnqueue(groupID, topic string)
	ObserveDelivery(groupID, topic, mode string)
	ObservePullEmpty(groupID, topic string)
	ObserveFrameWrite()
	SetQueueDepth(groupID, topic string, depth int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveEnqueue(string, string)          {}
func (noopMetrics) ObserveDelivery(string, string, string) {}
func (noopMetrics) ObservePullEmpty(string, string)        {}
func (noopMetrics) ObserveFrameWrite()                     {}
func (noopMetrics) SetQueueDepth(string, string, int)      {}

// AuditSink mirrors delivered messages to an external system; in this
// package it is called for every successful push delivery.
// Implementations must never block or fail the caller; the Kafka-backed
// implementation in pkg/auditsink logs and drops on error.
type AuditSink interface {
	RecordDelivery(groupID, topic, mode string, msg []byte)
}

type noopAudit struct{}

func (noopAudit) RecordDelivery(string, string, string, []byte) {}
