// Package telemetry aggregates replication diagnostics: cheap atomic
// counters polled by the /diagnostics handler, mirrored into OpenTelemetry
// instruments when a meter provider is installed.
package telemetry

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "replicast/internal/telemetry"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Counters is shared by the managers and the transport layer. All methods
// are safe for concurrent use.
type Counters struct {
	staleFrameDrops  atomic.Uint64
	protocolDesyncs  atomic.Uint64
	resnapshots      atomic.Uint64
	messagesSent     atomic.Uint64
	bytesSent        atomic.Uint64
	messagesReceived atomic.Uint64

	otelStaleDrops  metric.Int64Counter
	otelDesyncs     metric.Int64Counter
	otelResnapshots metric.Int64Counter
	otelBytesSent   metric.Int64Counter
}

// Snapshot is the JSON shape served by /diagnostics.
type Snapshot struct {
	StaleFrameDrops  uint64 `json:"staleFrameDrops"`
	ProtocolDesyncs  uint64 `json:"protocolDesyncs"`
	Resnapshots      uint64 `json:"resnapshots"`
	MessagesSent     uint64 `json:"messagesSent"`
	BytesSent        uint64 `json:"bytesSent"`
	MessagesReceived uint64 `json:"messagesReceived"`
}

func NewCounters() *Counters {
	c := &Counters{}
	m := meter()
	c.otelStaleDrops, _ = m.Int64Counter(
		"replication.stale_frame_drops",
		metric.WithDescription("Inbound frames older than the retained window"),
	)
	c.otelDesyncs, _ = m.Int64Counter(
		"replication.protocol_desyncs",
		metric.WithDescription("Reliable chain violations that forced a resync"),
	)
	c.otelResnapshots, _ = m.Int64Counter(
		"replication.resnapshots",
		metric.WithDescription("Full snapshots re-sent after a desync"),
	)
	c.otelBytesSent, _ = m.Int64Counter(
		"replication.bytes_sent",
		metric.WithDescription("Envelope bytes handed to the transport"),
	)
	return c
}

// RecordStaleFrameDrop counts an inbound payload rejected as stale. Expected
// under loss and latency; never an error.
func (c *Counters) RecordStaleFrameDrop() {
	c.staleFrameDrops.Add(1)
	if c.otelStaleDrops != nil {
		c.otelStaleDrops.Add(context.Background(), 1)
	}
}

// RecordProtocolDesync counts a reliable chain violation.
func (c *Counters) RecordProtocolDesync() {
	c.protocolDesyncs.Add(1)
	if c.otelDesyncs != nil {
		c.otelDesyncs.Add(context.Background(), 1)
	}
}

// RecordResnapshot counts a snapshot forced by a desync.
func (c *Counters) RecordResnapshot() {
	c.resnapshots.Add(1)
	if c.otelResnapshots != nil {
		c.otelResnapshots.Add(context.Background(), 1)
	}
}

// RecordSend counts one outbound envelope.
func (c *Counters) RecordSend(bytes int) {
	if bytes < 0 {
		bytes = 0
	}
	c.messagesSent.Add(1)
	c.bytesSent.Add(uint64(bytes))
	if c.otelBytesSent != nil {
		c.otelBytesSent.Add(context.Background(), int64(bytes))
	}
}

// RecordReceive counts one inbound envelope.
func (c *Counters) RecordReceive() {
	c.messagesReceived.Add(1)
}

// Read returns a point-in-time copy of every counter.
func (c *Counters) Read() Snapshot {
	return Snapshot{
		StaleFrameDrops:  c.staleFrameDrops.Load(),
		ProtocolDesyncs:  c.protocolDesyncs.Load(),
		Resnapshots:      c.resnapshots.Load(),
		MessagesSent:     c.messagesSent.Load(),
		BytesSent:        c.bytesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
	}
}
