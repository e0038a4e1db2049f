package nats

import (
	"context"
	"encoding/json"

	"mqtt-cluster/internal/logger"
	"mqtt-cluster/internal/storage"
)

// EventBridge mirrors persisted records onto NATS subjects. Publish
// failures are logged and never returned.
type EventBridge struct {
	conn   Conn
	prefix string
	logger *logger.Logger
}

// NewEventBridge creates a bridge publishing under prefix
func NewEventBridge(conn Conn, prefix string, log *logger.Logger) *EventBridge {
	return &EventBridge{
		conn:   conn,
		prefix: prefix,
		logger: log,
	}
}

// NotifyEventLogs publishes each record to <prefix>.events.<type>
func (b *EventBridge) NotifyEventLogs(ctx context.Context, logs []storage.EventLog) {
	for _, l := range logs {
		if ctx.Err() != nil {
			return
		}
		b.publish(EventSubject(b.prefix, l.EventType), l)
	}
}

// NotifyPublishMessages publishes each record to <prefix>.messages.<topic>
func (b *EventBridge) NotifyPublishMessages(ctx context.Context, msgs []storage.PublishMessage) {
	for _, m := range msgs {
		if ctx.Err() != nil {
			return
		}
		b.publish(MessageSubject(b.prefix, m.Topic), m)
	}
}

func (b *EventBridge) publish(subject string, record interface{}) {
	if !b.conn.IsConnected() {
		b.logger.Debug("skipping bridge publish, not connected", "subject", subject)
		return
	}

	data, err := json.Marshal(record)
	if err != nil {
		b.logger.Error("failed to encode record", "subject", subject, "error", err)
		return
	}

	if err := b.conn.Publish(subject, data); err != nil {
		b.logger.Error("failed to publish record",
			"subject", subject,
			"error", err)
		return
	}

	b.logger.Debug("published record", "subject", subject, "size", len(data))
}

// Close closes the NATS connection
func (b *EventBridge) Close() {
	b.conn.Close()
}
