// Package storage defines the audit and publish history records and the
// repositories that persist them in batches.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType names the kind of lifecycle event an EventLog records
type EventType string

const (
	EventTypeBrokerConnect    EventType = "BrokerConnect"
	EventTypeBrokerDisconnect EventType = "BrokerDisconnect"
	EventTypeConnect          EventType = "Connect"
	EventTypeDisconnect       EventType = "Disconnect"
	EventTypeSubscription     EventType = "Subscription"
	EventTypeUnsubscription   EventType = "Unsubscription"
)

// ErrEmptyBatch is returned when a repository is handed no records
var ErrEmptyBatch = errors.New("empty batch")

// DefaultListLimit bounds history reads when no limit is given
const DefaultListLimit = 100

// EventLog is one audit record. It is not modified after creation.
type EventLog struct {
	ID           uuid.UUID `json:"id" db:"id" msgpack:"id"`
	EventType    EventType `json:"eventType" db:"event_type" msgpack:"event_type"`
	EventDetails string    `json:"eventDetails" db:"event_details" msgpack:"event_details"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at" msgpack:"created_at"`
}

// PublishMessage is the history record of one accepted publish
type PublishMessage struct {
	ID        uuid.UUID `json:"id" db:"id" msgpack:"id"`
	ClientID  string    `json:"clientId" db:"client_id" msgpack:"client_id"`
	Topic     string    `json:"topic" db:"topic" msgpack:"topic"`
	Payload   []byte    `json:"payload" db:"payload" msgpack:"payload"`
	QoS       byte      `json:"qos" db:"qos" msgpack:"qos"`
	Retain    bool      `json:"retain" db:"retain" msgpack:"retain"`
	CreatedAt time.Time `json:"createdAt" db:"created_at" msgpack:"created_at"`
}

// EventLogRepository stores audit records. InsertEventLogs persists the
// whole batch in order or nothing of it.
type EventLogRepository interface {
	InsertEventLogs(ctx context.Context, logs []EventLog) error
	ListEventLogs(ctx context.Context, limit int) ([]EventLog, error)
}

// PublishMessageRepository stores publish history with the same batch
// semantics as EventLogRepository.
type PublishMessageRepository interface {
	InsertPublishMessages(ctx context.Context, msgs []PublishMessage) error
	ListPublishMessages(ctx context.Context, limit int) ([]PublishMessage, error)
}

// Store is a backend providing both repositories
type Store interface {
	EventLogRepository
	PublishMessageRepository
	Close() error
}

// NormalizeLimit returns DefaultListLimit for non-positive limits
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
