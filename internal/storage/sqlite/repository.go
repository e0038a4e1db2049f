package sqlite

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"mqtt-cluster/internal/storage"
)

// maxRowsPerStatement keeps multi-row inserts under SQLite's bound
// parameter limit.
const maxRowsPerStatement = 500

var _ storage.Store = (*Store)(nil)

// InsertEventLogs writes the batch in one transaction
func (s *Store) InsertEventLogs(ctx context.Context, logs []storage.EventLog) error {
	if len(logs) == 0 {
		return storage.ErrEmptyBatch
	}

	return s.insertBatch(ctx, len(logs), func(from, to int) sq.InsertBuilder {
		q := sq.Insert("event_logs").
			Columns("id", "event_type", "event_details", "created_at")
		for _, l := range logs[from:to] {
			q = q.Values(l.ID, string(l.EventType), l.EventDetails, l.CreatedAt.UTC())
		}
		return q
	})
}

// InsertPublishMessages writes the batch in one transaction
func (s *Store) InsertPublishMessages(ctx context.Context, msgs []storage.PublishMessage) error {
	if len(msgs) == 0 {
		return storage.ErrEmptyBatch
	}

	return s.insertBatch(ctx, len(msgs), func(from, to int) sq.InsertBuilder {
		q := sq.Insert("publish_messages").
			Columns("id", "client_id", "topic", "payload", "qos", "retain", "created_at")
		for _, m := range msgs[from:to] {
			q = q.Values(m.ID, m.ClientID, m.Topic, m.Payload, m.QoS, m.Retain, m.CreatedAt.UTC())
		}
		return q
	})
}

// insertBatch runs chunked multi-row inserts inside a single transaction
func (s *Store) insertBatch(ctx context.Context, n int, build func(from, to int) sq.InsertBuilder) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for from := 0; from < n; from += maxRowsPerStatement {
		to := from + maxRowsPerStatement
		if to > n {
			to = n
		}

		query, args, err := build(from, to).ToSql()
		if err != nil {
			tx.Rollback()
			return err
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// ListEventLogs returns the most recent audit records, newest first
func (s *Store) ListEventLogs(ctx context.Context, limit int) ([]storage.EventLog, error) {
	q := sq.Select("id", "event_type", "event_details", "created_at").
		From("event_logs").
		OrderBy("seq DESC").
		Limit(uint64(storage.NormalizeLimit(limit)))

	logs := []storage.EventLog{}
	if err := s.selectContext(ctx, &logs, q); err != nil {
		return nil, err
	}
	return logs, nil
}

// ListPublishMessages returns the most recent publishes, newest first
func (s *Store) ListPublishMessages(ctx context.Context, limit int) ([]storage.PublishMessage, error) {
	q := sq.Select("id", "client_id", "topic", "payload", "qos", "retain", "created_at").
		From("publish_messages").
		OrderBy("seq DESC").
		Limit(uint64(storage.NormalizeLimit(limit)))

	msgs := []storage.PublishMessage{}
	if err := s.selectContext(ctx, &msgs, q); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Store) selectContext(ctx context.Context, dest interface{}, q sq.SelectBuilder) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, s.DB, dest, query, args...)
}
