// Package bolt implements the storage repositories on a bbolt file.
package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"mqtt-cluster/internal/logger"
	"mqtt-cluster/internal/storage"
)

var (
	eventLogsBucket       = []byte("event_logs")
	publishMessagesBucket = []byte("publish_messages")
)

var _ storage.Store = (*Store)(nil)

// Store keeps each record kind in its own bucket, keyed by the bucket
// sequence so iteration order is insertion order.
type Store struct {
	db     *bolt.DB
	logger *logger.Logger
}

// NewStore opens or creates the bolt file at path
func NewStore(path string, log *logger.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{eventLogsBucket, publishMessagesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	log.Info("bolt store opened", "path", path)
	return &Store{db: db, logger: log}, nil
}

// Close closes the database file
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertEventLogs writes the batch in one update transaction
func (s *Store) InsertEventLogs(ctx context.Context, logs []storage.EventLog) error {
	if len(logs) == 0 {
		return storage.ErrEmptyBatch
	}

	values := make([]interface{}, len(logs))
	for i := range logs {
		values[i] = &logs[i]
	}
	return s.insert(ctx, eventLogsBucket, values)
}

// InsertPublishMessages writes the batch in one update transaction
func (s *Store) InsertPublishMessages(ctx context.Context, msgs []storage.PublishMessage) error {
	if len(msgs) == 0 {
		return storage.ErrEmptyBatch
	}

	values := make([]interface{}, len(msgs))
	for i := range msgs {
		values[i] = &msgs[i]
	}
	return s.insert(ctx, publishMessagesBucket, values)
}

func (s *Store) insert(ctx context.Context, bucket []byte, values []interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		for _, v := range values {
			data, err := msgpack.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to encode record: %w", err)
			}

			seq, err := b.NextSequence()
			if err != nil {
				return err
			}

			if err := b.Put(itob(seq), data); err != nil {
				return fmt.Errorf("failed to store record: %w", err)
			}
		}
		return nil
	})
}

// ListEventLogs returns the most recent audit records, newest first
func (s *Store) ListEventLogs(ctx context.Context, limit int) ([]storage.EventLog, error) {
	logs := []storage.EventLog{}
	err := s.scanNewest(ctx, eventLogsBucket, storage.NormalizeLimit(limit), func(data []byte) error {
		var l storage.EventLog
		if err := msgpack.Unmarshal(data, &l); err != nil {
			return err
		}
		logs = append(logs, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// ListPublishMessages returns the most recent publishes, newest first
func (s *Store) ListPublishMessages(ctx context.Context, limit int) ([]storage.PublishMessage, error) {
	msgs := []storage.PublishMessage{}
	err := s.scanNewest(ctx, publishMessagesBucket, storage.NormalizeLimit(limit), func(data []byte) error {
		var m storage.PublishMessage
		if err := msgpack.Unmarshal(data, &m); err != nil {
			return err
		}
		msgs = append(msgs, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Store) scanNewest(ctx context.Context, bucket []byte, limit int, fn func([]byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		n := 0
		for k, v := c.Last(); k != nil && n < limit; k, v = c.Prev() {
			if err := fn(v); err != nil {
				return fmt.Errorf("failed to decode record: %w", err)
			}
			n++
		}
		return nil
	})
}

// itob returns an 8-byte big endian key for v
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
