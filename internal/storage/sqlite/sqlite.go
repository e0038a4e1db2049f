// Package sqlite implements the storage repositories on SQLite.
package sqlite

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"mqtt-cluster/internal/logger"
)

const (
	DriverName = "sqlite3"
	InmemPath  = ":memory:"
)

// Store holds the SQLite handle. Writes are serialized through Mu.
type Store struct {
	Mu     sync.Mutex
	DB     *sqlx.DB
	path   string
	logger *logger.Logger
}

// NewStore opens the database at path and applies pending migrations
func NewStore(ctx context.Context, path string, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single connection keeps in-memory databases shared and avoids
	// SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	s := &Store{
		DB:     db,
		path:   path,
		logger: log,
	}

	if err := NewMigrator(s, log).Up(ctx, Migrations()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}

	log.Info("sqlite store opened", "path", path)
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) userVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return 0, err
	}
	return version, nil
}

// execTrans runs stmt inside a transaction
func (s *Store) execTrans(ctx context.Context, stmt string) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
