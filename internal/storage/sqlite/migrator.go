package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"mqtt-cluster/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded migration scripts
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migrator applies numbered SQL scripts tracked by PRAGMA user_version.
// Each script must set user_version to its own number.
type Migrator struct {
	store  *Store
	logger *logger.Logger
}

func NewMigrator(store *Store, log *logger.Logger) *Migrator {
	return &Migrator{
		store:  store,
		logger: log,
	}
}

// Up applies every script whose version is above the current user_version
func (m *Migrator) Up(ctx context.Context, source fs.FS) error {
	list, err := fs.ReadDir(source, ".")
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})

	current, err := m.store.userVersion(ctx)
	if err != nil {
		return err
	}

	final, err := scriptVersion(list[len(list)-1].Name())
	if err != nil {
		return err
	}

	if final > current {
		m.logger.Info("applying storage migrations", "count", final-current)
	}

	for _, f := range list {
		n := f.Name()
		v, err := scriptVersion(n)
		if err != nil {
			return err
		}

		// Re-read on every step so an out of order script is never applied
		c, err := m.store.userVersion(ctx)
		if err != nil {
			return err
		}

		if v > c {
			m.logger.Debug("executing storage migration", "name", n)
			script, err := fs.ReadFile(source, n)
			if err != nil {
				return err
			}

			if err := m.store.execTrans(ctx, string(script)); err != nil {
				return fmt.Errorf("migration %s: %w", n, err)
			}
		}
	}

	return nil
}

// scriptVersion extracts the number from a name like "0002_add_index.sql"
func scriptVersion(filename string) (int, error) {
	return strconv.Atoi(strings.Split(filename, "_")[0])
}
