package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GuiaBolso/darwin"
	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

// Store is the SQLite-backed persistence used by the reminder engine,
// the status flow and the notifier.
type Store struct {
	db  *sql.DB
	log logx.Logger
	loc *time.Location

	opCount    atomic.Uint64
	pruneEvery uint64
}

// Open opens (and creates if needed) the database and applies migrations.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: serialized writers, and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	st := &Store{
		db:         db,
		log:        log.With(logx.String("comp", "storage")),
		loc:        loc,
		pruneEvery: 500,
	}
	if err := st.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate() error {
	driver := darwin.NewGenericDriver(s.db, darwin.SqliteDialect{})
	if err := darwin.New(driver, migrations, nil).Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Reset drops every table, including the migration bookkeeping, and
// recreates the schema. All subjects lose their schedule and status.
func (s *Store) Reset(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	for _, t := range resetTables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("drop %s: %w", t, err)
		}
	}
	if err := s.migrate(); err != nil {
		return err
	}
	s.log.Warn("storage reset", logx.Int("tables", len(resetTables)))
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) at(unix int64) time.Time {
	return time.Unix(unix, 0).In(s.loc)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
