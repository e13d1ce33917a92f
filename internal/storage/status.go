package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *Store) GetStatus(ctx context.Context, subjectID int64) (StatusRecord, bool, error) {
	if s == nil || s.db == nil {
		return StatusRecord{}, false, ErrDisabled
	}
	return s.getStatus(ctx, s.db, subjectID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getStatus(ctx context.Context, q queryRower, subjectID int64) (StatusRecord, bool, error) {
	var (
		rec StatusRecord
		st  string
		at  int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT subject_id, display_name, status, last_update FROM status_record WHERE subject_id = ?`,
		subjectID,
	).Scan(&rec.SubjectID, &rec.DisplayName, &st, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return StatusRecord{}, false, nil
	}
	if err != nil {
		return StatusRecord{}, false, fmt.Errorf("get status: %w", err)
	}
	rec.Status = Status(st)
	rec.LastUpdate = s.at(at)
	return rec, true, nil
}

// UpsertStatusIfChanged writes the status only when it differs from the
// stored one (or none is stored). It reports whether a write happened.
func (s *Store) UpsertStatusIfChanged(ctx context.Context, subjectID int64, displayName string, status Status, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("status begin: %w", err)
	}
	defer rollback(tx)

	prev, ok, err := s.getStatus(ctx, tx, subjectID)
	if err != nil {
		return false, err
	}
	if ok && prev.Status == status {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO status_record(subject_id, display_name, status, last_update)
		 VALUES(?,?,?,?)
		 ON CONFLICT(subject_id) DO UPDATE SET
		   display_name = excluded.display_name,
		   status       = excluded.status,
		   last_update  = excluded.last_update`,
		subjectID, displayName, string(status), at.Unix(),
	); err != nil {
		return false, fmt.Errorf("upsert status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("status commit: %w", err)
	}
	return true, nil
}
