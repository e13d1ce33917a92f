package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SaveSession inserts or replaces the subject's session and marks it active.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now()
	}
	projects, err := jsonArray(sess.Projects)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session(subject_id, chat_id, display_name, projects, active, updated_at)
		 VALUES(?,?,?,?,1,?)
		 ON CONFLICT(subject_id) DO UPDATE SET
		   chat_id      = excluded.chat_id,
		   display_name = excluded.display_name,
		   projects     = excluded.projects,
		   active       = 1,
		   updated_at   = excluded.updated_at`,
		sess.SubjectID, sess.ChatID, sess.DisplayName, projects, sess.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeactivateSession keeps the row (chat and projects) but stops it from being
// resumed. Returns ErrNotFound when the subject never onboarded.
func (s *Store) DeactivateSession(ctx context.Context, subjectID int64, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE session SET active = 0, updated_at = ? WHERE subject_id = ?`,
		at.Unix(), subjectID,
	)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ActiveSessions(ctx context.Context) ([]Session, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject_id, chat_id, display_name, projects, active, updated_at
		 FROM session WHERE active = 1 ORDER BY subject_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("active sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess     Session
			projects string
			updated  int64
		)
		if err := rows.Scan(&sess.SubjectID, &sess.ChatID, &sess.DisplayName, &projects, &sess.Active, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(projects), &sess.Projects); err != nil {
			return nil, fmt.Errorf("session %d projects: %w", sess.SubjectID, err)
		}
		sess.UpdatedAt = s.at(updated)
		out = append(out, sess)
	}
	return out, rows.Err()
}
