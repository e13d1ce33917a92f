package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/calendar"
	"remindbot/internal/catalog"
	logx "remindbot/pkg/logx"
)

const taskColumns = `id, subject_id, project, task_name, interval_minutes, next_due`

// Materialize makes the subject's schedule match projects × defs.
//
// New (project, task) pairs get next_due = NextWorkdayAtOrAfter(now+interval).
// Existing pairs keep their next_due and take the catalog interval. Pairs no
// longer assigned are deleted. Returns the number of inserted rows.
//
// An empty catalog leaves the subject's rows alone: it is what a failed
// catalog read looks like.
func (s *Store) Materialize(ctx context.Context, subjectID int64, projects []string, defs []catalog.TaskDefinition, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	if len(defs) == 0 {
		s.log.Warn("empty task catalog, schedule kept", logx.Int64("subject_id", subjectID))
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("materialize begin: %w", err)
	}
	defer rollback(tx)

	inserted := 0
	keep := make([]string, 0, len(projects)*len(defs))
	for _, p := range uniqueStrings(projects) {
		for _, d := range defs {
			if d.IntervalMinutes <= 0 {
				continue
			}
			due := calendar.Due(now, d.IntervalMinutes)
			res, err := tx.ExecContext(ctx,
				`INSERT INTO scheduled_task(subject_id, project, task_name, interval_minutes, next_due)
				 VALUES(?,?,?,?,?)
				 ON CONFLICT(subject_id, project, task_name) DO NOTHING`,
				subjectID, p, d.Name, d.IntervalMinutes, due.Unix(),
			)
			if err != nil {
				return 0, fmt.Errorf("materialize insert %s/%s: %w", p, d.Name, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			} else if _, err := tx.ExecContext(ctx,
				`UPDATE scheduled_task SET interval_minutes = ?
				 WHERE subject_id = ? AND project = ? AND task_name = ?`,
				d.IntervalMinutes, subjectID, p, d.Name,
			); err != nil {
				return 0, fmt.Errorf("materialize refresh %s/%s: %w", p, d.Name, err)
			}
			keep = append(keep, pairKey(p, d.Name))
		}
	}

	keepJSON, err := jsonArray(keep)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM scheduled_task
		 WHERE subject_id = ?
		   AND (project || char(31) || task_name) NOT IN (SELECT value FROM json_each(?))`,
		subjectID, keepJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("materialize prune: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("materialize commit: %w", err)
	}
	if pruned, _ := res.RowsAffected(); pruned > 0 {
		s.log.Info("stale tasks pruned", logx.Int64("subject_id", subjectID), logx.Int64("pruned", pruned))
	}
	return inserted, nil
}

// DueTasks returns the subject's rows for the given projects with next_due <= at.
func (s *Store) DueTasks(ctx context.Context, subjectID int64, projects []string, at time.Time) ([]ScheduledTask, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	set, err := jsonArray(uniqueStrings(projects))
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_task
		 WHERE subject_id = ?
		   AND project IN (SELECT value FROM json_each(?))
		   AND next_due <= ?
		 ORDER BY id`,
		subjectID, set, at.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("due tasks: %w", err)
	}
	return s.scanTasks(rows)
}

// ListTasks returns every row of the subject for the given projects, in
// materialization order.
func (s *Store) ListTasks(ctx context.Context, subjectID int64, projects []string) ([]ScheduledTask, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	set, err := jsonArray(uniqueStrings(projects))
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_task
		 WHERE subject_id = ? AND project IN (SELECT value FROM json_each(?))
		 ORDER BY id`,
		subjectID, set,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return s.scanTasks(rows)
}

// NearestTask returns the row with the smallest next_due.
func (s *Store) NearestTask(ctx context.Context, subjectID int64, projects []string) (ScheduledTask, bool, error) {
	if s == nil || s.db == nil {
		return ScheduledTask{}, false, ErrDisabled
	}
	set, err := jsonArray(uniqueStrings(projects))
	if err != nil {
		return ScheduledTask{}, false, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_task
		 WHERE subject_id = ? AND project IN (SELECT value FROM json_each(?))
		 ORDER BY next_due, id
		 LIMIT 1`,
		subjectID, set,
	)
	t, err := s.scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledTask{}, false, nil
	}
	if err != nil {
		return ScheduledTask{}, false, fmt.Errorf("nearest task: %w", err)
	}
	return t, true, nil
}

// Reschedule sets next_due for exactly the given ids in one statement.
func (s *Store) Reschedule(ctx context.Context, ids []int64, due time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	if len(ids) == 0 {
		return 0, nil
	}
	set, err := json.Marshal(ids)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_task SET next_due = ? WHERE id IN (SELECT value FROM json_each(?))`,
		due.Unix(), string(set),
	)
	if err != nil {
		return 0, fmt.Errorf("reschedule: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) scanTasks(rows *sql.Rows) ([]ScheduledTask, error) {
	defer rows.Close()
	var out []ScheduledTask
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) scanTask(r rowScanner) (ScheduledTask, error) {
	var (
		t   ScheduledTask
		due int64
	)
	if err := r.Scan(&t.ID, &t.SubjectID, &t.Project, &t.TaskName, &t.IntervalMinutes, &due); err != nil {
		return ScheduledTask{}, err
	}
	t.NextDue = s.at(due)
	return t, nil
}

func pairKey(project, task string) string {
	return project + "\x1f" + task
}

func jsonArray(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
