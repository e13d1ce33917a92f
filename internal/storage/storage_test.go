package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/calendar"
	"remindbot/internal/catalog"
	logx "remindbot/pkg/logx"
)

// setupTestStore opens an in-memory database with migrations applied.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{Path: ":memory:", Location: time.UTC}, logx.Nop())
	require.NoError(t, err, "Failed to open test store")
	t.Cleanup(func() { require.NoError(t, st.Close()) })
	return st
}

// Wednesday 2024-06-05 10:00 UTC.
var wednesday = time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)

var flowers = []catalog.TaskDefinition{{Name: "полить цветы", IntervalMinutes: 60}}

func TestMaterialize_CreatesPTimesK(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	defs := []catalog.TaskDefinition{
		{Name: "полить цветы", IntervalMinutes: 60},
		{Name: "проверить почту", IntervalMinutes: 3 * 24 * 60},
		{Name: "отчёт", IntervalMinutes: 7 * 24 * 60},
	}
	n, err := st.Materialize(ctx, 1, []string{"A", "B"}, defs, wednesday)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	rows, err := st.ListTasks(ctx, 1, []string{"A", "B"})
	require.NoError(t, err)
	require.Len(t, rows, 6)
	for _, r := range rows {
		assert.True(t, calendar.IsWorkday(r.NextDue), "next_due %s must be a workday", r.NextDue)
		assert.False(t, r.NextDue.Before(wednesday))
	}

	// +3 days from Wednesday is Saturday; rolled to Monday same time.
	for _, r := range rows {
		if r.TaskName == "проверить почту" {
			assert.Equal(t, time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC), r.NextDue)
		}
	}
}

func TestMaterialize_IdempotentAndScopedBySubject(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	_, err := st.Materialize(ctx, 1, []string{"A", "B"}, flowers, wednesday)
	require.NoError(t, err)
	_, err = st.Materialize(ctx, 2, []string{"A"}, flowers, wednesday)
	require.NoError(t, err)

	// Re-onboarding later keeps existing due times and adds nothing.
	n, err := st.Materialize(ctx, 1, []string{"A", "B"}, flowers, wednesday.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rows, err := st.ListTasks(ctx, 1, []string{"A", "B"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, wednesday.Add(time.Hour), r.NextDue)
	}

	// Dropping project B prunes its row, subject 2 is untouched.
	_, err = st.Materialize(ctx, 1, []string{"A"}, flowers, wednesday)
	require.NoError(t, err)
	rows, err = st.ListTasks(ctx, 1, []string{"A", "B"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].Project)

	other, err := st.ListTasks(ctx, 2, []string{"A"})
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestMaterialize_EmptyCatalogKeepsRows(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	_, err := st.Materialize(ctx, 1, []string{"A", "B"}, flowers, wednesday)
	require.NoError(t, err)

	n, err := st.Materialize(ctx, 1, []string{"A", "B"}, nil, wednesday.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rows, err := st.ListTasks(ctx, 1, []string{"A", "B"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, wednesday.Add(time.Hour), r.NextDue)
	}
}

func TestDueTasksAndReschedule(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	_, err := st.Materialize(ctx, 1, []string{"A", "B", "C"}, flowers, wednesday)
	require.NoError(t, err)

	due, err := st.DueTasks(ctx, 1, []string{"A", "B"}, wednesday.Add(59*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)

	at := wednesday.Add(time.Hour)
	due, err = st.DueTasks(ctx, 1, []string{"A", "B"}, at)
	require.NoError(t, err)
	require.Len(t, due, 2, "project C is outside the set")

	ids := []int64{due[0].ID, due[1].ID}
	next := calendar.Due(at, 60)
	n, err := st.Reschedule(ctx, ids, next)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	due, err = st.DueTasks(ctx, 1, []string{"A", "B"}, at)
	require.NoError(t, err)
	assert.Empty(t, due)

	rows, err := st.ListTasks(ctx, 1, []string{"A", "B", "C"})
	require.NoError(t, err)
	for _, r := range rows {
		if r.Project == "C" {
			assert.Equal(t, at, r.NextDue, "untouched row keeps its due time")
			continue
		}
		assert.Equal(t, next, r.NextDue)
	}

	n, err = st.Reschedule(ctx, nil, next)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNearestTask(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := st.NearestTask(ctx, 1, []string{"A"})
	require.NoError(t, err)
	assert.False(t, ok)

	defs := []catalog.TaskDefinition{
		{Name: "долгая", IntervalMinutes: 600},
		{Name: "быстрая", IntervalMinutes: 30},
	}
	_, err = st.Materialize(ctx, 1, []string{"A"}, defs, wednesday)
	require.NoError(t, err)

	task, ok, err := st.NearestTask(ctx, 1, []string{"A"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "быстрая", task.TaskName)
	assert.Equal(t, wednesday.Add(30*time.Minute), task.NextDue)
}

func TestUpsertStatusIfChanged(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := st.GetStatus(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	changed, err := st.UpsertStatusIfChanged(ctx, 7, "Иванов", StatusConnected, wednesday)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = st.UpsertStatusIfChanged(ctx, 7, "Иванов", StatusConnected, wednesday.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	rec, ok, err := st.GetStatus(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, wednesday, rec.LastUpdate, "no write on unchanged status")

	changed, err = st.UpsertStatusIfChanged(ctx, 7, "Иванов", StatusDisconnected, wednesday.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)

	rec, _, err = st.GetStatus(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnected, rec.Status)
	assert.Equal(t, "Отключен", rec.Status.Label())
}

func TestSessions(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveSession(ctx, Session{SubjectID: 1, ChatID: 100, DisplayName: "Иванов", Projects: []string{"A", "B"}, UpdatedAt: wednesday}))
	require.NoError(t, st.SaveSession(ctx, Session{SubjectID: 2, ChatID: 200, DisplayName: "Петров", Projects: []string{"C"}, UpdatedAt: wednesday}))

	active, err := st.ActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, []string{"A", "B"}, active[0].Projects)
	assert.True(t, active[0].Active)

	require.NoError(t, st.DeactivateSession(ctx, 1, wednesday.Add(time.Hour)))
	assert.ErrorIs(t, st.DeactivateSession(ctx, 99, wednesday), ErrNotFound)

	active, err = st.ActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.EqualValues(t, 2, active[0].SubjectID)

	// Saving again reactivates.
	require.NoError(t, st.SaveSession(ctx, Session{SubjectID: 1, ChatID: 101, DisplayName: "Иванов", Projects: []string{"A"}}))
	active, err = st.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestDedup(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := st.GetDedup(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	until := time.Now().Add(time.Minute).Truncate(time.Millisecond)
	require.NoError(t, st.PutDedup(ctx, "k", until))
	got, ok, err := st.GetDedup(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(until))
}

func TestReset(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	_, err := st.Materialize(ctx, 1, []string{"A"}, flowers, wednesday)
	require.NoError(t, err)
	_, err = st.UpsertStatusIfChanged(ctx, 1, "Иванов", StatusConnected, wednesday)
	require.NoError(t, err)

	require.NoError(t, st.Reset(ctx))

	rows, err := st.ListTasks(ctx, 1, []string{"A"})
	require.NoError(t, err)
	assert.Empty(t, rows)
	_, ok, err := st.GetStatus(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// Schema is usable after reset.
	n, err := st.Materialize(ctx, 1, []string{"A"}, flowers, wednesday)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
