package storage

import "github.com/GuiaBolso/darwin"

// Append only. darwin verifies checksums of applied versions, so never edit
// an existing script.
var migrations = []darwin.Migration{
	{
		Version:     1,
		Description: "create scheduled_task",
		Script: `CREATE TABLE IF NOT EXISTS scheduled_task (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			subject_id       INTEGER NOT NULL,
			project          TEXT    NOT NULL,
			task_name        TEXT    NOT NULL,
			interval_minutes INTEGER NOT NULL CHECK (interval_minutes > 0),
			next_due         INTEGER NOT NULL,
			UNIQUE (subject_id, project, task_name)
		)`,
	},
	{
		Version:     2,
		Description: "index scheduled_task by subject and due time",
		Script:      `CREATE INDEX IF NOT EXISTS idx_scheduled_task_due ON scheduled_task (subject_id, next_due)`,
	},
	{
		Version:     3,
		Description: "create status_record",
		Script: `CREATE TABLE IF NOT EXISTS status_record (
			subject_id   INTEGER PRIMARY KEY,
			display_name TEXT    NOT NULL,
			status       TEXT    NOT NULL,
			last_update  INTEGER NOT NULL
		)`,
	},
	{
		Version:     4,
		Description: "create session",
		Script: `CREATE TABLE IF NOT EXISTS session (
			subject_id   INTEGER PRIMARY KEY,
			chat_id      INTEGER NOT NULL,
			display_name TEXT    NOT NULL,
			projects     TEXT    NOT NULL DEFAULT '[]',
			active       INTEGER NOT NULL DEFAULT 1,
			updated_at   INTEGER NOT NULL
		)`,
	},
	{
		Version:     5,
		Description: "create notify_dedup",
		Script: `CREATE TABLE IF NOT EXISTS notify_dedup (
			key   TEXT PRIMARY KEY,
			until INTEGER NOT NULL
		)`,
	},
}

var resetTables = []string{
	"scheduled_task",
	"status_record",
	"session",
	"notify_dedup",
	"darwin_migrations",
}
