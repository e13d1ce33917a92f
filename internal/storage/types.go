package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures the SQLite store.
//
// Path may be ":memory:" for tests.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
	// Location is applied to timestamps read back from the database.
	// Nil means time.Local.
	Location *time.Location
}

// ScheduledTask is one (subject, project, task) row with its next due time.
type ScheduledTask struct {
	ID              int64
	SubjectID       int64
	Project         string
	TaskName        string
	IntervalMinutes int
	NextDue         time.Time
}

type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Label is the human-readable status written to the ledger.
func (s Status) Label() string {
	switch s {
	case StatusConnected:
		return "Подключен"
	case StatusDisconnected:
		return "Отключен"
	default:
		return string(s)
	}
}

// StatusRecord is the last known status of a subject.
type StatusRecord struct {
	SubjectID   int64
	DisplayName string
	Status      Status
	LastUpdate  time.Time
}

// Session is a persisted onboarding: which chat receives reminders for
// which projects.
type Session struct {
	SubjectID   int64
	ChatID      int64
	DisplayName string
	Projects    []string
	Active      bool
	UpdatedAt   time.Time
}
