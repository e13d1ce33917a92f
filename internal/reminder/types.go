package reminder

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/catalog"
	"remindbot/internal/ledger"
	"remindbot/internal/storage"
)

var ErrUnknownSubject = errors.New("reminder: unknown subject")

// State is the lifecycle position of a subject session.
type State string

const (
	StateIdle       State = "idle"
	StateOnboarded  State = "onboarded"
	StateActive     State = "active"
	StateOffboarded State = "offboarded"
)

// UnknownDisplayName is recorded when a subject offboards without ever
// having picked a specialist.
const UnknownDisplayName = "Неизвестный пользователь"

// Onboarding is the input of Engine.Onboard.
type Onboarding struct {
	SubjectID  int64
	ChatID     int64
	Specialist catalog.Specialist
}

// Session is the engine's view of one subject.
type Session struct {
	SubjectID   int64     `json:"subject_id"`
	ChatID      int64     `json:"chat_id"`
	DisplayName string    `json:"display_name"`
	Projects    []string  `json:"projects"`
	State       State     `json:"state"`
	Since       time.Time `json:"since"`
	LastScan    time.Time `json:"last_scan,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Window is the daily interval, as offsets from local midnight, in which due
// scans run. Both ends are inclusive.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// Contains reports whether t's wall-clock time of day lies inside w.
func (w Window) Contains(t time.Time) bool {
	h, m, s := t.Clock()
	off := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
	return off >= w.Start && off <= w.End
}

type Settings struct {
	Location      *time.Location
	Window        Window
	ListDelay     time.Duration
	NearestDelay  time.Duration
	ScanFirst     time.Duration
	ScanEvery     time.Duration
	NotifyTimeout time.Duration
	TickTimeout   time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Location:      time.Local,
		Window:        Window{Start: 4 * time.Hour, End: 19 * time.Hour},
		ListDelay:     10 * time.Second,
		NearestDelay:  20 * time.Second,
		ScanFirst:     5 * time.Second,
		ScanEvery:     30 * time.Second,
		NotifyTimeout: 10 * time.Second,
		TickTimeout:   time.Minute,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Location == nil {
		s.Location = d.Location
	}
	if s.Window.Start == 0 && s.Window.End == 0 {
		s.Window = d.Window
	}
	if s.ListDelay <= 0 {
		s.ListDelay = d.ListDelay
	}
	if s.NearestDelay <= 0 {
		s.NearestDelay = d.NearestDelay
	}
	if s.ScanFirst <= 0 {
		s.ScanFirst = d.ScanFirst
	}
	if s.ScanEvery <= 0 {
		s.ScanEvery = d.ScanEvery
	}
	if s.NotifyTimeout <= 0 {
		s.NotifyTimeout = d.NotifyTimeout
	}
	if s.TickTimeout <= 0 {
		s.TickTimeout = d.TickTimeout
	}
	return s
}

// Reminder is one consolidated notification: a task name and every project
// of the subject it is due on.
type Reminder struct {
	ChatID   int64
	TaskName string
	Projects []string
	NextDue  time.Time
}

// Group collects the due rows sharing a task name within one tick.
type Group struct {
	TaskName        string
	Projects        []string
	IntervalMinutes int
	IDs             []int64
}

// Report summarizes one due scan.
type Report struct {
	SubjectID    int64     `json:"subject_id"`
	At           time.Time `json:"at"`
	Due          int       `json:"due"`
	Groups       int       `json:"groups"`
	Notified     int       `json:"notified"`
	NotifyFailed int       `json:"notify_failed"`
	Rescheduled  int64     `json:"rescheduled"`
}

// Store is the persistence the engine needs.
type Store interface {
	Materialize(ctx context.Context, subjectID int64, projects []string, defs []catalog.TaskDefinition, now time.Time) (int, error)
	DueTasks(ctx context.Context, subjectID int64, projects []string, at time.Time) ([]storage.ScheduledTask, error)
	ListTasks(ctx context.Context, subjectID int64, projects []string) ([]storage.ScheduledTask, error)
	NearestTask(ctx context.Context, subjectID int64, projects []string) (storage.ScheduledTask, bool, error)
	Reschedule(ctx context.Context, ids []int64, due time.Time) (int64, error)

	GetStatus(ctx context.Context, subjectID int64) (storage.StatusRecord, bool, error)
	UpsertStatusIfChanged(ctx context.Context, subjectID int64, displayName string, status storage.Status, at time.Time) (bool, error)

	SaveSession(ctx context.Context, sess storage.Session) error
	DeactivateSession(ctx context.Context, subjectID int64, at time.Time) error
	ActiveSessions(ctx context.Context) ([]storage.Session, error)
}

// Catalog supplies task definitions. Implementations return an empty slice
// when the catalog cannot be read.
type Catalog interface {
	Tasks() []catalog.TaskDefinition
}

// Timers is a registry of named timers; registering an existing name
// replaces it.
type Timers interface {
	AddEvery(name string, first, every, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	AddAfter(name string, delay, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	Remove(name string) bool
}

type Notifier interface {
	SendReminder(ctx context.Context, r Reminder) error
	SendText(ctx context.Context, chatID int64, text string) error
}

// Ledger receives status transitions. Dispatch must not block.
type Ledger interface {
	Dispatch(e ledger.Entry)
}
