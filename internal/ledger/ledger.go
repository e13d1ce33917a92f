// Package ledger mirrors subject status transitions to an external
// spreadsheet.
//
// Writes are fire-and-forget: Dispatcher runs each Record call in its own
// supervised goroutine bounded by a timeout, logs failures and publishes them
// on the event bus. Nothing is retried.
package ledger

import (
	"context"
	"time"
)

// TimeLayout is how connect/disconnect timestamps appear in the sheet.
const TimeLayout = "02.01.2006 15:04:05"

// Entry is one status transition.
// Exactly one of ConnectedAt and DisconnectedAt is normally set.
type Entry struct {
	DisplayName    string
	Status         string // human-readable label, e.g. "Подключен"
	ConnectedAt    time.Time
	DisconnectedAt time.Time
}

// Row renders the entry as [display_name, status, connected_at, disconnected_at].
// Zero timestamps render as empty cells.
func (e Entry) Row(loc *time.Location) []any {
	return []any{e.DisplayName, e.Status, formatTime(e.ConnectedAt, loc), formatTime(e.DisconnectedAt, loc)}
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(TimeLayout)
}

// Recorder appends entries to the ledger.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, e Entry) error

func (f RecorderFunc) Record(ctx context.Context, e Entry) error { return f(ctx, e) }
