// Package reminder drives per-subject reminder schedules: it materializes a
// subject's tasks on onboarding, scans for due tasks on a timer inside the
// working window, sends one consolidated reminder per task name and moves the
// rows to their next workday due time.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"remindbot/internal/calendar"
	"remindbot/internal/catalog"
	"remindbot/internal/eventbus"
	"remindbot/internal/ledger"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type Deps struct {
	Store    Store
	Catalog  Catalog
	Timers   Timers
	Notifier Notifier
	Ledger   Ledger // optional
	Bus      eventbus.Bus
	Log      logx.Logger
	Now      func() time.Time // optional
}

// Engine is safe for concurrent use. Scans of one subject never overlap
// (the timer registry skips a fire while the previous one runs); different
// subjects scan concurrently.
type Engine struct {
	mu       sync.Mutex
	settings Settings
	sessions map[int64]*Session

	store    Store
	catalog  Catalog
	timers   Timers
	notifier Notifier
	ledger   Ledger
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time
}

func New(s Settings, d Deps) *Engine {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		settings: s.withDefaults(),
		sessions: map[int64]*Session{},
		store:    d.Store,
		catalog:  d.Catalog,
		timers:   d.Timers,
		notifier: d.Notifier,
		ledger:   d.Ledger,
		bus:      d.Bus,
		log:      log.With(logx.String("comp", "reminder")),
		now:      now,
	}
}

func scanTimer(id int64) string    { return fmt.Sprintf("reminder.scan:%d", id) }
func listTimer(id int64) string    { return fmt.Sprintf("reminder.list:%d", id) }
func nearestTimer(id int64) string { return fmt.Sprintf("reminder.nearest:%d", id) }

// Apply swaps settings. Scan timers of active sessions are re-registered so a
// new cadence takes effect immediately.
func (e *Engine) Apply(s Settings) {
	s = s.withDefaults()
	e.mu.Lock()
	old := e.settings
	e.settings = s
	var active []int64
	if old.ScanEvery != s.ScanEvery {
		for id, sess := range e.sessions {
			if sess.State == StateActive {
				active = append(active, id)
			}
		}
	}
	e.mu.Unlock()

	for _, id := range active {
		if err := e.registerScan(id, s.ScanEvery, s); err != nil {
			e.log.Warn("scan timer re-register failed", logx.Int64("subject_id", id), logx.Err(err))
		}
	}
}

func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// Onboard binds a subject to a specialist: materializes its schedule, arms the
// informational one-shots and the repeating scan, persists the session and
// records the connected status. Re-onboarding replaces earlier timers and
// keeps existing due times.
func (e *Engine) Onboard(ctx context.Context, o Onboarding) (Session, error) {
	if o.SubjectID == 0 {
		return Session{}, errors.New("reminder: subject id is required")
	}
	st := e.Settings()
	now := e.now().In(st.Location)
	id := o.SubjectID
	name := strings.TrimSpace(o.Specialist.Surname)
	projects := append([]string(nil), o.Specialist.Projects...)

	e.cancelTimers(id)

	defs := e.tasks()
	created, err := e.store.Materialize(ctx, id, projects, defs, now)
	if err != nil {
		return Session{}, fmt.Errorf("onboard %d: %w", id, err)
	}

	sess := &Session{
		SubjectID:   id,
		ChatID:      o.ChatID,
		DisplayName: name,
		Projects:    projects,
		State:       StateOnboarded,
		Since:       now,
	}
	e.mu.Lock()
	e.sessions[id] = sess
	e.mu.Unlock()

	if _, err := e.timers.AddAfter(listTimer(id), st.ListDelay, st.NotifyTimeout, func(ctx context.Context) error {
		return e.SendReminderList(ctx, id)
	}); err != nil {
		e.log.Warn("reminder list timer failed", logx.Int64("subject_id", id), logx.Err(err))
	}
	if _, err := e.timers.AddAfter(nearestTimer(id), st.NearestDelay, st.NotifyTimeout, func(ctx context.Context) error {
		return e.SendNearest(ctx, id)
	}); err != nil {
		e.log.Warn("nearest task timer failed", logx.Int64("subject_id", id), logx.Err(err))
	}
	if err := e.registerScan(id, st.ScanFirst, st); err != nil {
		return Session{}, fmt.Errorf("onboard %d: %w", id, err)
	}
	e.setState(id, StateActive)

	if err := e.store.SaveSession(ctx, storage.Session{
		SubjectID:   id,
		ChatID:      o.ChatID,
		DisplayName: name,
		Projects:    projects,
		UpdatedAt:   now,
	}); err != nil {
		e.log.Error("session persist failed", logx.Int64("subject_id", id), logx.Err(err))
	}
	e.recordStatus(ctx, id, name, storage.StatusConnected, now)

	e.log.Info("subject onboarded",
		logx.Int64("subject_id", id),
		logx.String("name", name),
		logx.Strings("projects", projects),
		logx.Int("tasks", len(defs)),
		logx.Int("created", created),
	)
	eventbus.Publish(e.bus, eventbus.SessionOnboarded, e.sessionCopy(id))
	return e.sessionCopy(id), nil
}

// Offboard stops the subject's timers, deactivates its session and records
// the disconnected status. displayName is used when the engine has no session
// for the subject.
func (e *Engine) Offboard(ctx context.Context, subjectID int64, displayName string) error {
	st := e.Settings()
	now := e.now().In(st.Location)
	e.cancelTimers(subjectID)

	e.mu.Lock()
	sess, ok := e.sessions[subjectID]
	if ok {
		sess.State = StateOffboarded
		sess.Since = now
		if sess.DisplayName != "" {
			displayName = sess.DisplayName
		}
	}
	e.mu.Unlock()

	if displayName == "" {
		if rec, found, err := e.store.GetStatus(ctx, subjectID); err == nil && found {
			displayName = rec.DisplayName
		}
	}
	if displayName == "" {
		displayName = UnknownDisplayName
	}

	if err := e.store.DeactivateSession(ctx, subjectID, now); err != nil && !errors.Is(err, storage.ErrNotFound) {
		e.log.Error("session deactivate failed", logx.Int64("subject_id", subjectID), logx.Err(err))
	}
	e.recordStatus(ctx, subjectID, displayName, storage.StatusDisconnected, now)

	e.log.Info("subject offboarded", logx.Int64("subject_id", subjectID), logx.String("name", displayName))
	eventbus.Publish(e.bus, eventbus.SessionOffboard, Session{SubjectID: subjectID, DisplayName: displayName, State: StateOffboarded, Since: now})
	return nil
}

// Resume re-arms the scan timer of every session persisted as active.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	rows, err := e.store.ActiveSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("resume: %w", err)
	}
	st := e.Settings()
	now := e.now().In(st.Location)
	n := 0
	for _, r := range rows {
		e.mu.Lock()
		e.sessions[r.SubjectID] = &Session{
			SubjectID:   r.SubjectID,
			ChatID:      r.ChatID,
			DisplayName: r.DisplayName,
			Projects:    append([]string(nil), r.Projects...),
			State:       StateOnboarded,
			Since:       now,
		}
		e.mu.Unlock()
		if err := e.registerScan(r.SubjectID, st.ScanFirst, st); err != nil {
			e.log.Warn("resume scan timer failed", logx.Int64("subject_id", r.SubjectID), logx.Err(err))
			continue
		}
		e.setState(r.SubjectID, StateActive)
		n++
	}
	if n > 0 {
		e.log.Info("sessions resumed", logx.Int("count", n))
	}
	return n, nil
}

// Tick runs a due scan when the current time is inside the working window on
// a workday, and does nothing otherwise.
func (e *Engine) Tick(ctx context.Context, subjectID int64) error {
	sess, ok := e.session(subjectID)
	if !ok {
		return ErrUnknownSubject
	}
	st := e.Settings()
	now := e.now().In(st.Location)
	if !calendar.IsWorkday(now) || !st.Window.Contains(now) {
		if e.log.Enabled(logx.LevelDebug) {
			e.log.Debug("outside working window", logx.Int64("subject_id", subjectID), logx.Time("now", now))
		}
		return nil
	}
	_, err := e.ScanDue(ctx, sess, now)
	e.mu.Lock()
	if s, ok := e.sessions[subjectID]; ok {
		s.LastScan = now
		s.LastError = ""
		if err != nil {
			s.LastError = err.Error()
		}
	}
	e.mu.Unlock()
	if err != nil {
		e.log.Error("due scan failed", logx.Int64("subject_id", subjectID), logx.Err(err))
	}
	return err
}

// ScanDue sends one reminder per due task name and reschedules the rows
// behind it to NextWorkdayAtOrAfter(now + interval). Delivery failures are
// logged and do not stop the scan; persistence failures do.
func (e *Engine) ScanDue(ctx context.Context, sess Session, now time.Time) (Report, error) {
	rep := Report{SubjectID: sess.SubjectID, At: now}
	due, err := e.store.DueTasks(ctx, sess.SubjectID, sess.Projects, now)
	if err != nil {
		return rep, fmt.Errorf("scan %d: %w", sess.SubjectID, err)
	}
	rep.Due = len(due)
	if len(due) == 0 {
		return rep, nil
	}
	groups := GroupDue(due)
	rep.Groups = len(groups)
	timeout := e.Settings().NotifyTimeout

	for _, g := range groups {
		next := calendar.NextWorkdayAtOrAfter(now.Add(time.Duration(g.IntervalMinutes) * time.Minute))
		r := Reminder{ChatID: sess.ChatID, TaskName: g.TaskName, Projects: g.Projects, NextDue: next}

		nctx, cancel := context.WithTimeout(ctx, timeout)
		err := e.notifier.SendReminder(nctx, r)
		cancel()
		if err != nil {
			rep.NotifyFailed++
			e.log.Warn("reminder delivery failed",
				logx.Int64("subject_id", sess.SubjectID),
				logx.String("task", g.TaskName),
				logx.Err(err),
			)
			eventbus.Publish(e.bus, eventbus.ReminderFailed, r)
		} else {
			rep.Notified++
			eventbus.Publish(e.bus, eventbus.ReminderSent, r)
		}

		n, err := e.store.Reschedule(ctx, g.IDs, next)
		if err != nil {
			return rep, fmt.Errorf("scan %d: reschedule %q: %w", sess.SubjectID, g.TaskName, err)
		}
		rep.Rescheduled += n
	}

	e.log.Info("due scan",
		logx.Int64("subject_id", sess.SubjectID),
		logx.Int("due", rep.Due),
		logx.Int("groups", rep.Groups),
		logx.Int("failed", rep.NotifyFailed),
	)
	eventbus.Publish(e.bus, eventbus.ScanCompleted, rep)
	return rep, nil
}

// SendReminderList sends the subject its distinct tasks and their cadence.
func (e *Engine) SendReminderList(ctx context.Context, subjectID int64) error {
	sess, ok := e.session(subjectID)
	if !ok {
		return ErrUnknownSubject
	}
	tasks, err := e.store.ListTasks(ctx, subjectID, sess.Projects)
	if err != nil {
		return fmt.Errorf("reminder list %d: %w", subjectID, err)
	}
	text := ListText(tasks)
	if text == "" {
		return nil
	}
	return e.notifier.SendText(ctx, sess.ChatID, text)
}

// SendNearest sends the task with the earliest due time, rendered like a
// reminder over every project carrying that task.
func (e *Engine) SendNearest(ctx context.Context, subjectID int64) error {
	sess, ok := e.session(subjectID)
	if !ok {
		return ErrUnknownSubject
	}
	t, found, err := e.store.NearestTask(ctx, subjectID, sess.Projects)
	if err != nil {
		return fmt.Errorf("nearest task %d: %w", subjectID, err)
	}
	if !found {
		return e.notifier.SendText(ctx, sess.ChatID, NoTasksText)
	}
	all, err := e.store.ListTasks(ctx, subjectID, sess.Projects)
	if err != nil {
		return fmt.Errorf("nearest task %d: %w", subjectID, err)
	}
	seen := map[string]bool{}
	var projects []string
	for _, row := range all {
		if strings.EqualFold(row.TaskName, t.TaskName) && !seen[row.Project] {
			seen[row.Project] = true
			projects = append(projects, row.Project)
		}
	}
	sort.Strings(projects)
	r := Reminder{ChatID: sess.ChatID, TaskName: t.TaskName, Projects: projects, NextDue: t.NextDue.In(e.Settings().Location)}
	return e.notifier.SendText(ctx, sess.ChatID, ReminderText(r))
}

// Session returns a copy of the subject's session.
func (e *Engine) Session(subjectID int64) (Session, bool) {
	return e.session(subjectID)
}

// Snapshot returns every known session ordered by subject id.
func (e *Engine) Snapshot() []Session {
	e.mu.Lock()
	out := make([]Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		c := *s
		c.Projects = append([]string(nil), s.Projects...)
		out = append(out, c)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out
}

func (e *Engine) tasks() []catalog.TaskDefinition {
	if e.catalog == nil {
		return nil
	}
	return e.catalog.Tasks()
}

func (e *Engine) registerScan(id int64, first time.Duration, st Settings) error {
	_, err := e.timers.AddEvery(scanTimer(id), first, st.ScanEvery, st.TickTimeout, func(ctx context.Context) error {
		err := e.Tick(ctx, id)
		if errors.Is(err, ErrUnknownSubject) {
			return nil
		}
		return err
	})
	return err
}

func (e *Engine) cancelTimers(id int64) {
	e.timers.Remove(scanTimer(id))
	e.timers.Remove(listTimer(id))
	e.timers.Remove(nearestTimer(id))
}

func (e *Engine) recordStatus(ctx context.Context, id int64, name string, status storage.Status, at time.Time) {
	changed, err := e.store.UpsertStatusIfChanged(ctx, id, name, status, at)
	if err != nil {
		e.log.Error("status update failed", logx.Int64("subject_id", id), logx.String("status", string(status)), logx.Err(err))
		return
	}
	if !changed {
		return
	}
	e.log.Info("status changed", logx.Int64("subject_id", id), logx.String("name", name), logx.String("status", string(status)))
	eventbus.Publish(e.bus, eventbus.StatusChanged, storage.StatusRecord{SubjectID: id, DisplayName: name, Status: status, LastUpdate: at})
	if e.ledger == nil {
		return
	}
	entry := ledger.Entry{DisplayName: name, Status: status.Label()}
	if status == storage.StatusConnected {
		entry.ConnectedAt = at
	} else {
		entry.DisconnectedAt = at
	}
	e.ledger.Dispatch(entry)
}

func (e *Engine) session(id int64) (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok || s.State == StateOffboarded {
		return Session{}, false
	}
	c := *s
	c.Projects = append([]string(nil), s.Projects...)
	return c, true
}

func (e *Engine) sessionCopy(id int64) Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return Session{SubjectID: id, State: StateIdle}
	}
	c := *s
	c.Projects = append([]string(nil), s.Projects...)
	return c
}

func (e *Engine) setState(id int64, st State) {
	e.mu.Lock()
	if s, ok := e.sessions[id]; ok {
		s.State = st
	}
	e.mu.Unlock()
}
