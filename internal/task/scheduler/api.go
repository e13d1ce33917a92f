package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/task/engine"
	logx "remindbot/pkg/logx"
)

// AddEvery registers a repeating timer that first fires after first and then
// every interval. Runs of the same timer never overlap: a fire while the
// previous run is queued or running is skipped.
func (s *Service) AddEvery(name string, first, every, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if every <= 0 {
		return "", fmt.Errorf("%s: interval must be > 0", name)
	}
	if job == nil {
		return "", fmt.Errorf("%s: job is nil", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Upsert by name so re-registration never duplicates a timer.
	s.removeScheduleLocked(name)
	s.removeOnce(name)

	s.defs = append(s.defs, scheduleDef{
		name:    name,
		first:   first,
		every:   every,
		timeout: timeout,
		job:     job,
		state:   &engine.RunState{},
	})
	if s.c != nil {
		d := &s.defs[len(s.defs)-1]
		s.addCronLocked(d)
		s.log.Debug("schedule registered",
			logx.String("name", name),
			logx.Duration("first", first),
			logx.Duration("every", every),
			logx.Time("next", s.c.Entry(d.entryID).Next),
		)
	}
	return name, nil
}

// AddAfter registers a one-shot timer firing after delay.
func (s *Service) AddAfter(name string, delay, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return s.AddOnce(name, time.Now().Add(delay), timeout, job)
}

// AddOnce registers a one-shot timer firing at the given time (immediately
// when it is in the past).
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if at.IsZero() {
		return "", errors.New("at required")
	}
	if job == nil {
		return "", fmt.Errorf("%s: job is nil", name)
	}

	s.mu.Lock()
	s.removeScheduleLocked(name)
	s.mu.Unlock()

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if prev, ok := s.once[name]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	s.onceSeq++
	d := &onceDef{at: at, timeout: timeout, job: job, ver: s.onceSeq}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	ver := d.ver
	d.timer = time.AfterFunc(delay, func() { s.fireOnce(name, ver) })
	s.once[name] = d
	return name, nil
}

func (s *Service) fireOnce(name string, ver uint64) {
	s.tmu.Lock()
	d, ok := s.once[name]
	// Removed or replaced since this timer was armed.
	if !ok || d.ver != ver {
		s.tmu.Unlock()
		return
	}
	delete(s.once, name)
	s.tmu.Unlock()

	s.enqueue(engine.Task{Name: name, Timeout: d.timeout, Run: d.job})
}

// Remove cancels every timer with the given name. It reports whether
// something was removed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()

	if s.removeOnce(name) {
		removed = true
	}
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// removeScheduleLocked removes repeating timers matching name. Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) removeOnce(name string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	d, ok := s.once[name]
	if !ok {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	delete(s.once, name)
	return true
}

func (s *Service) addCronLocked(d *scheduleDef) {
	name, timeout, run, state := d.name, d.timeout, d.job, d.state
	job := cron.FuncJob(func() {
		s.enqueue(engine.Task{
			Name:    name,
			Timeout: timeout,
			Run:     run,
			Overlap: engine.OverlapSkipIfRunning,
			State:   state,
		})
	})
	d.entryID = s.c.Schedule(everyWithFirst(d.every, d.first, time.Now().In(s.loc)), job)
}

func (s *Service) enqueue(t engine.Task) {
	if s.engine == nil {
		return
	}
	if err := s.engine.Enqueue(t); err != nil {
		s.reportEnqueueError(t.Name, err)
	}
}
