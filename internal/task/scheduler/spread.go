package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// firstRunSchedule overrides the first run time of a base schedule and then
// delegates to it.
type firstRunSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *firstRunSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// everyWithFirst fires at now+first, then every interval after each run.
// cron.Every rounds to whole seconds with a one-second minimum.
func everyWithFirst(every, first time.Duration, now time.Time) cron.Schedule {
	base := cron.Every(every)
	if first <= 0 {
		return base
	}
	return &firstRunSchedule{base: base, first: now.Add(first)}
}
