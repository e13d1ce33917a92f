package scheduler

import "sort"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	loc := s.loc
	items := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Every: d.every, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}
	s.mu.Unlock()

	s.tmu.Lock()
	for name, d := range s.once {
		items = append(items, ScheduleInfo{Name: name, Timeout: d.timeout, Next: d.at, Once: true})
	}
	s.tmu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return Snapshot{Timezone: loc.String(), Schedules: items}
}
