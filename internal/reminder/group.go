package reminder

import (
	"sort"
	"strings"

	"remindbot/internal/storage"
)

// GroupDue folds due rows into one group per task name. Names are compared
// case-insensitively and the first spelling seen is kept. Groups keep the
// order of their first row; when intervals disagree the last row wins.
func GroupDue(tasks []storage.ScheduledTask) []Group {
	var out []Group
	idx := map[string]int{}
	projects := map[string]map[string]struct{}{}
	for _, t := range tasks {
		k := strings.ToLower(t.TaskName)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Group{TaskName: t.TaskName})
			projects[k] = map[string]struct{}{}
		}
		g := &out[i]
		g.IntervalMinutes = t.IntervalMinutes
		g.IDs = append(g.IDs, t.ID)
		projects[k][t.Project] = struct{}{}
	}
	for k, i := range idx {
		ps := make([]string, 0, len(projects[k]))
		for p := range projects[k] {
			ps = append(ps, p)
		}
		sort.Strings(ps)
		out[i].Projects = ps
	}
	return out
}
