package reminder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"remindbot/internal/storage"
	"remindbot/pkg/tgui"
)

const NoTasksText = "У вас нет запланированных задач."

var monthsGenitive = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// DayMonth renders t as "3 июня".
func DayMonth(t time.Time) string {
	return strconv.Itoa(t.Day()) + " " + monthsGenitive[t.Month()-1]
}

// ReminderText renders a consolidated reminder as Telegram HTML.
func ReminderText(r Reminder) string {
	projects := append([]string(nil), r.Projects...)
	sort.Strings(projects)
	lines := make([]tgui.H, 0, len(projects))
	for _, p := range projects {
		lines = append(lines, tgui.Esc("- "+p))
	}
	return tgui.JoinH("\n\n",
		tgui.B("📋ПОРА "+strings.ToUpper(r.TaskName)),
		tgui.JoinH("\n", lines...),
		tgui.B("⏰СЛЕДУЮЩИЙ РАЗ НАПОМНЮ "+DayMonth(r.NextDue)),
	).String()
}

// ListText renders the subject's distinct tasks with their cadence. Task
// names are compared case-insensitively; the first spelling is shown.
func ListText(tasks []storage.ScheduledTask) string {
	if len(tasks) == 0 {
		return ""
	}
	type entry struct {
		name     string
		interval int
	}
	var order []string
	seen := map[string]*entry{}
	for _, t := range tasks {
		k := strings.ToLower(t.TaskName)
		if e, ok := seen[k]; ok {
			e.interval = t.IntervalMinutes
			continue
		}
		seen[k] = &entry{name: t.TaskName, interval: t.IntervalMinutes}
		order = append(order, k)
	}

	var b strings.Builder
	b.WriteString(tgui.B("СПИСОК ТВОИХ НАПОМИНАНИЙ и ГРАФИК ПРОВЕРКИ").String())
	b.WriteString("\n")
	for _, k := range order {
		e := seen[k]
		fmt.Fprintf(&b, "\n• %s - %s", tgui.Esc(capitalize(e.name)), tgui.B(IntervalText(e.interval)))
	}
	return b.String()
}

// IntervalText renders a cadence in the largest whole unit: days, hours or
// minutes.
func IntervalText(minutes int) string {
	switch {
	case minutes > 0 && minutes%(24*60) == 0:
		n := minutes / (24 * 60)
		return strconv.Itoa(n) + " " + plural(n, "день", "дня", "дней")
	case minutes > 0 && minutes%60 == 0:
		n := minutes / 60
		return strconv.Itoa(n) + " " + plural(n, "час", "часа", "часов")
	default:
		return strconv.Itoa(minutes) + " " + plural(minutes, "минута", "минуты", "минут")
	}
}

func plural(n int, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	switch {
	case n%100 >= 11 && n%100 <= 14:
		return many
	case n%10 == 1:
		return one
	case n%10 >= 2 && n%10 <= 4:
		return few
	default:
		return many
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
