package catalog

import (
	"os"
	"path/filepath"
	"testing"

	logx "remindbot/pkg/logx"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoaderTasksSkipsInvalid(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tasks := writeFile(t, dir, "tasks.json", `{"tasks":[
		{"task":"полить цветы","interval_minutes":60},
		{"task":"zero","interval_minutes":0},
		{"task":"negative","interval_minutes":-5},
		{"task":"","interval_minutes":10},
		{"task":"проверить почту","interval_minutes":1440}
	]}`)

	l := NewLoader(tasks, "", logx.Nop())
	got := l.Tasks()
	if len(got) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2 (%+v)", len(got), got)
	}
	if got[0].Name != "полить цветы" || got[0].IntervalMinutes != 60 {
		t.Fatalf("first task = %+v", got[0])
	}
	if got[1].Name != "проверить почту" || got[1].IntervalMinutes != 1440 {
		t.Fatalf("second task = %+v", got[1])
	}
}

func TestLoaderYAMLAndSorting(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	roster := writeFile(t, dir, "specialists.yaml", `
specialists:
  - surname: Петров
    projects: [C]
  - surname: Иванов
    projects: [A, B]
  - surname: "  "
    projects: [X]
`)
	l := NewLoader("", roster, logx.Nop())
	list := l.Specialists()
	if len(list) != 2 {
		t.Fatalf("len(Specialists) = %d, want 2", len(list))
	}
	if list[0].Surname != "Иванов" || list[1].Surname != "Петров" {
		t.Fatalf("roster not sorted: %+v", list)
	}

	s, ok := l.Specialist("Иванов")
	if !ok || len(s.Projects) != 2 || s.Projects[0] != "A" || s.Projects[1] != "B" {
		t.Fatalf("Specialist(Иванов) = %+v, %v", s, ok)
	}
	if _, ok := l.Specialist("Сидоров"); ok {
		t.Fatal("unknown surname should not be found")
	}
}

func TestLoaderMissingOrMalformed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bad := writeFile(t, dir, "tasks.json", `{"tasks": [`)

	l := NewLoader(filepath.Join(dir, "absent.json"), filepath.Join(dir, "absent.json"), logx.Nop())
	if got := l.Tasks(); len(got) != 0 {
		t.Fatalf("missing tasks file: got %+v", got)
	}
	if got := l.Specialists(); len(got) != 0 {
		t.Fatalf("missing roster file: got %+v", got)
	}

	l.SetPaths(bad, "")
	if got := l.Tasks(); len(got) != 0 {
		t.Fatalf("malformed tasks file: got %+v", got)
	}
}

func TestTaskDefinitionValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		def     TaskDefinition
		wantErr bool
	}{
		{TaskDefinition{Name: "a", IntervalMinutes: 1}, false},
		{TaskDefinition{Name: "a", IntervalMinutes: 0}, true},
		{TaskDefinition{Name: " ", IntervalMinutes: 5}, true},
	}
	for _, tt := range tests {
		if err := tt.def.Validate(); (err != nil) != tt.wantErr {
			t.Fatalf("Validate(%+v) err=%v, wantErr=%v", tt.def, err, tt.wantErr)
		}
	}
}
