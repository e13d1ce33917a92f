// Package catalog loads the task catalog and the specialist roster.
//
// Both files are re-read on every call so edits take effect on the next
// onboarding without a restart. A missing or malformed file yields an empty
// collection and an error log, never a failure of the caller.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	yaml "go.yaml.in/yaml/v3"

	logx "remindbot/pkg/logx"
)

var ErrInvalidInterval = errors.New("interval_minutes must be > 0")

// TaskDefinition is one recurring task and its reminder interval.
type TaskDefinition struct {
	Name            string `json:"task" yaml:"task"`
	IntervalMinutes int    `json:"interval_minutes" yaml:"interval_minutes"`
}

// Specialist is a roster entry: a subject and the projects assigned to them.
type Specialist struct {
	Surname  string   `json:"surname" yaml:"surname"`
	Projects []string `json:"projects" yaml:"projects"`
}

type tasksFile struct {
	Tasks []TaskDefinition `json:"tasks" yaml:"tasks"`
}

type specialistsFile struct {
	Specialists []Specialist `json:"specialists" yaml:"specialists"`
}

// Loader reads catalog files from disk.
type Loader struct {
	log logx.Logger

	mu              sync.RWMutex
	tasksPath       string
	specialistsPath string
}

func NewLoader(tasksPath, specialistsPath string, log logx.Logger) *Loader {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loader{
		log:             log.With(logx.String("comp", "catalog")),
		tasksPath:       tasksPath,
		specialistsPath: specialistsPath,
	}
}

// SetPaths swaps the file locations (config hot reload).
func (l *Loader) SetPaths(tasksPath, specialistsPath string) {
	l.mu.Lock()
	l.tasksPath = tasksPath
	l.specialistsPath = specialistsPath
	l.mu.Unlock()
}

func (l *Loader) paths() (string, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tasksPath, l.specialistsPath
}

// Tasks returns the task catalog in file order.
// Entries with an empty name or a non-positive interval are skipped.
func (l *Loader) Tasks() []TaskDefinition {
	path, _ := l.paths()
	defs, err := LoadTasks(path)
	if err != nil {
		l.log.Error("task catalog load failed", logx.String("path", path), logx.Err(err))
		return nil
	}
	out := make([]TaskDefinition, 0, len(defs))
	for i, d := range defs {
		if err := d.Validate(); err != nil {
			l.log.Warn("task skipped",
				logx.Int("index", i),
				logx.String("task", d.Name),
				logx.Int("interval_minutes", d.IntervalMinutes),
				logx.Err(err),
			)
			continue
		}
		out = append(out, d)
	}
	return out
}

// Specialists returns the roster sorted by surname.
func (l *Loader) Specialists() []Specialist {
	_, path := l.paths()
	list, err := LoadSpecialists(path)
	if err != nil {
		l.log.Error("specialist roster load failed", logx.String("path", path), logx.Err(err))
		return nil
	}
	return list
}

// Specialist looks up a roster entry by surname.
func (l *Loader) Specialist(surname string) (Specialist, bool) {
	surname = strings.TrimSpace(surname)
	for _, s := range l.Specialists() {
		if s.Surname == surname {
			return s, true
		}
	}
	return Specialist{}, false
}

func (d TaskDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("task name is empty")
	}
	if d.IntervalMinutes <= 0 {
		return ErrInvalidInterval
	}
	return nil
}

// LoadTasks decodes a task catalog file without validation.
func LoadTasks(path string) ([]TaskDefinition, error) {
	var f tasksFile
	if err := decodeFile(path, &f); err != nil {
		return nil, err
	}
	return f.Tasks, nil
}

// LoadSpecialists decodes a roster file, drops entries without a surname and
// sorts the rest by surname.
func LoadSpecialists(path string) ([]Specialist, error) {
	var f specialistsFile
	if err := decodeFile(path, &f); err != nil {
		return nil, err
	}
	out := make([]Specialist, 0, len(f.Specialists))
	for _, s := range f.Specialists {
		s.Surname = strings.TrimSpace(s.Surname)
		if s.Surname == "" {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Surname < out[j].Surname })
	return out, nil
}

func decodeFile(path string, v any) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, v); err != nil {
			return fmt.Errorf("yaml decode %s: %w", filepath.Base(path), err)
		}
	default:
		if err := json.Unmarshal(b, v); err != nil {
			return fmt.Errorf("json decode %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}
