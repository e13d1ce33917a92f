package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/task/engine"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Moscow"
}

type scheduleDef struct {
	name    string
	first   time.Duration
	every   time.Duration
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
	state   *engine.RunState
}

type onceDef struct {
	at      time.Time
	timeout time.Duration
	job     func(ctx context.Context) error
	ver     uint64
	timer   *time.Timer
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	engine *engine.Service

	c    *cron.Cron
	defs []scheduleDef

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time

	tmu     sync.Mutex
	once    map[string]*onceDef
	onceSeq uint64
}

type ScheduleInfo struct {
	Name    string
	Every   time.Duration
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Once    bool
}

type Snapshot struct {
	Timezone  string
	Schedules []ScheduleInfo
}
