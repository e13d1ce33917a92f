package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the bot's components.
const (
	ReminderSent     = "reminder.sent"
	ReminderFailed   = "reminder.failed"
	ScanCompleted    = "reminder.scan"
	StatusChanged    = "status.changed"
	LedgerRecorded   = "ledger.recorded"
	LedgerFailed     = "ledger.failed"
	NotifierSent     = "notifier.sent"
	NotifierFailed   = "notifier.failed"
	NotifierDropped  = "notifier.dropped"
	NotifierDeduped  = "notifier.deduped"
	SessionOnboarded = "session.onboarded"
	SessionOffboard  = "session.offboarded"
	TaskFailed       = "task.failed"
	TaskDropped      = "task.dropped"
	TaskSkipped      = "task.skipped"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Publish never blocks; slow subscribers drop events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fan-out bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Holding the write lock guarantees no Publish is mid-send on ch.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Publish is a nil-safe helper for optional buses.
func Publish(b Bus, typ string, data any) {
	if b == nil {
		return
	}
	b.Publish(Event{Type: typ, Time: time.Now(), Data: data})
}
