package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	calls int
	err   error
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), f.calls
}

func startNotifier(t *testing.T, cfg Config, sender Sender, bus eventbus.Bus) *Service {
	t.Helper()
	cfg.Enabled = true
	s := New(cfg, sender, logx.Nop(), bus, nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
		}
	}
}

func note(chatID int64, text string) kit.Notification {
	return kit.Notification{Channel: "telegram", Target: kit.ChatTarget{ChatID: chatID}, Text: text}
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	fs := &fakeSender{}
	s := startNotifier(t, Config{RatePerSec: 100}, fs, bus)

	if err := s.Notify(context.Background(), note(1, "📋ПОРА ПОЛИТЬ ЦВЕТЫ")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitEvent(t, ch, eventbus.NotifierSent)
	sent, _ := fs.snapshot()
	if len(sent) != 1 || sent[0] != "📋ПОРА ПОЛИТЬ ЦВЕТЫ" {
		t.Fatalf("sent = %v", sent)
	}
	if h := s.History(); len(h) != 1 || h[0].ChatID != 1 {
		t.Fatalf("history = %+v", h)
	}
}

func TestNotifyDedupWindow(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	fs := &fakeSender{}
	s := startNotifier(t, Config{RatePerSec: 100, DedupWindow: time.Minute}, fs, bus)

	for i := 0; i < 3; i++ {
		if err := s.Notify(context.Background(), note(1, "same")); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	// Different chat is a different key.
	if err := s.Notify(context.Background(), note(2, "same")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	counts := map[string]int{}
	timeout := time.After(2 * time.Second)
	for counts[eventbus.NotifierSent] < 2 || counts[eventbus.NotifierDeduped] < 2 {
		select {
		case e := <-ch:
			counts[e.Type]++
		case <-timeout:
			t.Fatalf("events = %v", counts)
		}
	}
	if sent, _ := fs.snapshot(); len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
}

func TestNoDedupAlwaysDelivers(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	fs := &fakeSender{}
	s := startNotifier(t, Config{RatePerSec: 100, DedupWindow: 10 * time.Minute}, fs, bus)

	n := note(1, "📋ПОРА ПОЛИТЬ ЦВЕТЫ")
	n.NoDedup = true
	for i := 0; i < 2; i++ {
		if err := s.Notify(context.Background(), n); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	waitEvent(t, ch, eventbus.NotifierSent)
	waitEvent(t, ch, eventbus.NotifierSent)
	if sent, _ := fs.snapshot(); len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
}

func TestUnreachableRecipientIsNotRetried(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	fs := &fakeSender{err: kit.ErrRecipientUnreachable}
	s := startNotifier(t, Config{RatePerSec: 100, RetryMax: 3, RetryBase: time.Millisecond}, fs, bus)

	if err := s.Notify(context.Background(), note(1, "x")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	e := waitEvent(t, ch, eventbus.NotifierFailed)
	if ev := e.Data.(NotificationEvent); ev.Error != kit.ErrRecipientUnreachable.Error() {
		t.Fatalf("event error = %q", ev.Error)
	}
	if _, calls := fs.snapshot(); calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryOnTransientError(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	fs := &fakeSender{err: errors.New("timeout")}
	s := startNotifier(t, Config{RatePerSec: 100, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, fs, bus)
	if err := s.Notify(context.Background(), note(1, "x")); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	waitEvent(t, ch, eventbus.NotifierFailed)
	if _, calls := fs.snapshot(); calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestNotifyDisabledAndStopped(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &fakeSender{}, logx.Nop(), nil, nil)
	if err := s.Notify(context.Background(), note(1, "x")); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}

	s = New(Config{Enabled: true}, &fakeSender{}, logx.Nop(), nil, nil)
	if err := s.Notify(context.Background(), note(1, "x")); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 6; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d: delay %s out of bounds", attempt, d)
		}
	}
}
