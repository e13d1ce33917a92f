package eventbus

import "testing"

func TestPublishFanOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubC()

	Publish(b, ReminderSent, "полить цветы")

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != ReminderSent || e.Data != "полить цветы" || e.Time.IsZero() {
			t.Fatalf("unexpected event %+v", e)
		}
	}

	unsubA()
	if _, ok := <-a; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// Slow subscriber drops instead of blocking.
	Publish(b, ScanCompleted, 1)
	Publish(b, ScanCompleted, 2)
	if e := <-c; e.Data != 1 {
		t.Fatalf("first buffered event = %v", e.Data)
	}
}

func TestPublishNilBus(t *testing.T) {
	Publish(nil, LedgerFailed, nil)
}
