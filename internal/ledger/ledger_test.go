package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

func TestEntryRow(t *testing.T) {
	t.Parallel()
	msk := time.FixedZone("MSK", 3*3600)
	at := time.Date(2024, 6, 3, 6, 30, 5, 0, time.UTC)

	tests := []struct {
		name string
		e    Entry
		want []string
	}{
		{"connected", Entry{DisplayName: "Иванов", Status: "Подключен", ConnectedAt: at}, []string{"Иванов", "Подключен", "03.06.2024 09:30:05", ""}},
		{"disconnected", Entry{DisplayName: "Иванов", Status: "Отключен", DisconnectedAt: at}, []string{"Иванов", "Отключен", "", "03.06.2024 09:30:05"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := tt.e.Row(msk)
			if len(row) != 4 {
				t.Fatalf("row len = %d", len(row))
			}
			for i, want := range tt.want {
				if row[i] != want {
					t.Fatalf("cell %d = %v, want %q", i, row[i], want)
				}
			}
		})
	}
}

func TestCredentialsJSONPrefersFile(t *testing.T) {
	t.Parallel()
	if _, err := credentialsJSON(SheetsConfig{}); err == nil {
		t.Fatal("missing credentials must fail")
	}
	b, err := credentialsJSON(SheetsConfig{CredentialsJSON: ` {"type":"authorized_user"} `})
	if err != nil || string(b) != `{"type":"authorized_user"}` {
		t.Fatalf("got %q, %v", b, err)
	}
	if _, err := credentialsJSON(SheetsConfig{ServiceAccountFile: t.TempDir() + "/missing.json", CredentialsJSON: "{}"}); err == nil {
		t.Fatal("unreadable service account file must fail even with inline JSON")
	}
}

func waitType(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
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

func TestDispatchRecordsAsync(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	var mu sync.Mutex
	var got []Entry
	rec := RecorderFunc(func(ctx context.Context, e Entry) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		return nil
	})
	d := NewDispatcher(rec, time.Second, logx.Nop(), bus)
	d.Start(context.Background())
	defer d.Stop(context.Background())

	d.Dispatch(Entry{DisplayName: "Петров", Status: "Подключен", ConnectedAt: time.Now()})
	ev := waitType(t, ch, eventbus.LedgerRecorded).Data.(RecordEvent)
	if ev.DisplayName != "Петров" || ev.Error != "" {
		t.Fatalf("event = %+v", ev)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("recorded %d entries", len(got))
	}
}

func TestDispatchFailureIsPublished(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	d := NewDispatcher(RecorderFunc(func(ctx context.Context, e Entry) error {
		return errors.New("quota exceeded")
	}), time.Second, logx.Nop(), bus)
	d.Start(context.Background())
	defer d.Stop(context.Background())

	d.Dispatch(Entry{DisplayName: "Петров", Status: "Отключен"})
	ev := waitType(t, ch, eventbus.LedgerFailed).Data.(RecordEvent)
	if ev.Error != "quota exceeded" {
		t.Fatalf("error = %q", ev.Error)
	}
}

func TestDispatchTimeout(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	d := NewDispatcher(RecorderFunc(func(ctx context.Context, e Entry) error {
		<-ctx.Done()
		return ctx.Err()
	}), 20*time.Millisecond, logx.Nop(), bus)
	d.Start(context.Background())
	defer d.Stop(context.Background())

	d.Dispatch(Entry{DisplayName: "x", Status: "Подключен"})
	ev := waitType(t, ch, eventbus.LedgerFailed).Data.(RecordEvent)
	if ev.Error != context.DeadlineExceeded.Error() {
		t.Fatalf("error = %q", ev.Error)
	}
}

func TestDispatchWithoutRecorder(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(nil, 0, logx.Nop(), nil)
	if d.Enabled() {
		t.Fatal("nil recorder should report disabled")
	}
	d.Dispatch(Entry{DisplayName: "x"})
	d.Stop(context.Background())
}
