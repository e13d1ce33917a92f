package app

import (
	"testing"
	"time"

	"remindbot/internal/config"
	telegram "remindbot/internal/transport/telegram/adapter"
)

func TestMapReminderSettingsDefaults(t *testing.T) {
	t.Parallel()
	s, err := mapReminderSettings(&config.Config{})
	if err != nil {
		t.Fatalf("mapReminderSettings: %v", err)
	}
	if s.Location.String() != "Europe/Moscow" {
		t.Fatalf("location = %s", s.Location)
	}
	if s.Window.Start != 4*time.Hour || s.Window.End != 19*time.Hour {
		t.Fatalf("window = %+v", s.Window)
	}
	if s.ListDelay != 10*time.Second || s.NearestDelay != 20*time.Second || s.ScanEvery != 30*time.Second {
		t.Fatalf("delays = %+v", s)
	}
}

func TestMapReminderSettingsOverrides(t *testing.T) {
	t.Parallel()
	s, err := mapReminderSettings(&config.Config{Reminder: config.ReminderConfig{
		Timezone:    "UTC",
		WindowStart: "08:30",
		WindowEnd:   "17:00",
		ScanEvery:   "1m",
	}})
	if err != nil {
		t.Fatalf("mapReminderSettings: %v", err)
	}
	if s.Location != time.UTC || s.Window.Start != 8*time.Hour+30*time.Minute || s.ScanEvery != time.Minute {
		t.Fatalf("settings = %+v", s)
	}
	if _, err := mapReminderSettings(&config.Config{Reminder: config.ReminderConfig{ScanFirst: "later"}}); err == nil {
		t.Fatal("bad duration must fail")
	}
}

func TestMapAdapterConfig(t *testing.T) {
	t.Parallel()
	ac, err := mapAdapterConfig(&config.Config{Telegram: config.TelegramConfig{Token: "t"}})
	if err != nil {
		t.Fatal(err)
	}
	if ac.Mode != telegram.ModePolling || ac.PollTimeout != 10*time.Second {
		t.Fatalf("polling = %+v", ac)
	}
	ac, err = mapAdapterConfig(&config.Config{Telegram: config.TelegramConfig{
		Token: "t", Mode: config.ModeWebhook, WebhookURL: "https://x/hook", DropPending: true,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if ac.Mode != telegram.ModeWebhook || !ac.DropPending || ac.WebhookURL != "https://x/hook" {
		t.Fatalf("webhook = %+v", ac)
	}
}

func TestWebhookPath(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"https://bot.example.com":         "/",
		"https://bot.example.com/":        "/",
		"https://bot.example.com/tg/hook": "/tg/hook",
		"https://bot.example.com/x?a=b":   "/x",
		"::not a url":                     "/",
	}
	for in, want := range tests {
		if got := webhookPath(in); got != want {
			t.Fatalf("webhookPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapLoggingConfigGroupLog(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Telegram.GroupLog = "-100123"
	cfg.Logging.Telegram.Enabled = true
	lc := mapLoggingConfig(cfg)
	if !lc.Telegram.Enabled || lc.Telegram.ChatID != -100123 {
		t.Fatalf("telegram logging = %+v", lc.Telegram)
	}
	cfg.Telegram.GroupLog = ""
	if mapLoggingConfig(cfg).Telegram.Enabled {
		t.Fatal("telegram logging without a target must stay off")
	}
}

func TestMapNotifierAndEngineDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	nc, err := mapNotifierConfig(cfg)
	if err != nil || !nc.Enabled {
		t.Fatalf("notifier = %+v err = %v", nc, err)
	}
	off := false
	cfg.Notifier.Enabled = &off
	cfg.Notifier.DedupWindow = "1m"
	nc, err = mapNotifierConfig(cfg)
	if err != nil || nc.Enabled || nc.DedupWindow != time.Minute {
		t.Fatalf("notifier = %+v err = %v", nc, err)
	}
	ec, err := mapTaskEngineConfig(cfg)
	if err != nil || ec.Workers != 2 || ec.QueueSize != 256 || ec.HistorySize != 200 {
		t.Fatalf("engine = %+v err = %v", ec, err)
	}
}
