package app

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/ledger"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	telegram "remindbot/internal/transport/telegram/adapter"
	logx "remindbot/pkg/logx"
)

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	mode := telegram.ModePolling
	if cfg.WebhookMode() {
		mode = telegram.ModeWebhook
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		Mode:        mode,
		PollTimeout: pollTimeout,
		WebhookURL:  cfg.Telegram.WebhookURL,
		SecretToken: cfg.Telegram.SecretToken,
		DropPending: cfg.Telegram.DropPending,
	}, nil
}

// webhookPath is the path component of the public webhook URL, "/" when none.
func webhookPath(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	var chatID int64
	if s := strings.TrimSpace(cfg.Telegram.GroupLog); s != "" {
		chatID, _ = strconv.ParseInt(s, 10, 64)
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && chatID != 0,
			ChatID:     chatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config, loc *time.Location) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		return storage.Config{}, fmt.Errorf("storage.path is required")
	}
	return storage.Config{Path: path, BusyTimeout: busy, Location: loc}, nil
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	defTimeout, err := config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	out := engine.Config{
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: defTimeout,
		MaxQueueDelay:  maxDelay,
		HistorySize:    te.HistorySize,
	}
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 256
	}
	if out.HistorySize <= 0 {
		out.HistorySize = 200
	}
	return out, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	out := notifier.Config{
		Enabled:         cfg.NotifierEnabled(),
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		DedupMaxEntries: n.DedupMaxEntries,
		PersistDedup:    n.PersistDedup,
	}
	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	if out.SendTimeout, err = config.ParseDurationField("notifier.send_timeout", n.SendTimeout); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", n.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

func mapReminderSettings(cfg *config.Config) (reminder.Settings, error) {
	r := cfg.Reminder
	loc, err := cfg.Location()
	if err != nil {
		return reminder.Settings{}, fmt.Errorf("reminder.timezone: %w", err)
	}
	d := reminder.DefaultSettings()
	s := reminder.Settings{Location: loc}
	if s.Window.Start, err = config.ParseClockField("reminder.window_start", r.WindowStart, d.Window.Start); err != nil {
		return reminder.Settings{}, err
	}
	if s.Window.End, err = config.ParseClockField("reminder.window_end", r.WindowEnd, d.Window.End); err != nil {
		return reminder.Settings{}, err
	}
	durations := []struct {
		path string
		raw  string
		dst  *time.Duration
		def  time.Duration
	}{
		{"reminder.list_delay", r.ListDelay, &s.ListDelay, d.ListDelay},
		{"reminder.nearest_delay", r.NearestDelay, &s.NearestDelay, d.NearestDelay},
		{"reminder.scan_first", r.ScanFirst, &s.ScanFirst, d.ScanFirst},
		{"reminder.scan_every", r.ScanEvery, &s.ScanEvery, d.ScanEvery},
		{"reminder.notify_timeout", r.NotifyTimeout, &s.NotifyTimeout, d.NotifyTimeout},
		{"reminder.tick_timeout", r.TickTimeout, &s.TickTimeout, d.TickTimeout},
	}
	for _, f := range durations {
		if *f.dst, err = config.ParseDurationOrDefault(f.path, f.raw, f.def); err != nil {
			return reminder.Settings{}, err
		}
	}
	return s, nil
}

func mapLedgerConfig(cfg *config.Config, loc *time.Location) (ledger.SheetsConfig, time.Duration, error) {
	timeout, err := config.ParseDurationOrDefault("ledger.timeout", cfg.Ledger.Timeout, 15*time.Second)
	if err != nil {
		return ledger.SheetsConfig{}, 0, err
	}
	return ledger.SheetsConfig{
		SpreadsheetID:      cfg.Ledger.SpreadsheetID,
		Range:              cfg.Ledger.Range,
		ServiceAccountFile: cfg.Ledger.ServiceAccountFile,
		CredentialsJSON:    cfg.Ledger.CredentialsJSON,
		Location:           loc,
	}, timeout, nil
}
