package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // Europe/Moscow on hosts without zoneinfo
)

// Validate rejects configs that cannot start the bot. It is also the
// hot-reload gate, so it must not touch the network.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required (or BOT_TOKEN)")
	}
	switch c.Telegram.Mode {
	case "", ModePolling:
	case ModeWebhook:
		u, err := url.Parse(strings.TrimSpace(c.Telegram.WebhookURL))
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("telegram.webhook_url: https URL required in webhook mode, got %q", c.Telegram.WebhookURL)
		}
	default:
		return fmt.Errorf("telegram.mode: unknown %q (want polling or webhook)", c.Telegram.Mode)
	}
	if c.Telegram.Workers < 0 {
		return errors.New("telegram.workers must be >= 0")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}

	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if strings.TrimSpace(c.Catalog.TasksFile) == "" {
		return errors.New("catalog.tasks_file is required (or TASKS_FILE)")
	}
	if strings.TrimSpace(c.Catalog.SpecialistsFile) == "" {
		return errors.New("catalog.specialists_file is required (or SPECIALISTS_FILE)")
	}

	if err := c.validateReminder(); err != nil {
		return err
	}

	te := c.TaskEngine
	if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 {
		return errors.New("task_engine: workers, queue_size and history_size must be >= 0")
	}
	if _, err := ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay); err != nil {
		return err
	}

	n := c.Notifier
	if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 || n.DedupMaxEntries < 0 {
		return errors.New("notifier: numeric fields must be >= 0")
	}
	for path, raw := range map[string]string{
		"notifier.retry_base":      n.RetryBase,
		"notifier.retry_max_delay": n.RetryMaxDelay,
		"notifier.send_timeout":    n.SendTimeout,
		"notifier.dedup_window":    n.DedupWindow,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}

	if c.Ledger.Enabled {
		if strings.TrimSpace(c.Ledger.SpreadsheetID) == "" {
			return errors.New("ledger.spreadsheet_id is required when the ledger is enabled")
		}
		if strings.TrimSpace(c.Ledger.ServiceAccountFile) == "" && strings.TrimSpace(c.Ledger.CredentialsJSON) == "" {
			return errors.New("ledger: service_account_file or credentials_json (GOOGLE_TOKEN) is required")
		}
	}
	if _, err := ParseDurationField("ledger.timeout", c.Ledger.Timeout); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateReminder() error {
	r := c.Reminder
	if tz := strings.TrimSpace(r.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("reminder.timezone: invalid %q: %w", tz, err)
		}
	}
	start, err := ParseClockField("reminder.window_start", r.WindowStart, 4*time.Hour)
	if err != nil {
		return err
	}
	end, err := ParseClockField("reminder.window_end", r.WindowEnd, 19*time.Hour)
	if err != nil {
		return err
	}
	if end < start {
		return fmt.Errorf("reminder: window_end %s is before window_start %s", r.WindowEnd, r.WindowStart)
	}
	for path, raw := range map[string]string{
		"reminder.list_delay":     r.ListDelay,
		"reminder.nearest_delay":  r.NearestDelay,
		"reminder.scan_first":     r.ScanFirst,
		"reminder.scan_every":     r.ScanEvery,
		"reminder.notify_timeout": r.NotifyTimeout,
		"reminder.tick_timeout":   r.TickTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	return nil
}

// Location resolves reminder.timezone, defaulting to Europe/Moscow.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Reminder.Timezone)
	if tz == "" {
		tz = "Europe/Moscow"
	}
	return time.LoadLocation(tz)
}
