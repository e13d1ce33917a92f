package config

// Config is the full bot configuration. Every section may be omitted; env
// overrides are applied on top of the decoded file.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	HTTP       HTTPConfig       `json:"http"`
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Catalog    CatalogConfig    `json:"catalog"`
	Reminder   ReminderConfig   `json:"reminder"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
	Notifier   NotifierConfig   `json:"notifier"`
	Ledger     LedgerConfig     `json:"ledger"`
}

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

type TelegramConfig struct {
	Token string `json:"token"`
	// Mode is "polling" (default) or "webhook".
	Mode        string `json:"mode,omitempty"`
	WebhookURL  string `json:"webhook_url,omitempty"`
	SecretToken string `json:"secret_token,omitempty"`
	DropPending bool   `json:"drop_pending,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// GroupLog is the chat id that receives warning/error logs.
	GroupLog string `json:"group_log,omitempty"`
	// Workers sizes the update dispatch pool.
	Workers int `json:"workers,omitempty"`
}

// HTTPConfig controls the health/webhook listener. Addr wins over Port.
// With both empty the listener only starts in webhook mode, on :10000.
type HTTPConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"`
	Port    string `json:"port,omitempty"`
	// Pprof exposes /debug/pprof on the same listener; PprofToken is never logged.
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig locates the SQLite database.
//
// Example:
//
//	"storage": { "path": "./remindbot.db", "busy_timeout": "1s" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	// ResetOnStart drops and recreates every table at startup.
	ResetOnStart bool `json:"reset_on_start,omitempty"`
}

type CatalogConfig struct {
	TasksFile       string `json:"tasks_file"`
	SpecialistsFile string `json:"specialists_file"`
}

// ReminderConfig shapes the per-subject timers.
//
// Defaults (when fields are omitted):
//   - timezone: "Europe/Moscow"
//   - window_start / window_end: "04:00" / "19:00" (both inclusive)
//   - list_delay: "10s", nearest_delay: "20s"
//   - scan_first: "5s", scan_every: "30s"
//   - notify_timeout: "10s", tick_timeout: "1m"
type ReminderConfig struct {
	Timezone      string `json:"timezone,omitempty"`
	WindowStart   string `json:"window_start,omitempty"`
	WindowEnd     string `json:"window_end,omitempty"`
	ListDelay     string `json:"list_delay,omitempty"`
	NearestDelay  string `json:"nearest_delay,omitempty"`
	ScanFirst     string `json:"scan_first,omitempty"`
	ScanEvery     string `json:"scan_every,omitempty"`
	NotifyTimeout string `json:"notify_timeout,omitempty"`
	TickTimeout   string `json:"tick_timeout,omitempty"`
}

// TaskEngineConfig controls the worker pool that runs timer callbacks.
//
// Defaults: workers 2, queue_size 256, history_size 200, no timeouts.
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// NotifierConfig controls the outbound message pipeline.
// Enabled is a pointer so an omitted section keeps the pipeline on.
type NotifierConfig struct {
	Enabled         *bool  `json:"enabled,omitempty"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// LedgerConfig points at the spreadsheet that records connect/disconnect rows.
// CredentialsJSON is never logged.
type LedgerConfig struct {
	Enabled            bool   `json:"enabled"`
	SpreadsheetID      string `json:"spreadsheet_id,omitempty"`
	Range              string `json:"range,omitempty"`
	ServiceAccountFile string `json:"service_account_file,omitempty"`
	CredentialsJSON    string `json:"credentials_json,omitempty"`
	Timeout            string `json:"timeout,omitempty"`
}

// NotifierEnabled reports the effective notifier switch.
func (c *Config) NotifierEnabled() bool {
	return c.Notifier.Enabled == nil || *c.Notifier.Enabled
}

// WebhookMode reports whether updates arrive over HTTP.
func (c *Config) WebhookMode() bool {
	return c.Telegram.Mode == ModeWebhook
}
