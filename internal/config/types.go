package config

// Config is the on-disk configuration (JSON or YAML).
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Debug     DebugConfig     `json:"debug"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// AdminUserIDs may use /channels in private chat without per-channel checks.
	AdminUserIDs []int64 `json:"admin_user_ids,omitempty"`
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
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls posting triggers.
//
// Defaults (when fields are omitted/zero):
//   - timezone: "UTC"
//   - deliver_timeout: "30s"
//   - rate_per_sec: 20
type SchedulerConfig struct {
	Timezone       string `json:"timezone,omitempty"`
	DeliverTimeout string `json:"deliver_timeout,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the durable backend for the channel table.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/postbot.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // file (default) | sqlite
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DebugConfig enables the pprof and /healthz HTTP endpoint.
// Binding to a non-loopback address requires a token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default 127.0.0.1:6060
	Token   string `json:"token,omitempty"`
}

const (
	DefaultTimezone       = "UTC"
	DefaultStorageDriver  = "file"
	DefaultStoragePath    = "./data/channels.json"
	DefaultSQLitePath     = "./data/postbot.db"
	DefaultDeliverTimeout = "30s"
	DefaultRatePerSec     = 20
)

// ApplyDefaults fills empty fields in place.
func (c *Config) ApplyDefaults() {
	if c == nil {
		return
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = DefaultTimezone
	}
	if c.Scheduler.DeliverTimeout == "" {
		c.Scheduler.DeliverTimeout = DefaultDeliverTimeout
	}
	if c.Scheduler.RatePerSec <= 0 {
		c.Scheduler.RatePerSec = DefaultRatePerSec
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.Path == "" {
		if c.Storage.Driver == "sqlite" {
			c.Storage.Path = DefaultSQLitePath
		} else {
			c.Storage.Path = DefaultStoragePath
		}
	}
}
