package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "5m", "4h"). Empty means default.
type Config struct {
	User       UserConfig       `json:"user"`
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Scheduling SchedulingConfig `json:"scheduling"`
	Breaks     BreaksConfig     `json:"breaks"`
	Reminder   ReminderConfig   `json:"reminder"`

	// Notifier defaults to enabled with console delivery when the section is omitted.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Telegram TelegramConfig  `json:"telegram"`
	HTTP     HTTPConfig      `json:"http"`
	Digest   DigestConfig    `json:"digest"`
}

// UserConfig identifies the instance user. Timezone is an IANA name; empty means local.
type UserConfig struct {
	ID       int64  `json:"id"`
	Timezone string `json:"timezone,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./planwise.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://planwise@localhost/planwise?sslmode=disable" }
type StorageConfig struct {
	Driver          string `json:"driver"`
	Path            string `json:"path,omitempty"`
	DSN             string `json:"dsn,omitempty"` // prefer PLANWISE_DATABASE_DSN; never logged
	BusyTimeout     string `json:"busy_timeout,omitempty"`
	MaxOpenConns    int    `json:"max_open_conns,omitempty"`
	MaxIdleConns    int    `json:"max_idle_conns,omitempty"`
	ConnMaxLifetime string `json:"conn_max_lifetime,omitempty"`
}

type SchedulingConfig struct {
	// ProductiveHours replaces the built-in default when insights have none.
	ProductiveHours    []int              `json:"productive_hours,omitempty"`
	ConflictBuffer     string             `json:"conflict_buffer,omitempty"`      // default 15m
	DefaultTaskMinutes int                `json:"default_task_minutes,omitempty"` // default 60
	SimilarLimit       int                `json:"similar_limit,omitempty"`        // default 5
	CategoryDefaults   map[string]float64 `json:"category_defaults,omitempty"`
	InsightsDays       int                `json:"insights_days,omitempty"` // daily totals; default 7
}

type BreaksConfig struct {
	Window string `json:"window,omitempty"` // default 4h
}

type ReminderConfig struct {
	Enabled         bool   `json:"enabled"`
	Interval        string `json:"interval,omitempty"`       // default 5m
	RetryInterval   string `json:"retry_interval,omitempty"` // default 1m
	StopTimeout     string `json:"stop_timeout,omitempty"`   // default 1s
	UpcomingDays    int    `json:"upcoming_days,omitempty"`  // default 3
	OverdueLookback string `json:"overdue_lookback,omitempty"`
	BreakRepeat     string `json:"break_repeat,omitempty"` // default 1h
}

// NotifierConfig controls the async notification pipeline.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Console         bool   `json:"console"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
}

// DefaultNotifier is used when the notifier section is omitted.
func DefaultNotifier() NotifierConfig {
	return NotifierConfig{
		Enabled:         true,
		Console:         true,
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		DedupWindow:     "10m",
		DedupMaxEntries: 2000,
		PersistDedup:    true,
	}
}

// NotifierOrDefault returns the effective notifier section.
func (c *Config) NotifierOrDefault() NotifierConfig {
	if c == nil || c.Notifier == nil {
		return DefaultNotifier()
	}
	return *c.Notifier
}

type TelegramConfig struct {
	Enabled   bool   `json:"enabled"`
	Token     string `json:"token,omitempty"` // prefer PLANWISE_TELEGRAM_TOKEN; never logged
	ChatID    int64  `json:"chat_id"`
	ThreadID  int    `json:"thread_id,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
	APIURL    string `json:"api_url,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default 127.0.0.1:8080
	Token   string `json:"token,omitempty"` // bearer token; prefer PLANWISE_HTTP_TOKEN
	Mode    string `json:"mode,omitempty"`  // gin mode: release | debug | test
	Pprof   bool   `json:"pprof,omitempty"` // mount /debug/pprof behind the same token

	// WebSocket enables GET /ws/notifications and the websocket notification adapter.
	WebSocket      bool     `json:"websocket"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron, @daily, duration or HH:MM; default "0 8 * * *"
}
