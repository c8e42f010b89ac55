package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks field shapes: known driver, hour range, parseable durations and
// timezone. It reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := c.Location(); err != nil {
		add(err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
	case "postgres", "postgresql", "pq":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add(errors.New("storage.dsn: required for postgres (or set PLANWISE_DATABASE_DSN)"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}

	for i, h := range c.Scheduling.ProductiveHours {
		if h < 0 || h > 23 {
			add(fmt.Errorf("scheduling.productive_hours[%d]: hour %d out of range 0..23", i, h))
		}
	}
	for k, v := range c.Scheduling.CategoryDefaults {
		if v <= 0 {
			add(fmt.Errorf("scheduling.category_defaults.%s: minutes must be > 0", k))
		}
	}

	n := c.NotifierOrDefault()
	durations := map[string]string{
		"storage.busy_timeout":       c.Storage.BusyTimeout,
		"storage.conn_max_lifetime":  c.Storage.ConnMaxLifetime,
		"scheduling.conflict_buffer": c.Scheduling.ConflictBuffer,
		"breaks.window":              c.Breaks.Window,
		"reminder.interval":          c.Reminder.Interval,
		"reminder.retry_interval":    c.Reminder.RetryInterval,
		"reminder.stop_timeout":      c.Reminder.StopTimeout,
		"reminder.overdue_lookback":  c.Reminder.OverdueLookback,
		"reminder.break_repeat":      c.Reminder.BreakRepeat,
		"notifier.retry_base":        n.RetryBase,
		"notifier.retry_max_delay":   n.RetryMaxDelay,
		"notifier.send_timeout":      n.SendTimeout,
		"notifier.dedup_window":      n.DedupWindow,
		"telegram.timeout":           c.Telegram.Timeout,
		"http.read_timeout":          c.HTTP.ReadTimeout,
		"http.write_timeout":         c.HTTP.WriteTimeout,
		"http.shutdown_timeout":      c.HTTP.ShutdownTimeout,
	}
	for path, raw := range durations {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	if c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			add(errors.New("telegram.token: required when telegram is enabled (or set PLANWISE_TELEGRAM_TOKEN)"))
		}
		if c.Telegram.ChatID == 0 {
			add(errors.New("telegram.chat_id: required when telegram is enabled"))
		}
	}

	return errors.Join(errs...)
}

// Location resolves user.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.User.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("user.timezone: %w", err)
	}
	return loc, nil
}
