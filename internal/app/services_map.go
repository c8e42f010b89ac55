package app

import (
	"fmt"
	"time"

	"planwise/internal/breaks"
	"planwise/internal/config"
	"planwise/internal/digest"
	"planwise/internal/estimate"
	"planwise/internal/httpapi"
	"planwise/internal/notifier"
	"planwise/internal/reminder"
	"planwise/internal/schedule"
	"planwise/internal/transport/telegram"
	logx "planwise/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapEstimateConfig(cfg *config.Config) estimate.Config {
	return estimate.Config{
		SimilarLimit: cfg.Scheduling.SimilarLimit,
		Defaults:     cfg.Scheduling.CategoryDefaults,
	}
}

func mapScheduleConfig(cfg *config.Config) (schedule.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return schedule.Config{}, err
	}
	buffer, err := config.ParseDurationField("scheduling.conflict_buffer", cfg.Scheduling.ConflictBuffer)
	if err != nil {
		return schedule.Config{}, err
	}
	var fallback time.Duration
	if cfg.Scheduling.DefaultTaskMinutes > 0 {
		fallback = time.Duration(cfg.Scheduling.DefaultTaskMinutes) * time.Minute
	}
	return schedule.Config{
		DefaultHours:     cfg.Scheduling.ProductiveHours,
		ConflictBuffer:   buffer,
		FallbackDuration: fallback,
		Location:         loc,
	}, nil
}

func mapBreaksConfig(cfg *config.Config) (breaks.Config, error) {
	window, err := config.ParseDurationField("breaks.window", cfg.Breaks.Window)
	if err != nil {
		return breaks.Config{}, err
	}
	return breaks.Config{Window: window}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.NotifierOrDefault()
	if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: workers, queue_size, rate_per_sec and retry_max must be >= 0")
	}
	if n.DedupMaxEntries < 0 || n.HistorySize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: dedup_max_entries and history_size must be >= 0")
	}
	out := notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		DedupMaxEntries: n.DedupMaxEntries,
		PersistDedup:    n.PersistDedup,
		HistorySize:     n.HistorySize,
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

func mapReminderConfig(cfg *config.Config) (reminder.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return reminder.Config{}, err
	}
	if cfg.Reminder.UpcomingDays < 0 {
		return reminder.Config{}, fmt.Errorf("reminder.upcoming_days must be >= 0")
	}
	r := cfg.Reminder
	out := reminder.Config{UserID: cfg.User.ID, UpcomingDays: r.UpcomingDays, Location: loc}
	fields := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"reminder.interval", r.Interval, &out.Interval},
		{"reminder.retry_interval", r.RetryInterval, &out.RetryInterval},
		{"reminder.stop_timeout", r.StopTimeout, &out.StopTimeout},
		{"reminder.overdue_lookback", r.OverdueLookback, &out.OverdueLookback},
		{"reminder.break_repeat", r.BreakRepeat, &out.BreakRepeat},
		{"breaks.window", cfg.Breaks.Window, &out.BreakWindow},
	}
	for _, f := range fields {
		d, err := config.ParseDurationField(f.path, f.raw)
		if err != nil {
			return reminder.Config{}, err
		}
		*f.dst = d
	}
	return out, nil
}

func mapDigestConfig(cfg *config.Config) (digest.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return digest.Config{}, err
	}
	if cfg.Digest.Schedule != "" {
		if _, err := digest.ParseSchedule(cfg.Digest.Schedule); err != nil {
			return digest.Config{}, fmt.Errorf("digest.schedule: %w", err)
		}
	}
	return digest.Config{
		Enabled:  cfg.Digest.Enabled,
		UserID:   cfg.User.ID,
		Schedule: cfg.Digest.Schedule,
		Location: loc,
	}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	t := cfg.Telegram
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", t.Timeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:     t.Token,
		ChatID:    t.ChatID,
		ThreadID:  t.ThreadID,
		ParseMode: t.ParseMode,
		URL:       t.APIURL,
		Timeout:   timeout,
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	h := cfg.HTTP
	out := httpapi.Config{
		Enabled: h.Enabled,
		Addr:    h.Addr,
		Token:   h.Token,
		Mode:    h.Mode,
		User:    cfg.User.ID,
		Pprof:   h.Pprof,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 15*time.Second); err != nil {
		return httpapi.Config{}, err
	}
	// Zero keeps long-lived websocket writes unbounded at the server level.
	if out.WriteTimeout, err = config.ParseDurationField("http.write_timeout", h.WriteTimeout); err != nil {
		return httpapi.Config{}, err
	}
	out.IdleTimeout = 60 * time.Second
	return out, nil
}

func httpShutdownTimeout(cfg *config.Config) time.Duration {
	d, err := config.ParseDurationOrDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout, 3*time.Second)
	if err != nil {
		return 3 * time.Second
	}
	return d
}
