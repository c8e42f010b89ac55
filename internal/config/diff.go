package config

import (
	"reflect"
	"strings"

	logx "planwise/pkg/logx"
)

// SummarizeConfigChange lists changed sections and safe fields for logging.
// Secrets (tokens, DSN) are reported only as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		attrs   []logx.Field
	)
	section := func(name string, differs bool, fields ...logx.Field) {
		if !differs {
			return
		}
		changed = append(changed, name)
		attrs = append(attrs, fields...)
	}
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	section("user", oldCfg.User != newCfg.User,
		logx.Int64("user.id", newCfg.User.ID),
		logx.String("user.timezone", newCfg.User.Timezone),
	)
	section("logging", oldCfg.Logging != newCfg.Logging,
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.console", newCfg.Logging.Console),
		logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
	)

	ost, nst := oldCfg.Storage, newCfg.Storage
	dsnChanged := ost.DSN != nst.DSN
	ost.DSN, nst.DSN = "", ""
	section("storage", dsnChanged || ost != nst,
		logx.String("storage.driver", nst.Driver),
		logx.Bool("storage.dsn_set", set(newCfg.Storage.DSN)),
		logx.Bool("storage.restart_required", true),
	)

	section("scheduling", !reflect.DeepEqual(oldCfg.Scheduling, newCfg.Scheduling),
		logx.Any("scheduling.productive_hours", newCfg.Scheduling.ProductiveHours),
		logx.String("scheduling.conflict_buffer", newCfg.Scheduling.ConflictBuffer),
		logx.Int("scheduling.category_overrides", len(newCfg.Scheduling.CategoryDefaults)),
	)
	section("breaks", oldCfg.Breaks != newCfg.Breaks,
		logx.String("breaks.window", newCfg.Breaks.Window),
	)
	section("reminder", oldCfg.Reminder != newCfg.Reminder,
		logx.Bool("reminder.enabled", newCfg.Reminder.Enabled),
		logx.String("reminder.interval", newCfg.Reminder.Interval),
		logx.Int("reminder.upcoming_days", newCfg.Reminder.UpcomingDays),
	)

	on, nn := oldCfg.NotifierOrDefault(), newCfg.NotifierOrDefault()
	section("notifier", on != nn,
		logx.Bool("notifier.enabled", nn.Enabled),
		logx.Int("notifier.workers", nn.Workers),
		logx.Int("notifier.rate_per_sec", nn.RatePerSec),
		logx.String("notifier.dedup_window", nn.DedupWindow),
		logx.Bool("notifier.persist_dedup", nn.PersistDedup),
	)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	tokenChanged := ot.Token != nt.Token
	ot.Token, nt.Token = "", ""
	section("telegram", tokenChanged || ot != nt,
		logx.Bool("telegram.enabled", nt.Enabled),
		logx.Bool("telegram.token_set", set(newCfg.Telegram.Token)),
		logx.Int64("telegram.chat_id", nt.ChatID),
	)

	oh, nh := oldCfg.HTTP, newCfg.HTTP
	httpTokenChanged := oh.Token != nh.Token
	oh.Token, nh.Token = "", ""
	section("http", httpTokenChanged || !reflect.DeepEqual(oh, nh),
		logx.Bool("http.enabled", nh.Enabled),
		logx.String("http.addr", nh.Addr),
		logx.Bool("http.token_set", set(newCfg.HTTP.Token)),
		logx.Bool("http.websocket", nh.WebSocket),
	)

	section("digest", oldCfg.Digest != newCfg.Digest,
		logx.Bool("digest.enabled", newCfg.Digest.Enabled),
		logx.String("digest.schedule", newCfg.Digest.Schedule),
	)
	return changed, attrs
}
