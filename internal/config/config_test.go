package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
user:
  id: 1
  timezone: UTC
logging:
  level: info
  console: true
storage:
  driver: sqlite
  path: ./planwise.db
scheduling:
  productive_hours: [9, 10, 14]
  conflict_buffer: 15m
  category_defaults:
    coding: 150
reminder:
  enabled: true
  interval: 5m
digest:
  enabled: true
  schedule: "@daily"
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	p := writeFile(t, t.TempDir(), "planwise.yaml", sampleYAML)

	cfg, err := NewConfigManager(p).Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.User.ID != 1 || cfg.Storage.Driver != "sqlite" || !cfg.Reminder.Enabled {
		t.Fatalf("Parse() = %+v", cfg)
	}
	if got := cfg.Scheduling.ProductiveHours; len(got) != 3 || got[2] != 14 {
		t.Fatalf("productive_hours = %v", got)
	}
	if cfg.Scheduling.CategoryDefaults["coding"] != 150 {
		t.Fatalf("category_defaults = %v", cfg.Scheduling.CategoryDefaults)
	}
	if n := cfg.NotifierOrDefault(); !n.Enabled || !n.Console {
		t.Fatalf("NotifierOrDefault() = %+v, want enabled console", n)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown field", `{"user": {"id": 1}, "bogus": true}`, "bogus"},
		{"trailing data", `{"user": {"id": 1}} {}`, "trailing"},
		{"bad hour", `{"scheduling": {"productive_hours": [25]}}`, "productive_hours[0]"},
		{"bad duration", `{"reminder": {"interval": "soon"}}`, "reminder.interval"},
		{"bad driver", `{"storage": {"driver": "mongo"}}`, "storage.driver"},
		{"postgres without dsn", `{"storage": {"driver": "postgres"}}`, "storage.dsn"},
		{"bad timezone", `{"user": {"timezone": "Mars/Olympus"}}`, "user.timezone"},
	}
	for _, tt := range tests {
		p := writeFile(t, t.TempDir(), "planwise.json", tt.body)
		_, err := NewConfigManager(p).Parse()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: Parse() error = %v, want mention of %q", tt.name, err, tt.want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvTelegramToken: "tg-secret",
		EnvDatabaseDSN:   "postgres://x",
		EnvHTTPToken:     "  ",
	}
	cfg := Config{HTTP: HTTPConfig{Token: "from-file"}}
	cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Telegram.Token != "tg-secret" || cfg.Storage.DSN != "postgres://x" {
		t.Fatalf("applyEnv() = %+v", cfg)
	}
	if cfg.HTTP.Token != "from-file" {
		t.Fatalf("blank env replaced http token: %q", cfg.HTTP.Token)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, ".env", "PLANWISE_TEST_ONLY_VALUE=hello\n")
	t.Setenv("PLANWISE_TEST_ONLY_VALUE", "")
	os.Unsetenv("PLANWISE_TEST_ONLY_VALUE")

	if err := LoadEnvFiles(filepath.Join(dir, "missing.env"), p); err != nil {
		t.Fatalf("LoadEnvFiles() error = %v", err)
	}
	if got := os.Getenv("PLANWISE_TEST_ONLY_VALUE"); got != "hello" {
		t.Fatalf("env = %q, want hello", got)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{Telegram: TelegramConfig{Token: "a"}, Reminder: ReminderConfig{Interval: "5m"}}
	newCfg := &Config{Telegram: TelegramConfig{Token: "b"}, Reminder: ReminderConfig{Interval: "2m"}}

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "reminder,telegram" {
		t.Fatalf("changed = %v, want reminder,telegram", changed)
	}
	if len(attrs) == 0 {
		t.Fatalf("attrs empty")
	}

	same, _ := SummarizeConfigChange(newCfg, newCfg)
	if len(same) != 0 {
		t.Fatalf("changed = %v for identical configs", same)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("ParseDurationOrDefault(empty) = %v, %v", d, err)
	}

	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"90s", 90 * time.Second, false},
		{" 5m ", 5 * time.Minute, false},
		{"365d", 365 * 24 * time.Hour, false},
		{"0", 0, false},
		{"-1s", 0, true},
		{"-2d", 0, true},
		{"xd", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("reminder.overdue_lookback", tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseDurationField(%q) = %v, %v, want %v (err %v)", tt.in, got, err, tt.want, tt.wantErr)
		}
		if err != nil && !strings.Contains(err.Error(), "reminder.overdue_lookback") {
			t.Fatalf("error %q does not name the field", err)
		}
	}
}

func TestToJSON(t *testing.T) {
	t.Parallel()

	got, err := toJSON("c.yaml", []byte("http:\n  enabled: true\n  allowed_origins: [a, b]\n1: x\n"))
	if err != nil {
		t.Fatalf("toJSON() error = %v", err)
	}
	if !strings.Contains(string(got), `"allowed_origins":["a","b"]`) || !strings.Contains(string(got), `"1":"x"`) {
		t.Fatalf("toJSON() = %s", got)
	}
	if got, _ := toJSON("c.yml", []byte("  \n")); string(got) != "{}" {
		t.Fatalf("toJSON(empty) = %s, want {}", got)
	}
	raw := []byte(`{"user":{"id":1}}`)
	if got, _ := toJSON("c.json", raw); string(got) != string(raw) {
		t.Fatalf("toJSON(json) = %s, want passthrough", got)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "planwise.json", `{"user": {"id": 1}}`)
	m := NewConfigManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.User.ID == 99 {
			return os.ErrPermission
		}
		return nil
	})
	ch := m.Subscribe(4)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(200 * time.Millisecond)

	writeFile(t, dir, "planwise.json", `{"user": {"id": 99}}`)
	time.Sleep(600 * time.Millisecond)
	writeFile(t, dir, "planwise.json", `{"user": {"id": 2}}`)

	select {
	case cfg := <-ch:
		if cfg.User.ID != 2 {
			t.Fatalf("published user %d, want 2 (99 must be rejected)", cfg.User.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no config published")
	}
	if m.Get().User.ID != 2 {
		t.Fatalf("Get() = %+v, want committed user 2", m.Get().User)
	}
}
