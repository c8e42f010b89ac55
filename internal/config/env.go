package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides for secrets.
const (
	EnvTelegramToken = "PLANWISE_TELEGRAM_TOKEN"
	EnvDatabaseDSN   = "PLANWISE_DATABASE_DSN"
	EnvHTTPToken     = "PLANWISE_HTTP_TOKEN"
	EnvLogLevel      = "PLANWISE_LOG_LEVEL"
)

// LoadEnvFiles loads .env style files into the process environment. Missing files are
// skipped; variables already set win.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overrides secrets from the environment.
func (c *Config) ApplyEnv() { c.applyEnv(os.LookupEnv) }

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvTelegramToken); ok {
		c.Telegram.Token = v
	}
	if v, ok := get(EnvDatabaseDSN); ok {
		c.Storage.DSN = v
	}
	if v, ok := get(EnvHTTPToken); ok {
		c.HTTP.Token = v
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Logging.Level = v
	}
}
