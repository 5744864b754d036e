package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrMissingDatabaseURL is returned when no database DSN is configured.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// ErrMissingAuthSecret is returned when no session signing secret is configured.
var ErrMissingAuthSecret = errors.New("AUTH_SECRET is required")

// defaultAdminEmails is the fixed allow-list the configured ADMIN_EMAILS
// are unioned with.
var defaultAdminEmails = []string{"admirfric@gmail.com"}

// Config holds application configuration (DB, Redis, auth, Xtream client).
type Config struct {
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	ServerPort  string `yaml:"server_port" env:"SERVER_PORT"`
	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`

	// AuthSecret verifies the HS256 session tokens issued by the OAuth
	// front-end (shared secret, NextAuth-style).
	AuthSecret string `yaml:"auth_secret" env:"AUTH_SECRET"`

	// AdminEmailsRaw is a comma-separated allow-list of admin addresses,
	// unioned with the built-in default list. Use AdminEmails().
	AdminEmailsRaw string `yaml:"admin_emails" env:"ADMIN_EMAILS"`

	UserAgent string        `yaml:"user_agent" env:"XTREAM_USER_AGENT"`
	Timeout   time.Duration `yaml:"timeout" env:"XTREAM_TIMEOUT"`
}

// Load builds config from environment variables. When DATABASE_URL is not
// set it first tries .env.local and .env from the working directory.
// DATABASE_URL and AUTH_SECRET are required, everything else optional.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		// Best effort; missing files are fine.
		_ = godotenv.Load(".env.local")
		_ = godotenv.Load(".env")
	}

	c := &Config{Timeout: 30 * time.Second}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("env parse: %w", err)
	}
	c.applyDefaults()

	if c.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if c.AuthSecret == "" {
		return nil, ErrMissingAuthSecret
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.ServerPort == "" {
		c.ServerPort = "8080"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// AdminEmails returns the effective admin allow-list: the built-in
// defaults unioned with ADMIN_EMAILS, lower-cased and de-duplicated.
func (c *Config) AdminEmails() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(email string) {
		e := strings.ToLower(strings.TrimSpace(email))
		if e == "" || seen[e] {
			return
		}
		seen[e] = true
		out = append(out, e)
	}
	for _, e := range defaultAdminEmails {
		add(e)
	}
	for _, e := range strings.Split(c.AdminEmailsRaw, ",") {
		add(e)
	}
	return out
}
