package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL string `yaml:"database_url"`
	ServerPort  string `yaml:"server_port"`
	RedisURL    string `yaml:"redis_url"`
	AuthSecret  string `yaml:"auth_secret"`
	AdminEmails string `yaml:"admin_emails"`
	UserAgent   string `yaml:"user_agent"`
	Timeout     string `yaml:"timeout"`
}

// LoadFromFile loads config from a YAML file. database_url and
// auth_secret are required.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if f.AuthSecret == "" {
		return nil, ErrMissingAuthSecret
	}
	c := &Config{
		DatabaseURL:    f.DatabaseURL,
		ServerPort:     f.ServerPort,
		RedisURL:       f.RedisURL,
		AuthSecret:     f.AuthSecret,
		AdminEmailsRaw: f.AdminEmails,
		UserAgent:      f.UserAgent,
		Timeout:        30 * time.Second,
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			c.Timeout = d
		}
	}
	c.applyDefaults()
	return c, nil
}
