// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the connection configuration value object consumed by
// process bootstrap and the migration tooling.
package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend discriminates the adapter a configuration targets.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendMySQL    Backend = "mysql"
	BackendMongo    Backend = "mongo"
)

// Config carries everything needed to obtain a connected driver.
//
// Pool bounds, SSL, and timeouts are accepted uniformly; each driver maps
// them onto its backend-native connection options.
type Config struct {
	Backend  Backend `yaml:"backend"`
	Host     string  `yaml:"host"`
	Port     int     `yaml:"port"`
	Database string  `yaml:"database"`
	Username string  `yaml:"username"`
	Password string  `yaml:"password"`

	// SSLMode is backend-native ("disable", "require", ...); empty means
	// the backend default.
	SSLMode string `yaml:"ssl_mode"`

	PoolMin int `yaml:"pool_min"`
	PoolMax int `yaml:"pool_max"`

	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`

	// MaxRetries bounds automatic reconnection attempts before the
	// connection is marked failed. RetryBaseDelay seeds the capped
	// exponential backoff.
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

// UnmarshalYAML decodes a Config, accepting "5s" style duration strings
// for the timeout fields (yaml has no native duration scalar).
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Backend  Backend `yaml:"backend"`
		Host     string  `yaml:"host"`
		Port     int     `yaml:"port"`
		Database string  `yaml:"database"`
		Username string  `yaml:"username"`
		Password string  `yaml:"password"`
		SSLMode  string  `yaml:"ssl_mode"`
		PoolMin  int     `yaml:"pool_min"`
		PoolMax  int     `yaml:"pool_max"`

		ConnectTimeout   string `yaml:"connect_timeout"`
		StatementTimeout string `yaml:"statement_timeout"`
		MaxRetries       int    `yaml:"max_retries"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	c.Backend = raw.Backend
	c.Host = raw.Host
	c.Port = raw.Port
	c.Database = raw.Database
	c.Username = raw.Username
	c.Password = raw.Password
	c.SSLMode = raw.SSLMode
	c.PoolMin = raw.PoolMin
	c.PoolMax = raw.PoolMax
	c.MaxRetries = raw.MaxRetries

	for _, field := range []struct {
		value string
		into  *time.Duration
	}{
		{raw.ConnectTimeout, &c.ConnectTimeout},
		{raw.StatementTimeout, &c.StatementTimeout},
		{raw.RetryBaseDelay, &c.RetryBaseDelay},
	} {
		if field.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(field.value)
		if err != nil {
			return fmt.Errorf("anvil: invalid duration %q: %w", field.value, err)
		}
		*field.into = parsed
	}
	return nil
}

// LoadConfig reads a yaml file mapping connection names to Configs.
//
// Example file:
//
//	default:
//	  backend: postgres
//	  host: localhost
//	  port: 5432
//	  database: app
func LoadConfig(path string) (map[string]Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("anvil: read config: %w", err)
	}
	configs := make(map[string]Config)
	if err := yaml.Unmarshal(raw, &configs); err != nil {
		return nil, fmt.Errorf("anvil: parse config: %w", err)
	}
	return configs, nil
}

// normalized fills retry defaults so a zero-value Config still reconnects
// sensibly.
func (c Config) normalized() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
	return c
}
