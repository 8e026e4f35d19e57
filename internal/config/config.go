// Package config loads the server configuration from the data directory.
//
// Precedence, lowest to highest: built-in defaults, config.yaml, .env and the
// process environment (CONCLAVE_* variables), then explicitly set CLI flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file name inside the data directory.
const FileName = "config.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONCLAVE_"

// Config is the on-disk server configuration.
type Config struct {
	HTTP        string     `yaml:"http"`
	LogLevel    string     `yaml:"log_level"`
	CORSOrigins []string   `yaml:"cors_origins"`
	History     bool       `yaml:"history"`
	Inbox       Inbox      `yaml:"inbox"`
	Completion  Completion `yaml:"completion"`
}

// Inbox configures the drop directory watcher. An empty Dir disables it.
type Inbox struct {
	Dir      string `yaml:"dir"`
	FolderID string `yaml:"folder_id"`
}

// Completion configures outbound calls to model providers.
type Completion struct {
	// RequestsPerMinute paces outbound calls. 0 means unlimited.
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Default returns the configuration written on first run.
func Default() Config {
	return Config{
		HTTP:        "localhost:8080",
		LogLevel:    "info",
		CORSOrigins: []string{"http://localhost:5173"},
		Completion: Completion{
			RequestsPerMinute: 60,
			Timeout:           2 * time.Minute,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.HTTP == "" {
		return errors.New("http is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Completion.RequestsPerMinute < 0 {
		return errors.New("completion.requests_per_minute must be non-negative")
	}
	if c.Completion.Timeout < 0 {
		return errors.New("completion.timeout must be non-negative")
	}
	if c.Inbox.Dir != "" && c.Inbox.FolderID == "" {
		return errors.New("inbox.folder_id is required when inbox.dir is set")
	}
	return nil
}

// Load reads dataDir/config.yaml, creating it with defaults if missing, then
// applies dataDir/.env and CONCLAVE_* environment overrides.
func Load(dataDir string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(dataDir, FileName)
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	switch {
	case err == nil:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty file decodes to io.EOF and keeps the defaults.
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
		}
	case os.IsNotExist(err):
		if err := Save(dataDir, &cfg); err != nil {
			return nil, err
		}
		slog.Info("Wrote default config", "path", path)
	default:
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}

	if err := loadDotEnv(filepath.Join(dataDir, ".env")); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Save writes cfg to dataDir/config.yaml.
func Save(dataDir string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	path := filepath.Join(dataDir, FileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}

// loadDotEnv loads the file into the process environment without overriding
// variables already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPrefix + "HTTP"); ok && v != "" {
		c.HTTP = v
	}
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "HISTORY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sHISTORY: %w", EnvPrefix, err)
		}
		c.History = b
	}
	if v, ok := lookup(EnvPrefix + "INBOX_DIR"); ok {
		c.Inbox.Dir = v
	}
	if v, ok := lookup(EnvPrefix + "INBOX_FOLDER_ID"); ok {
		c.Inbox.FolderID = v
	}
	if v, ok := lookup(EnvPrefix + "REQUESTS_PER_MINUTE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREQUESTS_PER_MINUTE: %w", EnvPrefix, err)
		}
		c.Completion.RequestsPerMinute = n
	}
	if v, ok := lookup(EnvPrefix + "COMPLETION_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sCOMPLETION_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Completion.Timeout = d
	}
	return nil
}

// Override applies explicitly set flag values. set holds the names of the
// flags the user passed, as collected with flag.Visit.
func (c *Config) Override(set map[string]bool, httpAddr, logLevel string) {
	if set["http"] {
		c.HTTP = httpAddr
	}
	if set["log-level"] {
		c.LogLevel = logLevel
	}
}

// Addr returns the listen address, expanding a bare ":port" to localhost.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.HTTP, ":") {
		return "localhost" + c.HTTP
	}
	return c.HTTP
}

// ParseLevel maps a log level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
