// Package config loads the companion's configuration: an optional YAML file
// (SMRITI_CONFIG) overlaid by environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HrishitaRaj/smriti-ai/common/crypto"
	"github.com/HrishitaRaj/smriti-ai/common/environment"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/cache"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/temporal"
)

// Config is the full companion configuration.
type Config struct {
	Remote     RemoteConfig     `yaml:"remote"`
	Store      StoreConfig      `yaml:"store"`
	Cache      CacheConfig      `yaml:"cache"`
	Dates      DatesConfig      `yaml:"dates"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Matrix     MatrixConfig     `yaml:"matrix"`
	Log        LogConfig        `yaml:"log"`
}

// RemoteConfig points at the recall service.
type RemoteConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// StoreConfig locates the SQLite file backing the local cache.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig names the cache key and the optional at-rest key.
type CacheConfig struct {
	Key string `yaml:"key"`
	// KeyHex is a 64-character hex AES-256 key. Empty stores plaintext.
	KeyHex string `yaml:"key_hex"`
}

// DatesConfig controls how dates in memories are read.
type DatesConfig struct {
	// Order is "dmy" or "mdy" for numeric dates like 05/06/2021.
	Order string `yaml:"order"`
	// Timezone is an IANA name; empty means the host's local zone.
	Timezone string `yaml:"timezone"`
}

// TranscribeConfig is the optional batch transcription endpoint.
type TranscribeConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// MatrixConfig is the chat surface connection. All three credentials must be
// set together or not at all.
type MatrixConfig struct {
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token"`
	Rooms       []string `yaml:"rooms"`
}

// Enabled reports whether the Matrix surface should start.
func (m MatrixConfig) Enabled() bool {
	return m.Homeserver != "" || m.UserID != "" || m.AccessToken != ""
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{URL: "http://localhost:8000"},
		Store:  StoreConfig{Path: "./smriti.db"},
		Cache:  CacheConfig{Key: cache.DefaultKey},
		Dates:  DatesConfig{Order: "dmy"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration: defaults, then the YAML file at
// SMRITI_CONFIG when set, then environment variables. The result is
// validated.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("SMRITI_CONFIG"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates it. Environment
// variables are not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	environment.OverrideString(&c.Remote.URL, "SMRITI_REMOTE_URL")
	environment.OverrideString(&c.Remote.Token, "SMRITI_REMOTE_TOKEN")
	environment.OverrideString(&c.Store.Path, "SMRITI_DB_PATH")
	environment.OverrideString(&c.Cache.Key, "SMRITI_CACHE_KEY")
	environment.OverrideString(&c.Cache.KeyHex, "SMRITI_CACHE_KEY_HEX")
	environment.OverrideString(&c.Dates.Order, "SMRITI_DATE_ORDER")
	environment.OverrideString(&c.Dates.Timezone, "SMRITI_TIMEZONE")
	environment.OverrideString(&c.Transcribe.URL, "SMRITI_TRANSCRIBE_URL")
	environment.OverrideString(&c.Transcribe.Token, "SMRITI_TRANSCRIBE_TOKEN")
	environment.OverrideString(&c.Matrix.Homeserver, "MATRIX_HOMESERVER")
	environment.OverrideString(&c.Matrix.UserID, "MATRIX_USER_ID")
	environment.OverrideString(&c.Matrix.AccessToken, "MATRIX_ACCESS_TOKEN")
	environment.OverrideStringSlice(&c.Matrix.Rooms, "MATRIX_ROOMS")
	environment.OverrideString(&c.Log.Level, "LOG_LEVEL")
	environment.OverrideString(&c.Log.Format, "LOG_FORMAT")
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config must not be nil")
	}

	if c.Remote.URL != "" {
		if err := validateHTTPURL(c.Remote.URL); err != nil {
			return fmt.Errorf("remote.url: %w", err)
		}
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if strings.TrimSpace(c.Cache.Key) == "" {
		return fmt.Errorf("cache.key must not be empty")
	}
	if c.Cache.KeyHex != "" {
		if _, err := crypto.ParseKey(c.Cache.KeyHex); err != nil {
			return fmt.Errorf("cache.key_hex: %w", err)
		}
	}
	if _, err := temporal.ParseDateOrder(c.Dates.Order); err != nil {
		return fmt.Errorf("dates.order: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("dates.timezone: %w", err)
	}
	if c.Transcribe.URL != "" {
		if err := validateHTTPURL(c.Transcribe.URL); err != nil {
			return fmt.Errorf("transcribe.url: %w", err)
		}
	}
	if c.Matrix.Enabled() {
		if c.Matrix.Homeserver == "" || c.Matrix.UserID == "" || c.Matrix.AccessToken == "" {
			return fmt.Errorf("matrix: homeserver, user_id and access_token must all be set")
		}
		if !strings.HasPrefix(c.Matrix.UserID, "@") {
			return fmt.Errorf("matrix.user_id must look like @user:server, got %q", c.Matrix.UserID)
		}
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// DateOrder returns the parsed numeric date order.
func (c *Config) DateOrder() temporal.DateOrder {
	order, _ := temporal.ParseDateOrder(c.Dates.Order)
	return order
}

// Location returns the configured zone, time.Local when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Dates.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Dates.Timezone)
}

// CacheSealer returns the at-rest sealer, or nil when no key is configured.
func (c *Config) CacheSealer() (*crypto.Sealer, error) {
	if c.Cache.KeyHex == "" {
		return nil, nil
	}
	key, err := crypto.ParseKey(c.Cache.KeyHex)
	if err != nil {
		return nil, err
	}
	return crypto.NewSealer(key)
}

// Secrets lists configured secret values, for log redaction.
func (c *Config) Secrets() []string {
	return []string{c.Remote.Token, c.Cache.KeyHex, c.Transcribe.Token, c.Matrix.AccessToken}
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
