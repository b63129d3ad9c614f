package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HrishitaRaj/smriti-ai/internal/smriti/config"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/temporal"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Remote.URL != "http://localhost:8000" || cfg.Cache.Key != "smriti_local_memories" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.DateOrder() != temporal.DayFirst {
		t.Errorf("DateOrder = %v", cfg.DateOrder())
	}
	if cfg.Matrix.Enabled() {
		t.Error("matrix should be disabled by default")
	}
	if s, err := cfg.CacheSealer(); s != nil || err != nil {
		t.Errorf("CacheSealer = %v, %v", s, err)
	}
}

func TestParse_YAML(t *testing.T) {
	doc := `
remote:
  url: https://recall.example.org
dates:
  order: MDY
  timezone: Asia/Kolkata
matrix:
  homeserver: https://matrix.example.org
  user_id: "@smriti:example.org"
  access_token: syt_abc
  rooms: ["!family:example.org"]
`
	cfg, err := config.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Remote.URL != "https://recall.example.org" {
		t.Errorf("Remote.URL = %q", cfg.Remote.URL)
	}
	if cfg.Store.Path != "./smriti.db" {
		t.Errorf("unset field lost its default: %q", cfg.Store.Path)
	}
	if cfg.DateOrder() != temporal.MonthFirst {
		t.Errorf("DateOrder = %v", cfg.DateOrder())
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Kolkata" {
		t.Errorf("Location = %v, %v", loc, err)
	}
	if !cfg.Matrix.Enabled() || len(cfg.Matrix.Rooms) != 1 {
		t.Errorf("Matrix = %+v", cfg.Matrix)
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":   "remote:\n  uri: http://x\n",
		"bad url":         "remote:\n  url: ftp://x\n",
		"bad order":       "dates:\n  order: ymd\n",
		"bad timezone":    "dates:\n  timezone: Mars/Olympus\n",
		"short key":       "cache:\n  key_hex: abcd\n",
		"partial matrix":  "matrix:\n  homeserver: https://m.org\n",
		"bad user id":     "matrix:\n  homeserver: https://m.org\n  user_id: bot\n  access_token: t\n",
		"bad log level":   "log:\n  level: loud\n",
		"bad log format":  "log:\n  format: xml\n",
		"empty cache key": "cache:\n  key: \"\"\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := config.Parse([]byte(doc)); err == nil {
				t.Errorf("expected error for:\n%s", doc)
			}
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smriti.yaml")
	doc := "remote:\n  url: http://file.example:8000\n  token: from-file\nstore:\n  path: " + filepath.Join(dir, "a.db") + "\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SMRITI_CONFIG", path)
	t.Setenv("SMRITI_REMOTE_TOKEN", "from-env")
	t.Setenv("SMRITI_CACHE_KEY_HEX", strings.Repeat("0f", 32))
	t.Setenv("MATRIX_ROOMS", "!a:x, !b:x")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Remote.URL != "http://file.example:8000" {
		t.Errorf("Remote.URL = %q", cfg.Remote.URL)
	}
	if cfg.Remote.Token != "from-env" {
		t.Errorf("env did not override token: %q", cfg.Remote.Token)
	}
	if len(cfg.Matrix.Rooms) != 2 {
		t.Errorf("Rooms = %v", cfg.Matrix.Rooms)
	}
	sealer, err := cfg.CacheSealer()
	if err != nil || sealer == nil {
		t.Errorf("CacheSealer = %v, %v", sealer, err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("SMRITI_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := config.Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("SMRITI_CONFIG", "")
	t.Setenv("SMRITI_DATE_ORDER", "mdy")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DateOrder() != temporal.MonthFirst {
		t.Errorf("DateOrder = %v", cfg.DateOrder())
	}
}
