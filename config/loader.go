package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvHost      = "GTFS_IMPORT_HOST"
	EnvUsername  = "ARCGIS_USERNAME"
	EnvPassword  = "ARCGIS_PASSWORD"
	EnvGroupID   = "GTFS_IMPORT_GROUP_ID"
	EnvArchive   = "GTFS_IMPORT_ARCHIVE"
	EnvParallel  = "GTFS_IMPORT_MAX_PARALLELISM"
	EnvLedgerDSN = "GTFS_IMPORT_LEDGER_DSN"
)

// Loader loads and parses import configuration files.
// Values are taken, in increasing precedence, from the JSON document, the
// dotenv file and the process environment.
type Loader struct {
	// EnvFile is an optional dotenv file; a missing file is ignored.
	EnvFile string

	lookupEnv func(string) (string, bool)
}

// NewLoader creates a new configuration loader reading ".env" if present.
func NewLoader() *Loader {
	return &Loader{
		EnvFile:   ".env",
		lookupEnv: os.LookupEnv,
	}
}

// LoadFromFile loads and parses an import configuration from a JSON file.
// File errors are wrapped with context (use os.IsNotExist to check for missing file).
func (l *Loader) LoadFromFile(path string) (*ImportConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg, err := l.LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromBytes parses import configuration from raw JSON bytes.
// Empty data (len==0) returns ErrConfigEmpty.
// Parse errors are wrapped (use json.SyntaxError to check for parse failures).
func (l *Loader) LoadFromBytes(data []byte) (*ImportConfig, error) {
	if len(data) == 0 {
		return nil, ErrConfigEmpty
	}

	var cfg ImportConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return l.finish(&cfg)
}

// LoadFromEnv builds the configuration from the dotenv file and environment only.
func (l *Loader) LoadFromEnv() (*ImportConfig, error) {
	return l.finish(&ImportConfig{})
}

func (l *Loader) finish(cfg *ImportConfig) (*ImportConfig, error) {
	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if err := NewValidator().Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the dotenv file and process environment on cfg. Only
// non-empty values override, so an unset or empty variable keeps the file value.
func (l *Loader) applyEnv(cfg *ImportConfig) error {
	overrides, err := l.envOverrides()
	if err != nil {
		return err
	}
	if err := mergo.Merge(cfg, overrides, mergo.WithOverride); err != nil {
		return fmt.Errorf("applying environment: %w", err)
	}
	if cfg.Ledger != nil && cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = "sqlite"
	}
	return nil
}

// envOverrides collects the configuration set through the environment.
func (l *Loader) envOverrides() (*ImportConfig, error) {
	dotenv := map[string]string{}
	if l.EnvFile != "" {
		if _, err := os.Stat(l.EnvFile); err == nil {
			m, err := godotenv.Read(l.EnvFile)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", l.EnvFile, err)
			}
			dotenv = m
		}
	}
	lookup := func(key string) string {
		if l.lookupEnv != nil {
			if v, ok := l.lookupEnv(key); ok && v != "" {
				return v
			}
		}
		return dotenv[key]
	}

	out := &ImportConfig{
		Host:     lookup(EnvHost),
		Username: lookup(EnvUsername),
		Password: lookup(EnvPassword),
		GroupID:  lookup(EnvGroupID),
		Archive:  lookup(EnvArchive),
	}
	if v := lookup(EnvParallel); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvParallel, err)
		}
		out.MaxParallelism = n
	}
	if v := lookup(EnvLedgerDSN); v != "" {
		out.Ledger = &LedgerConfig{DSN: v}
	}
	return out, nil
}
