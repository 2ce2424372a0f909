package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override the YAML file.
const (
	EnvListen     = "SCHEDWEB_LISTEN"
	EnvBackendURL = "SCHEDWEB_BACKEND_URL"
	EnvLogLevel   = "SCHEDWEB_LOG_LEVEL"
	EnvFilterMode = "SCHEDWEB_FILTER_MODE"
	EnvTimeout    = "SCHEDWEB_REQUEST_TIMEOUT_SECONDS"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are given) into the process environment. Missing files are not an error;
// variables already set win over the file.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg and re-normalizes it.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvFilterMode); v != "" {
		cfg.FilterMode = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.RequestTimeoutSeconds = n
		}
	}
	cfg.Normalize()
}
