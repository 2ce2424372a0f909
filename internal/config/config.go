package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Encoding values for EndpointConfig.Encoding.
const (
	// EncodingStructured: envelope data is already a JSON list.
	EncodingStructured = "structured"
	// EncodingString: envelope data is a JSON string holding the JSON list.
	EncodingString = "string"
)

// Resource names used as keys of BackendConfig.Endpoints.
const (
	ResourceUsers               = "users"
	ResourceClients             = "clients"
	ResourceServices            = "services"
	ResourceAppointments        = "appointments"
	ResourceAppointmentServices = "appointment_services"
)

// Filter modes.
const (
	FilterModeLegacy      = "legacy"
	FilterModeConjunctive = "conjunctive"
)

// EndpointConfig describes one backend resource.
type EndpointConfig struct {
	// Path is appended to BackendConfig.BaseURL, e.g. "/clients".
	Path string `yaml:"path" json:"path"`
	// Encoding is EncodingStructured or EncodingString.
	Encoding string `yaml:"encoding" json:"encoding"`
	// Methods lists the HTTP verbs the resource accepts.
	Methods []string `yaml:"methods" json:"methods"`
}

// Allows reports whether method is listed for the endpoint.
func (e EndpointConfig) Allows(method string) bool {
	for _, m := range e.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// BackendConfig holds the REST backend address and endpoint table.
type BackendConfig struct {
	BaseURL               string                    `yaml:"base_url" json:"base_url"`
	RequestTimeoutSeconds int                       `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`
	Endpoints             map[string]EndpointConfig `yaml:"endpoints" json:"endpoints"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
//
// PasswordHash is an argon2id hash as written by `schedweb hash-password`.
// When set it takes precedence over Password.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password,omitempty" json:"-"`
	PasswordHash string `yaml:"password_hash,omitempty" json:"-"`
}

// Enabled reports whether a username and some form of password are set.
func (b *BasicAuthConfig) Enabled() bool {
	if b == nil || b.Username == "" {
		return false
	}
	return b.Password != "" || b.PasswordHash != ""
}

// LogConfig controls level and the optional rotating file.
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

// SnapshotConfig controls --snapshot captures.
type SnapshotConfig struct {
	Width          int `yaml:"width" json:"width"`
	Height         int `yaml:"height" json:"height"`
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	Backend BackendConfig `yaml:"backend" json:"backend"`

	// Timezone is the IANA zone used to display times. Appointment
	// timestamps are always interpreted as UTC.
	Timezone string `yaml:"timezone" json:"timezone"`

	// CalendarView is the initial view: "month", "week" or "list".
	CalendarView string `yaml:"calendar_view" json:"calendar_view"`

	// RefreshCron is a cron-style schedule for background store refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// FilterMode is FilterModeLegacy or FilterModeConjunctive.
	FilterMode string `yaml:"filter_mode" json:"filter_mode"`

	// PhoneRegion is the default region for client phone normalization.
	PhoneRegion string `yaml:"phone_region" json:"phone_region"`

	// ViewTTLMinutes is how long an idle browser view keeps its state.
	ViewTTLMinutes int `yaml:"view_ttl_minutes" json:"view_ttl_minutes"`

	// CSRFKey is a hex-encoded 32-byte key. Generated on first run.
	CSRFKey string `yaml:"csrf_key" json:"-"`

	// SecureCookies marks view and CSRF cookies Secure (HTTPS only).
	SecureCookies bool `yaml:"secure_cookies" json:"secure_cookies"`

	Log LogConfig `yaml:"log" json:"log"`

	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultEndpoints mirrors the reference backend's response encodings.
func DefaultEndpoints() map[string]EndpointConfig {
	readOnly := []string{"GET"}
	crud := []string{"GET", "POST", "PUT", "DELETE"}
	return map[string]EndpointConfig{
		ResourceUsers:               {Path: "/users", Encoding: EncodingString, Methods: readOnly},
		ResourceClients:             {Path: "/clients", Encoding: EncodingString, Methods: crud},
		ResourceServices:            {Path: "/services", Encoding: EncodingStructured, Methods: readOnly},
		ResourceAppointments:        {Path: "/appointments", Encoding: EncodingStructured, Methods: crud},
		ResourceAppointmentServices: {Path: "/appointment_services", Encoding: EncodingString, Methods: readOnly},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		Listen: "127.0.0.1:8080",
		Backend: BackendConfig{
			BaseURL:               "http://localhost:5000",
			RequestTimeoutSeconds: 15,
			Endpoints:             DefaultEndpoints(),
		},
		Timezone:       "UTC",
		CalendarView:   "month",
		RefreshCron:    "*/5 * * * *",
		FilterMode:     FilterModeLegacy,
		PhoneRegion:    "US",
		ViewTTLMinutes: 120,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Snapshot: SnapshotConfig{
			Width:          1280,
			Height:         960,
			TimeoutSeconds: 30,
		},
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:5000"
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.RequestTimeoutSeconds <= 0 {
		c.Backend.RequestTimeoutSeconds = 15
	}

	// Missing resources take their defaults; present ones are completed.
	defaults := DefaultEndpoints()
	if c.Backend.Endpoints == nil {
		c.Backend.Endpoints = map[string]EndpointConfig{}
	}
	for name, def := range defaults {
		ep, ok := c.Backend.Endpoints[name]
		if !ok {
			c.Backend.Endpoints[name] = def
			continue
		}
		if ep.Path == "" {
			ep.Path = def.Path
		}
		switch ep.Encoding {
		case EncodingStructured, EncodingString:
		default:
			ep.Encoding = def.Encoding
		}
		if len(ep.Methods) == 0 {
			ep.Methods = def.Methods
		}
		c.Backend.Endpoints[name] = ep
	}

	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	switch c.CalendarView {
	case "month", "week", "list":
	default:
		c.CalendarView = "month"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/5 * * * *"
	}
	switch c.FilterMode {
	case FilterModeLegacy, FilterModeConjunctive:
	default:
		c.FilterMode = FilterModeLegacy
	}
	if c.PhoneRegion == "" {
		c.PhoneRegion = "US"
	}
	if c.ViewTTLMinutes <= 0 {
		c.ViewTTLMinutes = 120
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = 1280
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = 960
	}
	if c.Snapshot.TimeoutSeconds <= 0 {
		c.Snapshot.TimeoutSeconds = 30
	}
}

// CSRFKeyBytes decodes CSRFKey. ok is false when the key is missing or not
// 32 bytes long.
func (c *Config) CSRFKeyBytes() (key []byte, ok bool) {
	b, err := hex.DecodeString(c.CSRFKey)
	if err != nil || len(b) != 32 {
		return nil, false
	}
	return b, true
}

// ensureCSRFKey generates a key when none is configured. It reports whether
// the config changed.
func (c *Config) ensureCSRFKey() (bool, error) {
	if _, ok := c.CSRFKeyBytes(); ok {
		return false, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, err
	}
	c.CSRFKey = hex.EncodeToString(buf)
	return true, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config (with a fresh CSRF key)
//     is written with 0600 perms and returned.
//   - If the file exists, it is unmarshalled and normalized. A missing CSRF
//     key is generated and persisted.
//   - Environment overrides (see ApplyEnv) are applied last and never saved.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if cfg != nil {
		ApplyEnv(cfg)
	}
	return cfg, err
}

// LoadFile is Load without environment overrides. Use it when the result
// is written back with Save.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if _, err := cfg.ensureCSRFKey(); err != nil {
				return nil, err
			}
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	changed, err := cfg.ensureCSRFKey()
	if err != nil {
		return nil, err
	}
	if changed {
		if err := Save(path, &cfg); err != nil {
			return &cfg, err
		}
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".schedweb-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
