package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/beekhof/mirror-agenda/internal/netwatch"
	"github.com/beekhof/mirror-agenda/internal/scheduler"
)

const (
	ProviderGoogle = "google"
	ProviderCalDAV = "caldav"
)

// GoogleCredentials represents the structure of Google OAuth credentials JSON file.
type GoogleCredentials struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"installed"`
	Web struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// LoadGoogleCredentials loads Google OAuth credentials from a JSON file.
func LoadGoogleCredentials(path string) (clientID, clientSecret string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds GoogleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", "", fmt.Errorf("failed to parse credentials file: %w", err)
	}

	// Try "installed" first (for desktop apps), then "web"
	if creds.Installed.ClientID != "" {
		return creds.Installed.ClientID, creds.Installed.ClientSecret, nil
	}
	if creds.Web.ClientID != "" {
		return creds.Web.ClientID, creds.Web.ClientSecret, nil
	}

	return "", "", fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
}

// CalDAV holds the settings for a CalDAV calendar (e.g. iCloud).
type CalDAV struct {
	ServerURL    string `yaml:"server_url,omitempty"`    // e.g. "https://caldav.icloud.com"
	Username     string `yaml:"username,omitempty"`      // account email
	Password     string `yaml:"password,omitempty"`      // app-specific password, only read by "login"
	CalendarPath string `yaml:"calendar_path,omitempty"` // collection path of the calendar to show
}

// Storage selects where the token and the event cache are kept.
type Storage struct {
	Driver string `yaml:"driver"` // "sqlite", "file" or "memory"
	Path   string `yaml:"path"`   // database file (sqlite) or directory (file)
}

// Network configures the connectivity watcher.
type Network struct {
	ProbeAddress  string        `yaml:"probe_address"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// Config holds the configuration for the agenda service.
type Config struct {
	Provider              string `yaml:"provider"`
	GoogleCredentialsPath string `yaml:"google_credentials_path,omitempty"`
	CalendarID            string `yaml:"calendar_id"`
	CalDAV                CalDAV `yaml:"caldav,omitempty"`

	Storage Storage `yaml:"storage"`

	Timezone     string        `yaml:"timezone,omitempty"` // IANA name; empty means the host zone
	Refresh      string        `yaml:"refresh"`            // cron spec for periodic refresh
	Listen       string        `yaml:"listen"`             // HTTP listen address; empty disables the server
	MaxResults   int64         `yaml:"max_results"`
	WindowDays   int           `yaml:"window_days"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// PreserveProviderOrder trusts the provider's ordering instead of
	// re-sorting events by start before selection.
	PreserveProviderOrder bool `yaml:"preserve_provider_order"`

	Network Network `yaml:"network"`
}

// Flags are the command-line overrides; empty values are ignored.
type Flags struct {
	Provider              string
	GoogleCredentialsPath string
	StoragePath           string
	Timezone              string
	Listen                string
}

// DefaultStoragePath is the sqlite database under the user's config directory.
func DefaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "mirror-agenda.db"
	}
	return filepath.Join(dir, "mirror-agenda", "agenda.db")
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderGoogle
	}
	if c.CalendarID == "" {
		c.CalendarID = "primary"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" && c.Storage.Driver == "sqlite" {
		c.Storage.Path = DefaultStoragePath()
	}
	if c.Refresh == "" {
		c.Refresh = scheduler.DefaultSpec
	}
	if c.MaxResults < 10 {
		c.MaxResults = 10
	}
	if c.WindowDays == 0 {
		c.WindowDays = 7
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.Network.ProbeAddress == "" {
		c.Network.ProbeAddress = netwatch.DefaultProbeAddress
	}
	if c.Network.ProbeInterval == 0 {
		c.Network.ProbeInterval = netwatch.DefaultProbeInterval
	}
}

// LoadConfigFromFile loads configuration from a YAML file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Returns an error if any required value is missing.
func LoadConfig(configFile string, flags Flags) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	// Step 3: Override with command-line flags (highest priority)
	if flags.Provider != "" {
		config.Provider = flags.Provider
	}
	if flags.GoogleCredentialsPath != "" {
		config.GoogleCredentialsPath = flags.GoogleCredentialsPath
	}
	if flags.StoragePath != "" {
		config.Storage.Path = flags.StoragePath
	}
	if flags.Timezone != "" {
		config.Timezone = flags.Timezone
	}
	if flags.Listen != "" {
		config.Listen = flags.Listen
	}

	// Step 4: Apply defaults and validate required fields
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"AGENDA_PROVIDER":         &c.Provider,
		"GOOGLE_CREDENTIALS_PATH": &c.GoogleCredentialsPath,
		"AGENDA_CALENDAR_ID":      &c.CalendarID,
		"AGENDA_STORAGE_DRIVER":   &c.Storage.Driver,
		"AGENDA_STORAGE_PATH":     &c.Storage.Path,
		"AGENDA_TIMEZONE":         &c.Timezone,
		"AGENDA_REFRESH":          &c.Refresh,
		"AGENDA_LISTEN":           &c.Listen,
		"CALDAV_SERVER_URL":       &c.CalDAV.ServerURL,
		"CALDAV_USERNAME":         &c.CalDAV.Username,
		"CALDAV_PASSWORD":         &c.CalDAV.Password,
		"CALDAV_CALENDAR_PATH":    &c.CalDAV.CalendarPath,
	}
	for name, field := range strs {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}

	if v := os.Getenv("AGENDA_MAX_RESULTS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid AGENDA_MAX_RESULTS value: %w", err)
		}
		c.MaxResults = n
	}
	if v := os.Getenv("AGENDA_WINDOW_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AGENDA_WINDOW_DAYS value: %w", err)
		}
		c.WindowDays = n
	}
	if v := os.Getenv("AGENDA_PRESERVE_PROVIDER_ORDER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AGENDA_PRESERVE_PROVIDER_ORDER value: %w", err)
		}
		c.PreserveProviderOrder = b
	}
	return nil
}

// Validate checks the fully merged configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGoogle:
		if c.GoogleCredentialsPath == "" {
			return fmt.Errorf("google_credentials_path must be provided via --google-credentials-path flag, GOOGLE_CREDENTIALS_PATH environment variable, or config file")
		}
	case ProviderCalDAV:
		if c.CalDAV.Username == "" {
			return errors.New("caldav.username must be provided for the caldav provider")
		}
		if c.CalDAV.CalendarPath == "" {
			return errors.New("caldav.calendar_path must be provided for the caldav provider")
		}
	default:
		return fmt.Errorf("provider must be 'google' or 'caldav', got '%s'", c.Provider)
	}

	switch c.Storage.Driver {
	case "sqlite", "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path must be provided for the %s driver", c.Storage.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver must be 'sqlite', 'file' or 'memory', got '%s'", c.Storage.Driver)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if err := scheduler.Validate(c.Refresh); err != nil {
		return err
	}
	if c.WindowDays < 1 {
		return fmt.Errorf("window_days must be at least 1, got %d", c.WindowDays)
	}
	return nil
}

// Location resolves Timezone, falling back to the host zone when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Window is the fetch horizon.
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// Save writes cfg to path as YAML, atomically and with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".mirror-agenda-config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to chmod config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}
