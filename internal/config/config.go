package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"tidy-go/internal/tidy"
)

// Config represents the main configuration for tidy.
type Config struct {
	// HomeDir is the boundary root. Destinations must resolve inside it.
	HomeDir    string           `toml:"home_dir"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Database   DatabaseConfig   `toml:"database"`
	Tokens     TokensConfig     `toml:"tokens"`
	Scan       ScanConfig       `toml:"scan"`
	Automation AutomationConfig `toml:"automation"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// DatabaseConfig represents configuration for the record and rule store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// TokensConfig represents configuration for the secure token store.
type TokensConfig struct {
	Type                string `toml:"type"`                    // "file" or "memory"
	Dir                 string `toml:"dir,omitempty"`           // only used for type=file
	IdentityPath        string `toml:"identity_path,omitempty"` // age identity; created on first use
	PassphraseProtected bool   `toml:"passphrase_protected"`    // identity is scrypt-wrapped
}

// ScanConfig selects the folders a scan lists.
type ScanConfig struct {
	// Locations are built-in roots under HomeDir, e.g. "downloads", "desktop".
	Locations     []string `toml:"locations"`
	CustomFolders []string `toml:"custom_folders"`
	Ignore        []string `toml:"ignore"`
	IncludeHidden bool     `toml:"include_hidden"`
	Recursive     bool     `toml:"recursive"`
}

// AutomationConfig holds the scheduler's numeric policy.
type AutomationConfig struct {
	IntervalMinutes        int     `toml:"interval_minutes"`
	MinIntervalMinutes     int     `toml:"min_interval_minutes"`
	MaxIntervalMinutes     int     `toml:"max_interval_minutes"`
	MaxConsecutiveFailures int     `toml:"max_consecutive_failures"`
	BackoffMultiplier      float64 `toml:"backoff_multiplier"`
	MaxBackoffMinutes      int     `toml:"max_backoff_minutes"`
	DebounceSeconds        int     `toml:"debounce_seconds"`
	ScanTimeoutMinutes     int     `toml:"scan_timeout_minutes"`

	MaxNotificationsPerHour int  `toml:"max_notifications_per_hour"`
	BacklogCooldownHours    int  `toml:"backlog_cooldown_hours"`
	ErrorCooldownMinutes    int  `toml:"error_cooldown_minutes"`
	BacklogThreshold        int  `toml:"backlog_threshold"`
	AgeThresholdDays        int  `toml:"age_threshold_days"`
	DisableNotifications    bool `toml:"disable_notifications"`

	SuggestionMinConfidence   float64 `toml:"suggestion_min_confidence"`
	AutoOrganizeMinConfidence float64 `toml:"auto_organize_min_confidence"`
	AutoOrganize              bool    `toml:"auto_organize"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `toml:"textfile_path,omitempty"` // empty disables the export
}

// Default automation values.
const (
	DefaultIntervalMinutes           = 30
	DefaultMinIntervalMinutes        = 5
	DefaultMaxIntervalMinutes        = 1440
	DefaultMaxConsecutiveFailures    = 3
	DefaultBackoffMultiplier         = 2.0
	DefaultMaxBackoffMinutes         = 120
	DefaultDebounceSeconds           = 60
	DefaultScanTimeoutMinutes        = 10
	DefaultMaxNotificationsPerHour   = 5
	DefaultBacklogCooldownHours      = 24
	DefaultErrorCooldownMinutes      = 60
	DefaultBacklogThreshold          = 50
	DefaultAgeThresholdDays          = 7
	DefaultSuggestionMinConfidence   = 0.75
	DefaultAutoOrganizeMinConfidence = 0.90
)

// DefaultLocations are scanned when a config lists none.
var DefaultLocations = []string{"desktop", "downloads"}

// NewConfig creates a Config rooted at baseDir with defaults applied.
func NewConfig(homeDir, baseDir string) *Config {
	cfg := &Config{
		HomeDir:  homeDir,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Tokens: TokensConfig{
			Type:         "file",
			Dir:          filepath.Join(baseDir, "tokens"),
			IdentityPath: filepath.Join(baseDir, "keys", "tokens.key"),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with their defaults.
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" && c.BaseDir != "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Tokens.Type == "" {
		c.Tokens.Type = "file"
	}
	if len(c.Scan.Locations) == 0 {
		c.Scan.Locations = append([]string(nil), DefaultLocations...)
	}
	c.Automation.ApplyDefaults()
}

// ApplyDefaults fills every zero field with its default.
func (a *AutomationConfig) ApplyDefaults() {
	setInt := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	setFloat := func(v *float64, def float64) {
		if *v == 0 {
			*v = def
		}
	}
	setInt(&a.IntervalMinutes, DefaultIntervalMinutes)
	setInt(&a.MinIntervalMinutes, DefaultMinIntervalMinutes)
	setInt(&a.MaxIntervalMinutes, DefaultMaxIntervalMinutes)
	setInt(&a.MaxConsecutiveFailures, DefaultMaxConsecutiveFailures)
	setFloat(&a.BackoffMultiplier, DefaultBackoffMultiplier)
	setInt(&a.MaxBackoffMinutes, DefaultMaxBackoffMinutes)
	setInt(&a.DebounceSeconds, DefaultDebounceSeconds)
	setInt(&a.ScanTimeoutMinutes, DefaultScanTimeoutMinutes)
	setInt(&a.MaxNotificationsPerHour, DefaultMaxNotificationsPerHour)
	setInt(&a.BacklogCooldownHours, DefaultBacklogCooldownHours)
	setInt(&a.ErrorCooldownMinutes, DefaultErrorCooldownMinutes)
	setInt(&a.BacklogThreshold, DefaultBacklogThreshold)
	setInt(&a.AgeThresholdDays, DefaultAgeThresholdDays)
	setFloat(&a.SuggestionMinConfidence, DefaultSuggestionMinConfidence)
	setFloat(&a.AutoOrganizeMinConfidence, DefaultAutoOrganizeMinConfidence)
}

// DefaultAutomationConfig returns automation settings with every default applied.
func DefaultAutomationConfig() AutomationConfig {
	var a AutomationConfig
	a.ApplyDefaults()
	return a
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			return fmt.Errorf("database: data_dir required for sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("database: unknown type %q", c.Database.Type)
	}

	switch c.Tokens.Type {
	case "file":
		if c.Tokens.Dir == "" || c.Tokens.IdentityPath == "" {
			return fmt.Errorf("tokens: dir and identity_path required for file store")
		}
	case "memory":
	default:
		return fmt.Errorf("tokens: unknown type %q", c.Tokens.Type)
	}

	for _, loc := range c.Scan.Locations {
		if tidy.ParseSourceLocation(loc) == tidy.LocationUnknown {
			return fmt.Errorf("scan: unknown location %q", loc)
		}
	}
	for _, dir := range c.Scan.CustomFolders {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("scan: custom folder must be absolute: %s", dir)
		}
	}
	for _, pattern := range c.Scan.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("scan: invalid ignore pattern %q: %w", pattern, err)
		}
	}

	if err := c.Automation.Validate(); err != nil {
		return fmt.Errorf("automation: %w", err)
	}
	return nil
}

// Validate checks the automation policy for internal consistency.
func (a *AutomationConfig) Validate() error {
	if a.MinIntervalMinutes <= 0 || a.MinIntervalMinutes > a.MaxIntervalMinutes {
		return fmt.Errorf("interval bounds [%d, %d] are invalid", a.MinIntervalMinutes, a.MaxIntervalMinutes)
	}
	if a.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max_consecutive_failures must be positive")
	}
	if a.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be at least 1, got %g", a.BackoffMultiplier)
	}
	if a.MaxBackoffMinutes < a.MinIntervalMinutes {
		return fmt.Errorf("max_backoff_minutes %d is below min_interval_minutes %d", a.MaxBackoffMinutes, a.MinIntervalMinutes)
	}
	if a.DebounceSeconds < 0 || a.ScanTimeoutMinutes <= 0 {
		return fmt.Errorf("debounce_seconds and scan_timeout_minutes must be positive")
	}
	if a.MaxNotificationsPerHour <= 0 {
		return fmt.Errorf("max_notifications_per_hour must be positive")
	}
	for _, v := range []float64{a.SuggestionMinConfidence, a.AutoOrganizeMinConfidence} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("confidence thresholds must be in (0, 1], got %g", v)
		}
	}
	if a.AutoOrganizeMinConfidence <= a.SuggestionMinConfidence {
		return fmt.Errorf("auto_organize_min_confidence %g must be above suggestion_min_confidence %g",
			a.AutoOrganizeMinConfidence, a.SuggestionMinConfidence)
	}
	return nil
}

// ScanLocations resolves the configured folders into scan locations,
// built-in roots first.
func (c *Config) ScanLocations() (base, custom []tidy.ScanLocation) {
	for _, loc := range c.Scan.Locations {
		base = append(base, tidy.BuiltinScanLocation(c.HomeDir, tidy.ParseSourceLocation(loc)))
	}
	for _, dir := range c.Scan.CustomFolders {
		custom = append(custom, tidy.CustomScanLocation(filepath.Clean(dir)))
	}
	return base, custom
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and fills defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
