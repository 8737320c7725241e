package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Source kinds.
const (
	SourceSheets = "sheets"
	SourceSQLite = "sqlite"
	SourceCSV    = "csv"
)

// DefaultNotice is shown above the dashboard when no notice is configured.
const DefaultNotice = "Use the search box to find clients by **OLT**."

// Config holds application configuration.
type Config struct {
	// Source selects the row source: "sheets", "sqlite" or "csv".
	Source string `json:"source,omitempty"`

	// SpreadsheetName is the Google spreadsheet looked up by name.
	SpreadsheetName string `json:"spreadsheet_name,omitempty"`

	// SpreadsheetID bypasses the name lookup when set.
	SpreadsheetID string `json:"spreadsheet_id,omitempty"`

	// Worksheet is the tab to read. Empty means the first worksheet.
	Worksheet string `json:"worksheet,omitempty"`

	// CredentialsFile is the path to the service-account JSON key.
	// OLTDASH_GOOGLE_CREDENTIALS (the JSON itself) takes precedence.
	CredentialsFile string `json:"credentials_file,omitempty"`

	// CredentialsJSON is only populated from the environment, never from disk config.
	CredentialsJSON string `json:"-"`

	SQLitePath  string `json:"sqlite_path,omitempty"`
	SQLiteTable string `json:"sqlite_table,omitempty"`
	CSVPath     string `json:"csv_path,omitempty"`

	// CacheTTLSeconds is how long a fetched dataset is served before refetching.
	CacheTTLSeconds int `json:"cache_ttl_seconds,omitempty"`

	// FetchTimeoutSeconds bounds a single refresh of the dataset.
	FetchTimeoutSeconds int `json:"fetch_timeout_seconds,omitempty"`

	// FetchRatePerMinute throttles calls to the remote source. 0 keeps the
	// default; a negative value disables throttling.
	FetchRatePerMinute int `json:"fetch_rate_per_minute,omitempty"`

	// Username and Password are the login reference strings.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// SessionSecret signs session cookies. A random secret is generated per
	// process when empty, so sessions do not survive a restart.
	SessionSecret   string `json:"session_secret,omitempty"`
	SessionTTLHours int    `json:"session_ttl_hours,omitempty"`

	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`

	// LoginRatePerMinute limits login attempts per client IP.
	LoginRatePerMinute int `json:"login_rate_per_minute,omitempty"`

	Title string `json:"title,omitempty"`

	// Notice is markdown shown above the search box.
	Notice string `json:"notice,omitempty"`

	// RowLimit is the default number of rows per dashboard page.
	RowLimit int `json:"row_limit,omitempty"`

	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Source:              SourceSheets,
		SpreadsheetName:     "Relatorio_OLT",
		SQLiteTable:         "records",
		CacheTTLSeconds:     600,
		FetchTimeoutSeconds: 30,
		FetchRatePerMinute:  30,
		SessionTTLHours:     12,
		Bind:                "127.0.0.1",
		Port:                8501,
		LoginRatePerMinute:  10,
		Title:               "Business Clients Dashboard",
		Notice:              DefaultNotice,
		RowLimit:            200,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// CacheTTL returns the freshness window as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// FetchTimeout returns the per-refresh timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// SessionTTL returns the session cookie lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// Credentials returns the service-account key material.
// The environment value wins over the file.
func (c *Config) Credentials() ([]byte, error) {
	if c.CredentialsJSON != "" {
		return []byte(c.CredentialsJSON), nil
	}
	if c.CredentialsFile == "" {
		return nil, errors.New("no credentials: set credentials_file or OLTDASH_GOOGLE_CREDENTIALS")
	}
	data, err := os.ReadFile(c.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return data, nil
}

// Validate checks that the source configuration is usable.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceSheets:
		if c.SpreadsheetName == "" && c.SpreadsheetID == "" {
			return errors.New("spreadsheet_name or spreadsheet_id is required for the sheets source")
		}
	case SourceSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite_path is required for the sqlite source")
		}
	case SourceCSV:
		if c.CSVPath == "" {
			return errors.New("csv_path is required for the csv source")
		}
	default:
		return fmt.Errorf("unknown source %q (want sheets, sqlite or csv)", c.Source)
	}
	if c.CacheTTLSeconds <= 0 {
		return errors.New("cache_ttl_seconds must be positive")
	}
	return nil
}

// ValidateLogin checks that the login reference strings are configured.
// Only the web server needs them.
func (c *Config) ValidateLogin() error {
	if c.Username == "" || c.Password == "" {
		return errors.New("username and password must be configured (config or OLTDASH_USERNAME/OLTDASH_PASSWORD)")
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.oltdash.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithLocal loads configuration from both the base directory and the
// nearest .oltdash/config.json found walking upward from startDir.
// Local config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithLocal(baseDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}

	local, err := loadFileRaw(FindLocalConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), local), nil
}

// FindLocalConfig walks upward from startDir to find the nearest .oltdash/config.json.
// Returns the path if found, or empty string if not found.
func FindLocalConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".oltdash", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ApplyEnv overrides secrets and a few common settings from the environment.
// lookup is os.LookupEnv outside tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set("OLTDASH_USERNAME", &cfg.Username)
	set("OLTDASH_PASSWORD", &cfg.Password)
	set("OLTDASH_SESSION_SECRET", &cfg.SessionSecret)
	set("OLTDASH_GOOGLE_CREDENTIALS", &cfg.CredentialsJSON)
	set("OLTDASH_SPREADSHEET_NAME", &cfg.SpreadsheetName)
	set("OLTDASH_LOG_LEVEL", &cfg.LogLevel)
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		Source:              pickString(overlay.Source, base.Source),
		SpreadsheetName:     pickString(overlay.SpreadsheetName, base.SpreadsheetName),
		SpreadsheetID:       pickString(overlay.SpreadsheetID, base.SpreadsheetID),
		Worksheet:           pickString(overlay.Worksheet, base.Worksheet),
		CredentialsFile:     pickString(overlay.CredentialsFile, base.CredentialsFile),
		CredentialsJSON:     pickString(overlay.CredentialsJSON, base.CredentialsJSON),
		SQLitePath:          pickString(overlay.SQLitePath, base.SQLitePath),
		SQLiteTable:         pickString(overlay.SQLiteTable, base.SQLiteTable),
		CSVPath:             pickString(overlay.CSVPath, base.CSVPath),
		CacheTTLSeconds:     pickInt(overlay.CacheTTLSeconds, base.CacheTTLSeconds),
		FetchTimeoutSeconds: pickInt(overlay.FetchTimeoutSeconds, base.FetchTimeoutSeconds),
		FetchRatePerMinute:  pickInt(overlay.FetchRatePerMinute, base.FetchRatePerMinute),
		Username:            pickString(overlay.Username, base.Username),
		Password:            pickString(overlay.Password, base.Password),
		SessionSecret:       pickString(overlay.SessionSecret, base.SessionSecret),
		SessionTTLHours:     pickInt(overlay.SessionTTLHours, base.SessionTTLHours),
		Bind:                pickString(overlay.Bind, base.Bind),
		Port:                pickInt(overlay.Port, base.Port),
		LoginRatePerMinute:  pickInt(overlay.LoginRatePerMinute, base.LoginRatePerMinute),
		Title:               pickString(overlay.Title, base.Title),
		Notice:              pickString(overlay.Notice, base.Notice),
		RowLimit:            pickInt(overlay.RowLimit, base.RowLimit),
		LogLevel:            pickString(overlay.LogLevel, base.LogLevel),
		LogFormat:           pickString(overlay.LogFormat, base.LogFormat),
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// pickString returns overlay if non-empty, else base.
func pickString(overlay, base string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

// pickInt returns overlay if non-zero, else base.
func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
