package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Config represents the prwatch configuration.
//
// Credentials are taken from the environment only and never written to the
// config file.
type Config struct {
	GitHubToken    string `json:"-"`
	TelegramToken  string `json:"-"`
	TelegramChatID string `json:"-"`

	Provider       string      `json:"provider"`
	Model          string      `json:"model"`
	IncludePrivate bool        `json:"includePrivate"`
	TargetRepos    []string    `json:"targetRepos,omitempty"`
	Schedule       []string    `json:"schedule"`
	DBPath         string      `json:"dbPath,omitempty"`
	MaxDiffBytes   int         `json:"maxDiffBytes"`
	RedactSecrets  bool        `json:"redactSecrets"`
	Cache          CacheConfig `json:"cache"`
}

// CacheConfig controls verdict caching behavior.
type CacheConfig struct {
	Enabled    bool   `json:"enabled"`
	Dir        string `json:"dir,omitempty"`
	TTLSeconds int    `json:"ttlSeconds"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:      "gemini",
		Model:         "gemini-2.0-flash",
		Schedule:      []string{"07:00", "13:00", "19:00"},
		MaxDiffBytes:  500000,
		RedactSecrets: true,
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 86400,
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for prwatch.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "prwatch"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "prwatch"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "prwatch"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "prwatch"), nil
	default:
		return filepath.Join(home, ".config", "prwatch"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultDBPath returns the default location of the state database.
func DefaultDBPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prwatch.db"), nil
}

// LoadFile loads config from the config file. Returns zero Config and nil error if file doesn't exist.
func LoadFile() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Load builds the effective config by merging: defaults <- file <- env.
func Load() (Config, error) {
	cfg := Default()

	fileCfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	mergeFile(&cfg, fileCfg)
	mergeEnv(&cfg)

	if cfg.DBPath == "" {
		path, err := DefaultDBPath()
		if err != nil {
			return Config{}, err
		}
		cfg.DBPath = path
	}

	return cfg, nil
}

// Validate checks that the fields required to run the service are present.
func (c Config) Validate() error {
	var missing []string
	if c.GitHubToken == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if c.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if c.TelegramChatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if len(c.Schedule) == 0 {
		return fmt.Errorf("schedule must list at least one HH:MM time")
	}
	return nil
}

func mergeFile(dst *Config, src Config) {
	if src.Provider != "" {
		dst.Provider = src.Provider
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if len(src.TargetRepos) > 0 {
		dst.TargetRepos = src.TargetRepos
	}
	if len(src.Schedule) > 0 {
		dst.Schedule = src.Schedule
	}
	if src.DBPath != "" {
		dst.DBPath = src.DBPath
	}
	if src.MaxDiffBytes > 0 {
		dst.MaxDiffBytes = src.MaxDiffBytes
	}
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}
	if src.Cache.TTLSeconds > 0 {
		dst.Cache.TTLSeconds = src.Cache.TTLSeconds
	}
	// Bool fields from file: JSON zero value is indistinguishable from unset,
	// so true in either source wins. PRWATCH_REDACT=false turns redaction off.
	dst.Cache.Enabled = src.Cache.Enabled || dst.Cache.Enabled
	dst.IncludePrivate = src.IncludePrivate || dst.IncludePrivate
	dst.RedactSecrets = src.RedactSecrets || dst.RedactSecrets
}

func mergeEnv(cfg *Config) {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHubToken = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.TelegramChatID = v
	}
	if v := os.Getenv("INCLUDE_PRIVATE"); v != "" {
		cfg.IncludePrivate = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("PRWATCH_REDACT"); v != "" {
		cfg.RedactSecrets = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("TARGET_REPOS"); v != "" {
		cfg.TargetRepos = SplitList(v)
	}
	if v := os.Getenv("PRWATCH_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("PRWATCH_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("PRWATCH_SCHEDULE"); v != "" {
		cfg.Schedule = SplitList(v)
	}
	if v := os.Getenv("PRWATCH_DB"); v != "" {
		cfg.DBPath = v
	}
}

// SplitList splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func SplitList(s string) []string {
	var result []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
