package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/Hweary/cmdClient/internal/logging"
)

// Defaults for the dispatcher and context cache.
const (
	DefaultCacheSize           = 1000
	DefaultCleanupPollInterval = 100 * time.Millisecond
	DefaultCleanupTimeout      = 30 * time.Second
	DefaultHTTPAddr            = "127.0.0.1:8080"
)

// Config is the bot's configuration.
type Config struct {
	Prefixes            []string `json:"prefixes" yaml:"prefixes"`
	Owners              []string `json:"owners,omitempty" yaml:"owners,omitempty"`
	CacheSize           int      `json:"cacheSize" yaml:"cacheSize"`
	CleanupPollInterval Duration `json:"cleanupPollInterval" yaml:"cleanupPollInterval"`
	CleanupTimeout      Duration `json:"cleanupTimeout" yaml:"cleanupTimeout"`
	// CommandTimeout applies to commands without a timeout of their own.
	// Zero leaves them unbounded.
	CommandTimeout  Duration `json:"commandTimeout,omitempty" yaml:"commandTimeout,omitempty"`
	DisabledModules []string `json:"disabledModules,omitempty" yaml:"disabledModules,omitempty"`
	LogLevel        string   `json:"logLevel" yaml:"logLevel"`
	PrettyLogs      bool     `json:"prettyLogs" yaml:"prettyLogs"`
	HTTPAddr        string   `json:"httpAddr" yaml:"httpAddr"`

	// Sources lists the files the configuration was loaded from.
	Sources []string `json:"-" yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Prefixes:            []string{"!"},
		CacheSize:           DefaultCacheSize,
		CleanupPollInterval: Duration(DefaultCleanupPollInterval),
		CleanupTimeout:      Duration(DefaultCleanupTimeout),
		LogLevel:            "info",
		HTTPAddr:            DefaultHTTPAddr,
	}
}

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/cmdclient/)
// 2. Project config (directory and directory/.cmdclient/)
// 3. CMDCLIENT_CONFIG file
// 4. CMDCLIENT_CONFIG_CONTENT inline JSON
// 5. Environment variables
func Load(directory string) (*Config, error) {
	config := Default()
	loaded := make(map[string]bool)

	loadOnce := func(path string) error {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return nil
		}
		if err := loadConfigFile(absPath, config); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		loaded[absPath] = true
		config.Sources = append(config.Sources, absPath)
		return nil
	}

	var candidates []string
	for _, name := range configNames {
		candidates = append(candidates, filepath.Join(GetPaths().Config, name))
	}
	if directory != "" {
		for _, name := range configNames {
			candidates = append(candidates, filepath.Join(directory, name))
		}
		for _, name := range configNames {
			candidates = append(candidates, filepath.Join(directory, "."+AppName, name))
		}
	}
	if path := os.Getenv("CMDCLIENT_CONFIG"); path != "" {
		candidates = append(candidates, path)
	}
	for _, path := range candidates {
		if err := loadOnce(path); err != nil {
			return nil, err
		}
	}

	if content := os.Getenv("CMDCLIENT_CONFIG_CONTENT"); content != "" {
		if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), config); err != nil {
			return nil, fmt.Errorf("parse CMDCLIENT_CONFIG_CONTENT: %w", err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFile loads a single file on top of the defaults and the environment.
func LoadFile(path string) (*Config, error) {
	config := Default()
	if err := loadConfigFile(path, config); err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		config.Sources = []string{abs}
	}
	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// loadConfigFile decodes path onto config. Keys present in the file replace
// the current values; absent keys are left alone.
func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data = interpolate(data)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), config); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate expands {env:VAR_NAME} placeholders.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// applyEnvOverrides applies CMDCLIENT_* environment variables.
func applyEnvOverrides(config *Config) error {
	if v, ok := lookupEnv("CMDCLIENT_PREFIXES"); ok {
		config.Prefixes = splitList(v)
	}
	if v, ok := lookupEnv("CMDCLIENT_OWNERS"); ok {
		config.Owners = splitList(v)
	}
	if v, ok := lookupEnv("CMDCLIENT_DISABLED_MODULES"); ok {
		config.DisabledModules = splitList(v)
	}
	if v, ok := lookupEnv("CMDCLIENT_CACHE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CMDCLIENT_CACHE_SIZE: %w", err)
		}
		config.CacheSize = n
	}

	durations := map[string]*Duration{
		"CMDCLIENT_CLEANUP_POLL_INTERVAL": &config.CleanupPollInterval,
		"CMDCLIENT_CLEANUP_TIMEOUT":       &config.CleanupTimeout,
		"CMDCLIENT_COMMAND_TIMEOUT":       &config.CommandTimeout,
	}
	for name, target := range durations {
		if v, ok := lookupEnv(name); ok {
			d, err := ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*target = d
		}
	}

	if v, ok := lookupEnv("CMDCLIENT_LOG_LEVEL"); ok {
		config.LogLevel = v
	}
	if v, ok := lookupEnv("CMDCLIENT_PRETTY_LOGS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CMDCLIENT_PRETTY_LOGS: %w", err)
		}
		config.PrettyLogs = b
	}
	if v, ok := lookupEnv("CMDCLIENT_HTTP_ADDR"); ok {
		config.HTTPAddr = v
	}
	return nil
}

func lookupEnv(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case len(c.Prefixes) == 0:
		return errors.New("config: at least one prefix is required")
	case slices.Contains(c.Prefixes, ""):
		return errors.New("config: prefixes must not be empty")
	case c.CacheSize <= 0:
		return fmt.Errorf("config: cacheSize must be positive, got %d", c.CacheSize)
	case c.CleanupPollInterval <= 0:
		return errors.New("config: cleanupPollInterval must be positive")
	case c.CleanupTimeout < c.CleanupPollInterval:
		return errors.New("config: cleanupTimeout must not be shorter than cleanupPollInterval")
	case c.CommandTimeout < 0:
		return errors.New("config: commandTimeout must not be negative")
	}
	return nil
}

// ModuleEnabled reports whether the named module should be enabled.
func (c *Config) ModuleEnabled(name string) bool {
	return !slices.Contains(c.DisabledModules, name)
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.LogLevel)
	cfg.Pretty = c.PrettyLogs
	return cfg
}

// Save saves the configuration to a JSON file.
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Duration is a time.Duration that reads from and writes to config files
// as a duration string. Plain numbers are read as milliseconds.
type Duration time.Duration

// ParseDuration parses a duration string or a number of milliseconds.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Duration(time.Duration(ms) * time.Millisecond), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return Duration(d), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := ParseDuration(v)
		if err != nil {
			return err
		}
		*d = parsed
	case float64:
		*d = Duration(time.Duration(v * float64(time.Millisecond)))
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = parsed
	return nil
}
