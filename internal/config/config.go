// Package config loads the game configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/socialstories/internal/script"
)

// Config file names.
const (
	DefaultFile = "config.yaml"
	DemoFile    = "config.demo.yaml"
)

// DemoParticipant is the participant id that selects the demo session.
const DemoParticipant = "DEMO"

// Defaults used when the config leaves a value unset. An explicit zero for
// percent_correct_to_level or max_stories is kept as written.
const (
	DefaultPercentCorrectToLevel = 0.75
	DefaultRosbridgeURL          = "ws://localhost:9090"
	DefaultMaxIncorrectResponses = 2
	DefaultMaxGameTime           = 10 * time.Minute
	DefaultMaxStories            = 3
	DefaultWaitLogInterval       = 5 * time.Second
)

// Config is the game configuration.
type Config struct {
	// ScriptPath holds repeat scripts, response pools and object lists.
	ScriptPath string `yaml:"script_path" env:"SOCIALSTORIES_SCRIPT_PATH"`
	// SessionScriptPath holds session scripts. Relative paths are resolved
	// under ScriptPath; empty means ScriptPath itself.
	SessionScriptPath string `yaml:"session_script_path" env:"SOCIALSTORIES_SESSION_SCRIPT_PATH"`
	// StoryScriptPath holds story scripts, resolved like SessionScriptPath.
	StoryScriptPath string `yaml:"story_script_path" env:"SOCIALSTORIES_STORY_SCRIPT_PATH"`

	Database              string  `yaml:"database" env:"SOCIALSTORIES_DATABASE"`
	PercentCorrectToLevel float64 `yaml:"percent_correct_to_level" env:"SOCIALSTORIES_PERCENT_CORRECT_TO_LEVEL"`
	RosbridgeURL          string  `yaml:"rosbridge_url" env:"SOCIALSTORIES_ROSBRIDGE_URL"`
	MatchMode             string  `yaml:"match_mode" env:"SOCIALSTORIES_MATCH_MODE"`

	Defaults        Defaults      `yaml:"defaults"`
	WaitLogInterval time.Duration `yaml:"wait_log_interval" env:"SOCIALSTORIES_WAIT_LOG_INTERVAL"`
}

// Defaults are the session limits in effect until a script SETs them.
type Defaults struct {
	MaxIncorrectResponses int           `yaml:"max_incorrect_responses" env:"SOCIALSTORIES_MAX_INCORRECT_RESPONSES"`
	MaxGameTime           time.Duration `yaml:"max_game_time" env:"SOCIALSTORIES_MAX_GAME_TIME"`
	MaxStories            int           `yaml:"max_stories" env:"SOCIALSTORIES_MAX_STORIES"`
}

// FileFor returns the config file for a participant and session in dir.
// Demo sessions use DemoFile when it exists.
func FileFor(dir, participant string, session int) string {
	if participant == DemoParticipant || session < 0 {
		demo := filepath.Join(dir, DemoFile)
		if _, err := os.Stat(demo); err == nil {
			return demo
		}
	}
	return filepath.Join(dir, DefaultFile)
}

// Load reads path, applies environment overrides and defaults, resolves
// script directories relative to the config file, and validates.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := ParseEnv(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML config over the keys whose zero value is meaningful, so
// an omitted key keeps its default. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	cfg := Config{
		PercentCorrectToLevel: DefaultPercentCorrectToLevel,
		Defaults:              Defaults{MaxStories: DefaultMaxStories},
	}
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// ParseEnv loads configuration overrides from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// applyDefaults fills the values for which zero is not a usable setting.
func (c *Config) applyDefaults() {
	if c.RosbridgeURL == "" {
		c.RosbridgeURL = DefaultRosbridgeURL
	}
	if c.Defaults.MaxIncorrectResponses == 0 {
		c.Defaults.MaxIncorrectResponses = DefaultMaxIncorrectResponses
	}
	if c.Defaults.MaxGameTime == 0 {
		c.Defaults.MaxGameTime = DefaultMaxGameTime
	}
	if c.WaitLogInterval == 0 {
		c.WaitLogInterval = DefaultWaitLogInterval
	}
}

// resolvePaths anchors relative paths. ScriptPath and Database are relative
// to the config file's directory; the script sub-directories are relative
// to ScriptPath.
func (c *Config) resolvePaths(base string) {
	if c.ScriptPath != "" && !filepath.IsAbs(c.ScriptPath) {
		c.ScriptPath = filepath.Join(base, c.ScriptPath)
	}
	if c.Database != "" && c.Database != ":memory:" && !filepath.IsAbs(c.Database) {
		c.Database = filepath.Join(base, c.Database)
	}

	if c.SessionScriptPath == "" {
		slog.Warn("session_script_path not set; assuming session scripts are in script_path")
		c.SessionScriptPath = c.ScriptPath
	} else if !filepath.IsAbs(c.SessionScriptPath) {
		c.SessionScriptPath = filepath.Join(c.ScriptPath, c.SessionScriptPath)
	}

	if c.StoryScriptPath == "" {
		slog.Warn("story_script_path not set; assuming story scripts are in script_path")
		c.StoryScriptPath = c.ScriptPath
	} else if !filepath.IsAbs(c.StoryScriptPath) {
		c.StoryScriptPath = filepath.Join(c.ScriptPath, c.StoryScriptPath)
	}
}

// Validate checks that the configuration can run a session.
func (c *Config) Validate() error {
	var errs []error
	if c.ScriptPath == "" {
		errs = append(errs, errors.New("script_path is required"))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if c.PercentCorrectToLevel < 0 || c.PercentCorrectToLevel > 1 {
		errs = append(errs, fmt.Errorf("percent_correct_to_level must be between 0 and 1, got %v", c.PercentCorrectToLevel))
	}
	if _, err := script.ParseMatchMode(c.MatchMode); err != nil {
		errs = append(errs, fmt.Errorf("match_mode: %w", err))
	}
	if c.Defaults.MaxIncorrectResponses < 1 {
		errs = append(errs, fmt.Errorf("defaults.max_incorrect_responses must be at least 1, got %d", c.Defaults.MaxIncorrectResponses))
	}
	if c.Defaults.MaxGameTime < 0 {
		errs = append(errs, fmt.Errorf("defaults.max_game_time must not be negative, got %s", c.Defaults.MaxGameTime))
	}
	if c.Defaults.MaxStories < 0 {
		errs = append(errs, fmt.Errorf("defaults.max_stories must not be negative, got %d", c.Defaults.MaxStories))
	}
	if c.WaitLogInterval < 0 {
		errs = append(errs, fmt.Errorf("wait_log_interval must not be negative, got %s", c.WaitLogInterval))
	}
	return errors.Join(errs...)
}

// Match returns the parsed match mode. Validate has already checked it.
func (c *Config) Match() script.MatchMode {
	m, _ := script.ParseMatchMode(c.MatchMode)
	return m
}
