// Package config loads the YAML configuration snapshot: profiles, the alias
// table, and capture, delivery and archive settings.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/voxhold/internal/hotkey"
)

// Per-profile defaults applied to fields left at zero.
const (
	DefaultThreads  = 4
	DefaultBeamSize = 5
)

// Config holds all application configuration.
type Config struct {
	LogLevel   string          `yaml:"log_level"`
	Audio      AudioConfig     `yaml:"audio"`
	Inject     InjectConfig    `yaml:"inject"`
	Profiles   []ProfileConfig `yaml:"profiles"`
	Aliases    AliasConfig     `yaml:"aliases"`
	Recordings RecordingConfig `yaml:"recordings"`
}

// AudioConfig holds audio capture settings shared by every profile.
type AudioConfig struct {
	SampleRate          int    `yaml:"sample_rate"`
	Channels            int    `yaml:"channels"`
	PeriodFrames        int    `yaml:"period_frames"`
	MaxRecordingSeconds int    `yaml:"max_recording_seconds"`
	ResampleQuality     string `yaml:"resample_quality"` // "linear" or "sinc"
}

// MaxRecording returns the hold limit as a duration.
func (a AudioConfig) MaxRecording() time.Duration {
	return time.Duration(a.MaxRecordingSeconds) * time.Second
}

// InjectConfig holds text injection settings.
type InjectConfig struct {
	Method string `yaml:"method"` // "type" or "paste"
}

// HotkeyConfig is one trigger combination.
type HotkeyConfig struct {
	Modifiers []string `yaml:"modifiers"`
	Key       string   `yaml:"key"`
}

// ProfileConfig pairs a hotkey with a model and its inference parameters.
type ProfileConfig struct {
	Name      string       `yaml:"name"`
	Hotkey    HotkeyConfig `yaml:"hotkey"`
	ModelPath string       `yaml:"model_path"`
	Preload   bool         `yaml:"preload"`
	Threads   int          `yaml:"threads"`
	BeamSize  int          `yaml:"beam_size"`
	Language  string       `yaml:"language"` // empty keeps the model default
}

// Combo parses the profile's hotkey.
func (p ProfileConfig) Combo() (hotkey.Combo, error) {
	return hotkey.ParseCombo(p.Hotkey.Modifiers, p.Hotkey.Key)
}

// AliasEntry maps a spoken phrase to replacement text.
type AliasEntry struct {
	Phrase      string `yaml:"phrase"`
	Replacement string `yaml:"replacement"`
}

// AliasConfig is the fuzzy substitution table.
type AliasConfig struct {
	Enabled   bool         `yaml:"enabled"`
	Threshold float64      `yaml:"threshold"`
	Entries   []AliasEntry `yaml:"entries"`
}

// RecordingConfig controls the debug WAV archive.
type RecordingConfig struct {
	Enabled              bool   `yaml:"enabled"`
	Dir                  string `yaml:"dir"`
	RetentionDays        int    `yaml:"retention_days"`
	MaxCount             int    `yaml:"max_count"`
	CleanupIntervalHours int    `yaml:"cleanup_interval_hours"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voxhold")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the directory holding models and recordings.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "voxhold")
}

// DefaultModelsDir returns the default directory for model files.
func DefaultModelsDir() string {
	return filepath.Join(DefaultDataDir(), "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	dataDir := DefaultDataDir()

	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			SampleRate:          16000,
			Channels:            1,
			PeriodFrames:        1024,
			MaxRecordingSeconds: 30,
			ResampleQuality:     "linear",
		},
		Inject: InjectConfig{
			Method: "type",
		},
		Profiles: []ProfileConfig{
			{
				Name:      "base",
				Hotkey:    HotkeyConfig{Modifiers: []string{"Ctrl", "Option"}, Key: "Z"},
				ModelPath: filepath.Join(dataDir, "models", "ggml-base.en.bin"),
				Preload:   true,
				Threads:   DefaultThreads,
				BeamSize:  DefaultBeamSize,
			},
		},
		Aliases: AliasConfig{
			Enabled:   true,
			Threshold: 0.8,
			Entries: []AliasEntry{
				{Phrase: "period", Replacement: "."},
				{Phrase: "comma", Replacement: ","},
				{Phrase: "question mark", Replacement: "?"},
			},
		},
		Recordings: RecordingConfig{
			Enabled:       false,
			Dir:           filepath.Join(dataDir, "recordings"),
			RetentionDays: 7,
			MaxCount:      50,
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Profiles decode into fresh structs, so their defaults apply here.
	for i := range cfg.Profiles {
		p := &cfg.Profiles[i]
		if p.Threads == 0 {
			p.Threads = DefaultThreads
		}
		if p.BeamSize == 0 {
			p.BeamSize = DefaultBeamSize
		}
		p.ModelPath = expandTilde(p.ModelPath)
	}
	cfg.Recordings.Dir = expandTilde(cfg.Recordings.Dir)

	return cfg, nil
}

// Validate checks the config for invalid values. Duplicate hotkeys are
// allowed here; they are rejected when profiles are registered so that the
// first profile keeps working.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be > 0")
	}
	if c.Audio.Channels <= 0 {
		return errors.New("audio.channels must be > 0")
	}
	if c.Audio.PeriodFrames <= 0 {
		return errors.New("audio.period_frames must be > 0")
	}
	if c.Audio.MaxRecordingSeconds <= 0 {
		return errors.New("audio.max_recording_seconds must be > 0")
	}
	switch c.Audio.ResampleQuality {
	case "linear", "sinc":
	default:
		return fmt.Errorf("audio.resample_quality must be \"linear\" or \"sinc\", got %q", c.Audio.ResampleQuality)
	}

	switch c.Inject.Method {
	case "type", "paste":
	default:
		return fmt.Errorf("inject.method must be \"type\" or \"paste\", got %q", c.Inject.Method)
	}

	if len(c.Profiles) == 0 {
		return errors.New("profiles must not be empty")
	}
	names := make(map[string]bool, len(c.Profiles))
	for i, p := range c.Profiles {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("profiles[%d].name must not be empty", i)
		}
		if names[p.Name] {
			return fmt.Errorf("profiles[%d].name %q is used more than once", i, p.Name)
		}
		names[p.Name] = true

		if _, err := p.Combo(); err != nil {
			return fmt.Errorf("profiles[%d] (%s).hotkey: %w", i, p.Name, err)
		}
		if p.ModelPath == "" {
			return fmt.Errorf("profiles[%d] (%s).model_path must not be empty", i, p.Name)
		}
		if p.Threads < 1 {
			return fmt.Errorf("profiles[%d] (%s).threads must be >= 1", i, p.Name)
		}
		if p.BeamSize < 1 {
			return fmt.Errorf("profiles[%d] (%s).beam_size must be >= 1", i, p.Name)
		}
	}

	if c.Aliases.Threshold < 0 || c.Aliases.Threshold > 1 {
		return fmt.Errorf("aliases.threshold must be between 0 and 1, got %v", c.Aliases.Threshold)
	}
	for i, e := range c.Aliases.Entries {
		if strings.TrimSpace(e.Phrase) == "" {
			return fmt.Errorf("aliases.entries[%d].phrase must not be empty", i)
		}
	}

	if c.Recordings.Enabled {
		if c.Recordings.Dir == "" {
			return errors.New("recordings.dir must not be empty when recordings are enabled")
		}
		if c.Recordings.RetentionDays < 0 || c.Recordings.MaxCount < 0 || c.Recordings.CleanupIntervalHours < 0 {
			return errors.New("recordings limits must be >= 0")
		}
	}

	return nil
}

// ParseLogLevel maps a config log level to slog. Unknown values map to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultFile = `# voxhold configuration
# Hold a profile's hotkey to record, release to transcribe and type the text.

log_level: info # debug, info, warn, error

audio:
  sample_rate: 16000
  channels: 1
  period_frames: 1024
  max_recording_seconds: 30 # a longer hold stops and transcribes automatically
  resample_quality: linear  # linear or sinc

inject:
  method: type # type (keystrokes) or paste (clipboard)

profiles:
  - name: base
    hotkey:
      modifiers: [Ctrl, Option]
      key: Z
    model_path: ~/.local/share/voxhold/models/ggml-base.en.bin
    preload: true
    threads: 4
    beam_size: 5
    # language: en # omit to keep the model default, "auto" to detect

aliases:
  enabled: true
  threshold: 0.8 # 0.0 to 1.0 similarity needed to substitute
  entries:
    - {phrase: period, replacement: "."}
    - {phrase: comma, replacement: ","}
    - {phrase: question mark, replacement: "?"}

recordings:
  enabled: false
  dir: ~/.local/share/voxhold/recordings
  retention_days: 7
  max_count: 50
  cleanup_interval_hours: 0 # 0 cleans up at startup only
`

// WriteDefault writes the commented default config to DefaultConfigPath.
// It returns the path written, or "" if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultFile), 0o644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
