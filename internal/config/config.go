// Package config provides the configuration schema, loader and provider
// registry for the Nova speaking tutor.
//
// Configuration comes from a YAML file (see [Load]) with secrets and a few
// deployment knobs overridable from the environment (see [LoadEnv]).
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InputMode selects how utterances are captured.
type InputMode string

const (
	// InputMic records from the microphone and transcribes with the STT provider.
	InputMic InputMode = "mic"

	// InputTyped reads utterances from the terminal.
	InputTyped InputMode = "typed"
)

// IsValid reports whether m is a recognised input mode.
func (m InputMode) IsValid() bool {
	return m == InputMic || m == InputTyped
}

// StoreDriver selects the progress store backend.
type StoreDriver string

const (
	StoreMemory   StoreDriver = "memory"
	StoreFile     StoreDriver = "file"
	StoreSQLite   StoreDriver = "sqlite"
	StorePostgres StoreDriver = "postgres"
)

// IsValid reports whether d is a recognised driver.
func (d StoreDriver) IsValid() bool {
	switch d {
	case StoreMemory, StoreFile, StoreSQLite, StorePostgres:
		return true
	}
	return false
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Tutor     TutorConfig     `yaml:"tutor"`
	Audio     AudioConfig     `yaml:"audio"`
	Store     StoreConfig     `yaml:"store"`
	Learner   LearnerConfig   `yaml:"learner"`
}

// ServerConfig holds logging and the optional diagnostics listener.
type ServerConfig struct {
	LogLevel LogLevel `yaml:"log_level"`

	// ListenAddr enables /metrics, /healthz and /readyz when set (":9464").
	ListenAddr string `yaml:"listen_addr"`
}

// ProvidersConfig names the backend for each external service.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration block shared by all provider kinds. Name
// selects the constructor in the [Registry].
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific values (language, voice, api_mode...).
	Options map[string]any `yaml:"options"`
}

// Option returns the string provider option key, or "" if it is unset or not
// a string.
func (e ProviderEntry) Option(key string) string {
	v, _ := e.Options[key].(string)
	return v
}

// TutorConfig shapes the practice session.
type TutorConfig struct {
	// Name is the tutor persona. Default "Nova".
	Name string `yaml:"name"`

	Input InputMode `yaml:"input"`

	// Language is the BCP-47 code the learner practices. Default "en".
	Language string `yaml:"language"`

	// MaxListen bounds one capture. Default 15s.
	MaxListen time.Duration `yaml:"max_listen"`

	// SpeakPrefix is prepended to every spoken reply, e.g. "Say this naturally: ".
	SpeakPrefix string `yaml:"speak_prefix"`

	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig selects the TTS voice.
type VoiceConfig struct {
	ID string `yaml:"id"`

	// SpeedFactor adjusts speaking rate in [0.25, 4.0]. Zero means default.
	SpeedFactor float64 `yaml:"speed_factor"`

	// Instructions is a style hint for voices that accept one.
	Instructions string `yaml:"instructions"`
}

// AudioConfig configures local capture and playback.
type AudioConfig struct {
	CaptureCommand string `yaml:"capture_command"`
	InputFormat    string `yaml:"input_format"`
	InputDevice    string `yaml:"input_device"`
	SampleRate     int    `yaml:"sample_rate"`

	// Player is a command line fed raw PCM on stdin, or "wav:<dir>" to write
	// each reply to a WAV file instead.
	Player string `yaml:"player"`
}

// StoreConfig selects where profile, score and mistakes are kept.
type StoreConfig struct {
	Driver StoreDriver `yaml:"driver"`

	// Path is the file or SQLite database path.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`
}

// LearnerConfig seeds a profile when none is stored yet.
type LearnerConfig struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	PhotoURL string `yaml:"photo_url"`
}
