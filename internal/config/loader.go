package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper"},
	"tts": {"openai", "elevenlabs", "coqui"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultTutorName      = "Nova"
	DefaultLanguage       = "en"
	DefaultMaxListen      = 15 * time.Second
	DefaultCaptureCommand = "ffmpeg"
	DefaultInputFormat    = "pulse"
	DefaultInputDevice    = "default"
	DefaultSampleRate     = 16000
	DefaultPlayer         = "ffplay"
)

// Default returns a configuration with every default applied and no
// providers selected.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	t := &cfg.Tutor
	if t.Name == "" {
		t.Name = DefaultTutorName
	}
	if t.Input == "" {
		t.Input = InputMic
	}
	if t.Language == "" {
		t.Language = DefaultLanguage
	}
	if t.MaxListen == 0 {
		t.MaxListen = DefaultMaxListen
	}
	a := &cfg.Audio
	if a.CaptureCommand == "" {
		a.CaptureCommand = DefaultCaptureCommand
	}
	if a.InputFormat == "" {
		a.InputFormat = DefaultInputFormat
	}
	if a.InputDevice == "" {
		a.InputDevice = DefaultInputDevice
	}
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.Player == "" {
		a.Player = DefaultPlayer
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreMemory
	}
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	t := cfg.Tutor
	if t.Input != "" && !t.Input.IsValid() {
		errs = append(errs, fmt.Errorf("tutor.input %q is invalid; valid values: mic, typed", t.Input))
	}
	if t.MaxListen < 0 {
		errs = append(errs, fmt.Errorf("tutor.max_listen %v must not be negative", t.MaxListen))
	}
	if t.Voice.SpeedFactor != 0 && (t.Voice.SpeedFactor < 0.25 || t.Voice.SpeedFactor > 4.0) {
		errs = append(errs, fmt.Errorf("tutor.voice.speed_factor %.2f is out of range [0.25, 4.0]", t.Voice.SpeedFactor))
	}

	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if dir, ok := strings.CutPrefix(cfg.Audio.Player, "wav:"); ok && dir == "" {
		errs = append(errs, errors.New("audio.player \"wav:\" needs a directory"))
	}

	s := cfg.Store
	switch {
	case s.Driver == "":
	case !s.Driver.IsValid():
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: memory, file, sqlite, postgres", s.Driver))
	case (s.Driver == StoreFile || s.Driver == StoreSQLite) && s.Path == "":
		errs = append(errs, fmt.Errorf("store.path is required when driver is %s", s.Driver))
	case s.Driver == StorePostgres && s.DSN == "":
		errs = append(errs, errors.New("store.dsn is required when driver is postgres"))
	}

	return errors.Join(errs...)
}

// ValidatePractice checks the providers a practice session needs: an LLM to
// grade, a TTS voice to reply and, for microphone input, an STT provider.
// Commands that only read progress do not call it.
func ValidatePractice(cfg *Config) error {
	var errs []error
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required to grade utterances"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts is required to speak replies"))
	}
	if cfg.Tutor.Input == InputMic && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("tutor.input \"mic\" requires an STT provider but providers.stt is not configured"))
	}
	if cfg.Store.Driver == StoreMemory {
		slog.Warn("store.driver is memory; score and mistakes are lost on exit")
	}
	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
