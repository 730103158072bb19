package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/nova/internal/config"
	"github.com/MrWong99/nova/pkg/provider/llm"
	llmmock "github.com/MrWong99/nova/pkg/provider/llm/mock"
	"github.com/MrWong99/nova/pkg/provider/stt"
	sttmock "github.com/MrWong99/nova/pkg/provider/stt/mock"
	"github.com/MrWong99/nova/pkg/provider/tts"
	ttsmock "github.com/MrWong99/nova/pkg/provider/tts/mock"
)

const sampleYAML = `
server:
  listen_addr: ":9464"
  log_level: debug

providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  stt:
    name: deepgram
    api_key: dg-test
    model: nova-3
    options:
      language: en-US
  tts:
    name: elevenlabs
    api_key: el-test
    options:
      output_format: pcm_24000

tutor:
  name: Nova
  input: mic
  max_listen: 10s
  speak_prefix: "Say this naturally: "
  voice:
    id: rachel
    speed_factor: 0.9

audio:
  player: "wav:/tmp/nova"

store:
  driver: sqlite
  path: /tmp/nova.db

learner:
  name: Rahim
  email: rahim@example.com
`

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != config.LogDebug || cfg.Server.ListenAddr != ":9464" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm = %+v", cfg.Providers.LLM)
	}
	if got := cfg.Providers.STT.Option("language"); got != "en-US" {
		t.Errorf("stt language = %q", got)
	}
	if got := cfg.Providers.TTS.Option("output_format"); got != "pcm_24000" {
		t.Errorf("tts output_format = %q", got)
	}
	if cfg.Tutor.MaxListen != 10*time.Second {
		t.Errorf("max_listen = %v", cfg.Tutor.MaxListen)
	}
	if cfg.Tutor.SpeakPrefix != "Say this naturally: " {
		t.Errorf("speak_prefix = %q", cfg.Tutor.SpeakPrefix)
	}
	if cfg.Tutor.Voice.ID != "rachel" || cfg.Tutor.Voice.SpeedFactor != 0.9 {
		t.Errorf("voice = %+v", cfg.Tutor.Voice)
	}
	if cfg.Store.Driver != config.StoreSQLite || cfg.Store.Path != "/tmp/nova.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Learner.Email != "rahim@example.com" {
		t.Errorf("learner = %+v", cfg.Learner)
	}

	// Unset fields get defaults.
	if cfg.Audio.CaptureCommand != config.DefaultCaptureCommand || cfg.Audio.SampleRate != config.DefaultSampleRate {
		t.Errorf("audio defaults not applied: %+v", cfg.Audio)
	}
	if cfg.Tutor.Language != config.DefaultLanguage {
		t.Errorf("language = %q", cfg.Tutor.Language)
	}
	if err := config.ValidatePractice(cfg); err != nil {
		t.Errorf("ValidatePractice: %v", err)
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	want := config.Default()
	if cfg.Tutor != want.Tutor || cfg.Audio != want.Audio || cfg.Store != want.Store {
		t.Errorf("empty config = %+v, want defaults %+v", cfg, want)
	}
	if cfg.Tutor.Name != "Nova" || cfg.Tutor.Input != config.InputMic || cfg.Store.Driver != config.StoreMemory {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("tutor:\n  nmae: Nova\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nova.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.TTS.Name != "elevenlabs" {
		t.Errorf("tts = %q", cfg.Providers.TTS.Name)
	}

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"log level", func(c *config.Config) { c.Server.LogLevel = "loud" }, "server.log_level"},
		{"input", func(c *config.Config) { c.Tutor.Input = "telepathy" }, "tutor.input"},
		{"max listen", func(c *config.Config) { c.Tutor.MaxListen = -time.Second }, "tutor.max_listen"},
		{"speed low", func(c *config.Config) { c.Tutor.Voice.SpeedFactor = 0.1 }, "speed_factor"},
		{"speed high", func(c *config.Config) { c.Tutor.Voice.SpeedFactor = 5 }, "speed_factor"},
		{"speed ok", func(c *config.Config) { c.Tutor.Voice.SpeedFactor = 1.5 }, ""},
		{"wav dir", func(c *config.Config) { c.Audio.Player = "wav:" }, "audio.player"},
		{"driver", func(c *config.Config) { c.Store.Driver = "mongo" }, "store.driver"},
		{"file path", func(c *config.Config) { c.Store.Driver = config.StoreFile }, "store.path"},
		{"sqlite path", func(c *config.Config) { c.Store.Driver = config.StoreSQLite }, "store.path"},
		{"postgres dsn", func(c *config.Config) { c.Store.Driver = config.StorePostgres }, "store.dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.LogLevel = "loud"
	cfg.Store.Driver = "mongo"
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "store.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidatePractice(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	err := config.ValidatePractice(cfg)
	if err == nil {
		t.Fatal("expected error without providers")
	}
	for _, want := range []string{"providers.llm", "providers.tts", "providers.stt"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}

	cfg.Providers.LLM.Name = "openai"
	cfg.Providers.TTS.Name = "openai"
	cfg.Tutor.Input = config.InputTyped
	if err := config.ValidatePractice(cfg); err != nil {
		t.Errorf("typed input without STT: %v", err)
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in    config.LogLevel
		valid bool
		level slog.Level
	}{
		{config.LogDebug, true, slog.LevelDebug},
		{config.LogInfo, true, slog.LevelInfo},
		{config.LogWarn, true, slog.LevelWarn},
		{config.LogError, true, slog.LevelError},
		{"verbose", false, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.in.IsValid(); got != tt.valid {
			t.Errorf("%q.IsValid() = %v", tt.in, got)
		}
		if got := tt.in.Level(); got != tt.level {
			t.Errorf("%q.Level() = %v, want %v", tt.in, got, tt.level)
		}
	}
}

func TestProviderEntry_Option(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{"language": "en-GB", "timeout": 3}}
	if got := e.Option("language"); got != "en-GB" {
		t.Errorf("language = %q", got)
	}
	if got := e.Option("timeout"); got != "" {
		t.Errorf("non-string option = %q, want empty", got)
	}
	if got := (config.ProviderEntry{}).Option("language"); got != "" {
		t.Errorf("nil options = %q", got)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "NOVA_LLM_API_KEY=from-file\nNOVA_TTS_API_KEY=tts-file\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NOVA_TTS_API_KEY", "tts-process")
	t.Setenv("NOVA_LOG_LEVEL", "warn")
	t.Setenv("NOVA_STORE_DSN", "postgres://localhost/nova")
	// godotenv sets variables it loads; make sure they are cleaned up.
	t.Setenv("NOVA_LLM_API_KEY", "")
	os.Unsetenv("NOVA_LLM_API_KEY")

	env, err := config.LoadEnv(envFile, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if env.LLMAPIKey != "from-file" {
		t.Errorf("LLMAPIKey = %q, want from-file", env.LLMAPIKey)
	}
	if env.TTSAPIKey != "tts-process" {
		t.Errorf("TTSAPIKey = %q, process env must win", env.TTSAPIKey)
	}

	cfg := config.Default()
	cfg.Providers.LLM.APIKey = "from-yaml"
	cfg.Providers.STT.APIKey = "stt-yaml"
	env.Apply(cfg)
	if cfg.Providers.LLM.APIKey != "from-file" {
		t.Errorf("llm key = %q", cfg.Providers.LLM.APIKey)
	}
	if cfg.Providers.STT.APIKey != "stt-yaml" {
		t.Errorf("stt key overwritten with empty value: %q", cfg.Providers.STT.APIKey)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log level = %q", cfg.Server.LogLevel)
	}
	if cfg.Store.DSN != "postgres://localhost/nova" {
		t.Errorf("dsn = %q", cfg.Store.DSN)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	wantLLM := &llmmock.Provider{}
	reg.RegisterLLM("mock", func(e config.ProviderEntry) (llm.Provider, error) {
		if e.Model != "m1" {
			t.Errorf("factory got model %q", e.Model)
		}
		return wantLLM, nil
	})
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })
	reg.RegisterTTS("broken", func(config.ProviderEntry) (tts.Provider, error) { return nil, errors.New("boom") })

	got, err := reg.CreateLLM(config.ProviderEntry{Name: "mock", Model: "m1"})
	if err != nil || got != wantLLM {
		t.Fatalf("CreateLLM = %v, %v", got, err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "broken"}); err == nil || err.Error() != "boom" {
		t.Errorf("CreateTTS(broken) err = %v", err)
	}

	_, err = reg.CreateLLM(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	if !strings.Contains(err.Error(), `"nope"`) {
		t.Errorf("err %q should name the provider", err)
	}

	if names := reg.Names("tts"); len(names) != 2 || names[0] != "broken" || names[1] != "mock" {
		t.Errorf("Names(tts) = %v", names)
	}
	if names := reg.Names("s2s"); len(names) != 0 {
		t.Errorf("Names(s2s) = %v", names)
	}
}
