package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env holds the settings that may come from the environment instead of the
// YAML file. Variables carry the NOVA_ prefix, e.g. NOVA_LLM_API_KEY.
type Env struct {
	LLMAPIKey  string `envconfig:"LLM_API_KEY"`
	STTAPIKey  string `envconfig:"STT_API_KEY"`
	TTSAPIKey  string `envconfig:"TTS_API_KEY"`
	StoreDSN   string `envconfig:"STORE_DSN"`
	LogLevel   string `envconfig:"LOG_LEVEL"`
	ListenAddr string `envconfig:"LISTEN_ADDR"`
}

// LoadEnv loads the given dotenv files (".env" when none are named), then
// reads the NOVA_* variables. Missing dotenv files are skipped; variables
// already set in the process environment win over file values.
func LoadEnv(files ...string) (Env, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, fmt.Errorf("config: load %q: %w", f, err)
		}
	}
	var env Env
	if err := envconfig.Process("nova", &env); err != nil {
		return Env{}, fmt.Errorf("config: read environment: %w", err)
	}
	return env, nil
}

// Apply overlays every non-empty value of e onto cfg.
func (e Env) Apply(cfg *Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Providers.LLM.APIKey, e.LLMAPIKey)
	set(&cfg.Providers.STT.APIKey, e.STTAPIKey)
	set(&cfg.Providers.TTS.APIKey, e.TTSAPIKey)
	set(&cfg.Store.DSN, e.StoreDSN)
	set(&cfg.Server.ListenAddr, e.ListenAddr)
	if e.LogLevel != "" {
		cfg.Server.LogLevel = LogLevel(e.LogLevel)
	}
}
