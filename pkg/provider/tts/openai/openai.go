// Package openai provides a TTS provider backed by the OpenAI speech endpoint.
//
// Audio is requested as raw PCM, which OpenAI delivers as 24 kHz mono 16-bit
// little-endian samples, and streamed to the caller as the response body
// arrives.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/nova/pkg/audio"
	"github.com/MrWong99/nova/pkg/provider/tts"
	"github.com/MrWong99/nova/pkg/types"
)

const (
	defaultModel = oai.SpeechModelGPT4oMiniTTS
	defaultVoice = "nova"
	chunkSize    = 4096
)

// voices offered by the speech endpoint.
var voices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer", "verse"}

// Option is a functional option for Provider.
type Option func(*config)

type config struct {
	model   string
	baseURL string
	timeout time.Duration
}

// WithModel sets the speech model ("gpt-4o-mini-tts", "tts-1", "tts-1-hd").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Provider implements tts.Provider using OpenAI text-to-speech.
type Provider struct {
	client oai.Client
	model  string
}

// New constructs a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// Format reports 24 kHz mono PCM.
func (p *Provider) Format() audio.Format { return audio.SpeechFormat }

// SynthesizeStream collects all text, issues one speech request and streams
// the PCM body in fixed-size chunks.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	var sb strings.Builder
	for {
		select {
		case fragment, ok := <-text:
			if !ok {
				return p.speak(ctx, strings.TrimSpace(sb.String()), voice)
			}
			sb.WriteString(fragment)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Provider) speak(ctx context.Context, input string, voice types.VoiceProfile) (<-chan []byte, error) {
	out := make(chan []byte, 64)
	if input == "" {
		close(out)
		return out, nil
	}

	resp, err := p.client.Audio.Speech.New(ctx, p.buildParams(input, voice))
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}

	go func() {
		defer close(out)
		defer resp.Body.Close()
		for {
			buf := make([]byte, chunkSize)
			n, err := io.ReadFull(resp.Body, buf)
			if n > 0 {
				select {
				case out <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

func (p *Provider) buildParams(input string, voice types.VoiceProfile) oai.AudioSpeechNewParams {
	id := voice.ID
	if id == "" {
		id = defaultVoice
	}
	params := oai.AudioSpeechNewParams{
		Input:          input,
		Model:          p.model,
		Voice:          oai.AudioSpeechNewParamsVoice(id),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	// tts-1 models reject instructions.
	if voice.Instructions != "" && !strings.HasPrefix(p.model, "tts-1") {
		params.Instructions = param.NewOpt(voice.Instructions)
	}
	if voice.SpeedFactor >= 0.25 && voice.SpeedFactor <= 4 && voice.SpeedFactor != 1 {
		params.Speed = param.NewOpt(voice.SpeedFactor)
	}
	return params
}

// ListVoices returns the built-in voice catalogue; the API has no listing endpoint.
func (p *Provider) ListVoices(context.Context) ([]types.VoiceProfile, error) {
	out := make([]types.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		out = append(out, types.VoiceProfile{ID: v, Name: v, Provider: "openai"})
	}
	return out, nil
}

var _ tts.Provider = (*Provider)(nil)
