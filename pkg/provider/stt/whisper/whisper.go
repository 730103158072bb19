// Package whisper provides a local whisper.cpp-backed STT provider.
//
// It talks to a running whisper-server (POST /inference) and simulates
// streaming by buffering PCM, segmenting utterances with an energy-based
// silence detector and submitting each utterance as one batch request.
//
// whisper.cpp cannot produce true interim hypotheses, so every committed
// utterance is emitted once as a partial and once as a SpeechFinal final.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithSilenceThresholdMs(700))
//	handle, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000})
//	handle.SendAudio(pcmChunk)
//	handle.Close()
//	for t := range handle.Finals() { ... }
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/nova/pkg/audio"
	"github.com/MrWong99/nova/pkg/provider/stt"
	"github.com/MrWong99/nova/pkg/types"
)

const (
	// defaultRMSThreshold is the energy (16-bit PCM units) below which audio
	// counts as silence. 300 is near-silence for a desk microphone.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 700
	defaultMaxBufferDurationMs = 15_000
	defaultInferencePath       = "/inference"
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model forwarded to the server. Empty uses the server's.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the default PCM sample rate. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSilenceThresholdMs sets how much trailing silence ends an utterance.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) { p.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs forces a flush once this much audio is buffered.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) { p.maxBufferDurationMs = ms }
}

// WithRMSThreshold overrides the silence energy threshold.
func WithRMSThreshold(rms float64) Option {
	return func(p *Provider) { p.rmsThreshold = rms }
}

// WithInferencePath overrides the request path ("/inference").
func WithInferencePath(path string) Option {
	return func(p *Provider) { p.inferencePath = path }
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL           string
	inferencePath       string
	model               string
	language            string
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
	rmsThreshold        float64
	httpClient          *http.Client
}

// New creates a Provider for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:           strings.TrimRight(serverURL, "/"),
		inferencePath:       defaultInferencePath,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		rmsThreshold:        defaultRMSThreshold,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a session. No connection is made until the first flush.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	f := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if f.SampleRate <= 0 {
		f.SampleRate = p.sampleRate
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}

	s := &session{
		p:        p,
		language: lang,
		format:   f,
		audioCh:  make(chan []byte, 256),
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.processLoop(ctx)
	return s, nil
}

// ---- session ----------------------------------------------------------------

// session confines all buffering state to processLoop.
type session struct {
	p        *Provider
	language string
	format   audio.Format

	audioCh  chan []byte
	partials chan types.Transcript
	finals   chan types.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

func (s *session) Partials() <-chan types.Transcript { return s.partials }

func (s *session) Finals() <-chan types.Transcript { return s.finals }

// Close flushes pending speech for a last transcription and closes both
// channels. Safe to call more than once.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// segmenter accumulates speech and decides when an utterance is complete.
type segmenter struct {
	threshold   float64
	silenceMax  time.Duration
	maxDuration time.Duration
	format      audio.Format

	buffer    []byte
	hadSpeech bool
	silence   time.Duration
}

// push adds a chunk and reports whether the buffered utterance should be
// flushed now. Leading silence is discarded.
func (g *segmenter) push(chunk []byte) bool {
	d := audio.ChunkDuration(chunk, g.format)
	if audio.RMS(chunk) < g.threshold {
		if !g.hadSpeech {
			return false
		}
		g.silence += d
		g.buffer = append(g.buffer, chunk...)
		return g.silence >= g.silenceMax
	}
	g.hadSpeech = true
	g.silence = 0
	g.buffer = append(g.buffer, chunk...)
	return g.maxDuration > 0 && audio.ChunkDuration(g.buffer, g.format) >= g.maxDuration
}

// take returns the buffered utterance (nil when no speech was heard) and
// resets the segmenter.
func (g *segmenter) take() []byte {
	pcm := g.buffer
	if !g.hadSpeech {
		pcm = nil
	}
	g.buffer, g.hadSpeech, g.silence = nil, false, 0
	return pcm
}

func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	seg := &segmenter{
		threshold:   s.p.rmsThreshold,
		silenceMax:  time.Duration(s.p.silenceThresholdMs) * time.Millisecond,
		maxDuration: time.Duration(s.p.maxBufferDurationMs) * time.Millisecond,
		format:      s.format,
	}

	flush := func(fctx context.Context) {
		pcm := seg.take()
		if len(pcm) == 0 {
			return
		}
		text, err := s.infer(fctx, pcm)
		if err != nil {
			slog.Warn("whisper: inference failed", "err", err)
			return
		}
		if text == "" {
			return
		}
		t := types.Transcript{
			Text:     text,
			IsFinal:  true,
			Duration: audio.ChunkDuration(pcm, s.format),
		}
		select {
		case s.partials <- types.Transcript{Text: text, Duration: t.Duration}:
		default:
		}
		t.SpeechFinal = true
		select {
		case s.finals <- t:
		default:
		}
	}

	// finalFlush drains queued audio and transcribes it with a fresh context,
	// since ctx may already be cancelled.
	finalFlush := func() {
	drain:
		for {
			select {
			case chunk := <-s.audioCh:
				seg.push(chunk)
			default:
				break drain
			}
		}
		fc, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		flush(fc)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			finalFlush()
			return
		case chunk := <-s.audioCh:
			if seg.push(chunk) {
				flush(ctx)
			}
		}
	}
}

// infer POSTs pcm as a WAV upload and returns the transcribed text.
func (s *session) infer(ctx context.Context, pcm []byte) (string, error) {
	wav := audio.EncodeWAV(audio.Clip{Data: pcm, Format: s.format})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"language":        s.language,
		"model":           s.p.model,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.p.serverURL+s.p.inferencePath, &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

var _ stt.Provider = (*Provider)(nil)
