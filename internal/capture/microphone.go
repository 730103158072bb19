// Package capture implements tutor.Recognizer: live microphone capture through
// a streaming STT provider, and a typed-input stand-in for terminals without a
// microphone.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/nova/internal/observe"
	"github.com/MrWong99/nova/internal/tutor"
	"github.com/MrWong99/nova/pkg/audio"
	"github.com/MrWong99/nova/pkg/provider/stt"
)

const (
	// DefaultMaxListen caps one utterance when no final arrives.
	DefaultMaxListen = 15 * time.Second

	defaultChunk = 100 * time.Millisecond
)

var errMaxListen = errors.New("capture: max listen time reached")

var _ tutor.Recognizer = (*Microphone)(nil)

// MicOption configures a [Microphone].
type MicOption func(*Microphone)

// WithFormat sets the capture format. Defaults to audio.CaptureFormat.
func WithFormat(f audio.Format) MicOption {
	return func(m *Microphone) { m.format = f }
}

// WithLanguage sets the BCP-47 language passed to the STT provider.
func WithLanguage(lang string) MicOption {
	return func(m *Microphone) { m.language = lang }
}

// WithMaxListen bounds how long Listen waits for a final transcript.
func WithMaxListen(d time.Duration) MicOption {
	return func(m *Microphone) {
		if d > 0 {
			m.maxListen = d
		}
	}
}

// WithPartials registers fn to receive interim transcripts while listening.
func WithPartials(fn func(text string)) MicOption {
	return func(m *Microphone) { m.onPartial = fn }
}

// WithMetrics records listen durations on m instead of observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) MicOption {
	return func(mic *Microphone) { mic.metrics = m }
}

// Microphone listens for one utterance per Listen call.
type Microphone struct {
	source    audio.Source
	stt       stt.Provider
	format    audio.Format
	language  string
	maxListen time.Duration
	onPartial func(string)
	metrics   *observe.Metrics
}

// NewMicrophone returns a Microphone reading from source and transcribing with p.
func NewMicrophone(source audio.Source, p stt.Provider, opts ...MicOption) *Microphone {
	m := &Microphone{
		source:    source,
		stt:       p,
		format:    audio.CaptureFormat,
		maxListen: DefaultMaxListen,
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Permit opens the capture device briefly to surface access problems before
// the learner starts talking.
func (m *Microphone) Permit(ctx context.Context) error {
	stream, err := m.open(ctx)
	if err != nil {
		return err
	}
	if err := stream.Stop(); err != nil {
		observe.Logger(ctx).Debug("capture: stop probe stream", "err", err)
	}
	return nil
}

func (m *Microphone) open(ctx context.Context) (audio.Stream, error) {
	stream, err := m.source.Open(ctx, m.format)
	if err != nil {
		if errors.Is(err, audio.ErrDeviceDenied) {
			return nil, fmt.Errorf("%w: %v", tutor.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("capture: open microphone: %w", err)
	}
	return stream, nil
}

// Listen captures until the provider commits an utterance, the source ends,
// the max listen time passes or ctx is cancelled. Cancellation returns
// ctx.Err(); ending without any text returns tutor.ErrNoSpeech.
func (m *Microphone) Listen(ctx context.Context) (string, error) {
	ctx, span := observe.StartSpan(ctx, "capture.Listen")
	defer span.End()

	listenCtx, cancel := context.WithTimeoutCause(ctx, m.maxListen, errMaxListen)
	defer cancel()

	stream, err := m.open(listenCtx)
	if err != nil {
		return "", err
	}
	session, err := m.stt.StartStream(listenCtx, stt.StreamConfig{
		SampleRate: m.format.SampleRate,
		Channels:   m.format.Channels,
		Language:   m.language,
	})
	if err != nil {
		_ = stream.Stop()
		return "", fmt.Errorf("capture: start transcription: %w", err)
	}

	start := time.Now()
	var g errgroup.Group
	g.Go(func() error { return m.pump(listenCtx, stream, session) })

	text := m.collect(listenCtx, session)

	if err := stream.Stop(); err != nil {
		observe.Logger(ctx).Debug("capture: stop stream", "err", err)
	}
	_ = session.Close()
	pumpErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if text != "" {
		m.metrics.ListenDuration.Record(ctx, time.Since(start).Seconds())
		return text, nil
	}
	if pumpErr != nil {
		span.RecordError(pumpErr)
		return "", pumpErr
	}
	if errors.Is(context.Cause(listenCtx), errMaxListen) {
		observe.Logger(ctx).Debug("capture: max listen time reached", "max", m.maxListen)
	}
	return "", tutor.ErrNoSpeech
}

// pump forwards PCM chunks until the stream ends, then closes the session so
// the provider flushes its last transcript.
func (m *Microphone) pump(ctx context.Context, stream io.Reader, session stt.SessionHandle) error {
	defer session.Close()

	size := m.format.BytesPerSecond() * int(defaultChunk/time.Millisecond) / 1000
	if size <= 0 {
		size = 3200
	}
	buf := make([]byte, size)
	for {
		n, err := io.ReadFull(stream, buf)
		if n > 0 {
			if serr := session.SendAudio(bytes.Clone(buf[:n])); serr != nil {
				if errors.Is(serr, stt.ErrSessionClosed) {
					return nil
				}
				return fmt.Errorf("capture: send audio: %w", serr)
			}
		}
		if err != nil {
			if streamEnded(err) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("capture: read microphone: %w", err)
		}
	}
}

// streamEnded reports whether err is a normal end of capture, including a
// read on a stream that was stopped.
func streamEnded(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}

// collect joins final transcripts until one closes the utterance, the
// session ends or ctx is done.
func (m *Microphone) collect(ctx context.Context, session stt.SessionHandle) string {
	var parts []string
	partials := session.Partials()
	if m.onPartial == nil {
		partials = nil
	}
	finals := session.Finals()
	for {
		select {
		case p, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if s := strings.TrimSpace(p.Text); s != "" {
				m.onPartial(s)
			}
		case t, ok := <-finals:
			if !ok {
				return strings.Join(parts, " ")
			}
			if s := strings.TrimSpace(t.Text); s != "" {
				parts = append(parts, s)
			}
			if t.SpeechFinal && len(parts) > 0 {
				return strings.Join(parts, " ")
			}
		case <-ctx.Done():
			return strings.Join(parts, " ")
		}
	}
}
