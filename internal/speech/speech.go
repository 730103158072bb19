// Package speech renders the tutor's spoken replies through a tts.Provider.
package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/nova/internal/observe"
	"github.com/MrWong99/nova/internal/tutor"
	"github.com/MrWong99/nova/pkg/audio"
	"github.com/MrWong99/nova/pkg/provider/tts"
	"github.com/MrWong99/nova/pkg/types"
)

var _ tutor.Synthesizer = (*Synthesizer)(nil)

// Option configures a [Synthesizer].
type Option func(*Synthesizer)

// WithPrefix prepends prefix to every reply, e.g. "Say this naturally: " for
// instruction-following voices.
func WithPrefix(prefix string) Option {
	return func(s *Synthesizer) { s.prefix = prefix }
}

// WithMetrics records latency on m instead of observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Synthesizer) { s.metrics = m }
}

// Synthesizer implements tutor.Synthesizer. Every failure is soft: it is
// logged and reported as "no audio".
type Synthesizer struct {
	provider tts.Provider
	voice    types.VoiceProfile
	prefix   string
	metrics  *observe.Metrics
}

// New returns a Synthesizer speaking with voice.
func New(p tts.Provider, voice types.VoiceProfile, opts ...Option) *Synthesizer {
	s := &Synthesizer{provider: p, voice: voice}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Synthesize renders text into a single clip. ok is false when nothing could
// be produced.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (audio.Clip, bool) {
	ctx, span := observe.StartSpan(ctx, "speech.Synthesize")
	defer span.End()

	start := time.Now()
	clip, err := tts.Synthesize(ctx, s.provider, s.prefix+text, s.voice)
	s.metrics.RecordProviderCall(ctx, s.metrics.TTSDuration, s.voice.Provider, "tts", start, err)
	if err != nil {
		span.RecordError(err)
		log := observe.Logger(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			log.Debug("speech: synthesis cancelled")
		case errors.Is(err, tts.ErrNoAudio):
			log.Warn("speech: provider returned no audio", "voice", s.voice.ID)
		default:
			log.Warn("speech: synthesis failed", "voice", s.voice.ID, "err", fmt.Errorf("speech: %w", err))
		}
		return audio.Clip{}, false
	}
	return clip, true
}
