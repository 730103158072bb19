package tutor

import (
	"context"
	"errors"

	"github.com/MrWong99/nova/internal/progress"
	"github.com/MrWong99/nova/pkg/audio"
)

var (
	// ErrBusy is returned by Toggle while analyzing or speaking.
	ErrBusy = errors.New("tutor: busy")

	// ErrPermissionDenied means microphone access was refused.
	ErrPermissionDenied = errors.New("tutor: microphone permission denied")

	// ErrNoSpeech means capture finished without a transcript.
	ErrNoSpeech = errors.New("tutor: no speech detected")
)

// Recognizer captures one utterance.
type Recognizer interface {
	// Permit probes microphone access before listening starts.
	Permit(ctx context.Context) error

	// Listen blocks until a final transcript, an error, or ctx cancellation.
	// Cancellation is a user stop and is never reported as a failure.
	Listen(ctx context.Context) (string, error)
}

// Analyzer grades one utterance in a single attempt.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (AnalysisResult, error)
}

// Synthesizer renders the spoken reply. ok is false when no audio was
// produced; that is a soft failure.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (clip audio.Clip, ok bool)
}

// Player plays a clip to completion and returns exactly once.
type Player = audio.Player

// ScoreStore applies signed point deltas, clamped at zero.
type ScoreStore interface {
	ApplyDelta(ctx context.Context, userID string, delta int) error
}

// MistakeStore appends one immutable record, newest first.
type MistakeStore interface {
	AppendMistake(ctx context.Context, userID string, m progress.Mistake) error
}

// Sink observes the controller. Calls are serialized and made while the
// controller lock is held, so a Sink must not call back into the Controller.
type Sink interface {
	StateChanged(s Snapshot)
	Scored(v Verdict)
}

type nopSink struct{}

func (nopSink) StateChanged(Snapshot) {}
func (nopSink) Scored(Verdict)        {}

// Sinks fans out to several sinks in order.
type Sinks []Sink

func (s Sinks) StateChanged(snap Snapshot) {
	for _, sink := range s {
		sink.StateChanged(snap)
	}
}

func (s Sinks) Scored(v Verdict) {
	for _, sink := range s {
		sink.Scored(v)
	}
}
