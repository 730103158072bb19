// Package tutor implements the practice session lifecycle: listen for one
// utterance, grade it, adjust the score, log mistakes and speak a reply.
//
// The [Controller] is a single state machine driven by one user action,
// [Controller.Toggle], and by completions of the background capture and
// analysis work it starts. Every transition goes through [Transition]; events
// that are not valid in the current state are dropped.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/nova/internal/observe"
	"github.com/MrWong99/nova/internal/progress"
	"github.com/MrWong99/nova/pkg/audio"
)

// User-facing messages.
const (
	msgProbeDenied   = "Microphone access denied. Please allow microphone access to practice speaking."
	msgCaptureDenied = "Microphone access denied. Please enable it in your system settings."
	msgNoSpeech      = "No speech detected. Try speaking again."
	msgCaptureOther  = "Error: %s. Please try again."
	msgThinking      = "Nova is thinking..."
	msgAnalysisFail  = "Sorry, I had trouble understanding. Try again?"
)

// Config wires a [Controller] to its collaborators.
type Config struct {
	Recognizer  Recognizer
	Analyzer    Analyzer
	Synthesizer Synthesizer
	Player      Player
	Scores      ScoreStore
	Mistakes    MistakeStore

	// UserID scopes score and mistake updates.
	UserID string

	// Sink receives state changes. Optional.
	Sink Sink

	// Clock and NewID stamp mistakes. Nil uses time.Now and uuid.
	Clock func() time.Time
	NewID func() string
}

func (c Config) validate() error {
	var errs []error
	if c.Recognizer == nil {
		errs = append(errs, errors.New("recognizer is required"))
	}
	if c.Analyzer == nil {
		errs = append(errs, errors.New("analyzer is required"))
	}
	if c.Synthesizer == nil {
		errs = append(errs, errors.New("synthesizer is required"))
	}
	if c.Player == nil {
		errs = append(errs, errors.New("player is required"))
	}
	if c.Scores == nil {
		errs = append(errs, errors.New("score store is required"))
	}
	if c.Mistakes == nil {
		errs = append(errs, errors.New("mistake store is required"))
	}
	if c.UserID == "" {
		errs = append(errs, errors.New("user id is required"))
	}
	return errors.Join(errs...)
}

// Controller owns the session state. All methods are safe for concurrent use.
type Controller struct {
	cfg  Config
	sink Sink

	mu      sync.Mutex
	snap    Snapshot
	probing bool
	// gen identifies the current listen cycle; results from older cycles
	// are ignored.
	gen          uint64
	cancelListen context.CancelFunc

	wg sync.WaitGroup
}

// New returns an idle Controller.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("tutor: %w", err)
	}
	sink := cfg.Sink
	if sink == nil {
		sink = nopSink{}
	}
	return &Controller{cfg: cfg, sink: sink}, nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Wait blocks until the background capture and analysis work started by
// earlier Toggle calls has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Toggle is the record button. While idle it probes the microphone and starts
// listening; while listening it stops capture without analysis. It returns
// ErrBusy while analyzing or speaking. Capture and permission failures are
// reported through the snapshot, not the returned error.
//
// ctx bounds the whole cycle started by this call, including analysis and
// playback.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	if c.snap.State.Busy() || c.probing {
		c.mu.Unlock()
		return ErrBusy
	}

	if c.snap.State == Listening {
		c.fire(EventStop)
		c.gen++
		cancel := c.cancelListen
		c.cancelListen = nil
		c.publish()
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	}

	c.snap = Snapshot{State: Idle}
	c.probing = true
	c.publish()
	c.mu.Unlock()

	err := c.cfg.Recognizer.Permit(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.probing = false

	if err != nil {
		c.fire(EventDenied)
		if errors.Is(err, ErrPermissionDenied) {
			c.snap.Error = ErrorPermission
			c.snap.Feedback = msgProbeDenied
		} else {
			c.snap.Error = ErrorOther
			c.snap.Feedback = fmt.Sprintf(msgCaptureOther, err)
		}
		slog.Warn("tutor: microphone probe failed", "err", err)
		c.publish()
		return nil
	}

	c.fire(EventStart)
	c.gen++
	listenCtx, cancel := context.WithCancel(ctx)
	c.cancelListen = cancel
	c.publish()

	c.wg.Add(1)
	go c.listen(ctx, listenCtx, c.gen)
	return nil
}

// listen runs one capture and, on a transcript, the analysis pipeline.
func (c *Controller) listen(ctx, listenCtx context.Context, gen uint64) {
	defer c.wg.Done()

	text, err := c.cfg.Recognizer.Listen(listenCtx)
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if gen != c.gen || c.snap.State != Listening {
		c.mu.Unlock()
		return
	}
	cancel := c.cancelListen
	c.cancelListen = nil
	defer cancel()

	switch {
	case err == nil && text != "":
		c.fire(EventResult)
		c.snap.Transcript = text
		c.snap.Feedback = msgThinking
		c.publish()
		c.mu.Unlock()
		c.analyze(ctx, text)
		return

	case listenCtx.Err() != nil:
		c.fire(EventCancelled)

	case errors.Is(err, ErrPermissionDenied):
		c.fire(EventCaptureFailed)
		c.snap.Error = ErrorPermission
		c.snap.Feedback = msgCaptureDenied

	case err == nil || errors.Is(err, ErrNoSpeech):
		c.fire(EventCaptureFailed)
		c.snap.Feedback = msgNoSpeech

	default:
		slog.Warn("tutor: capture failed", "err", err)
		c.fire(EventCaptureFailed)
		c.snap.Error = ErrorOther
		c.snap.Feedback = fmt.Sprintf(msgCaptureOther, err)
	}
	c.publish()
	c.mu.Unlock()
}

// analyze grades text, records the outcome and speaks the reply. Once
// started it runs to completion; Toggle is rejected meanwhile.
func (c *Controller) analyze(ctx context.Context, text string) {
	ctx, span := observe.StartSpan(ctx, "tutor.analyze")
	defer span.End()
	log := observe.Logger(ctx)

	result, err := c.cfg.Analyzer.Analyze(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis failed")
		log.Warn("tutor: analysis failed", "err", err)
		c.failAnalysis()
		return
	}

	verdict := Decide(result)
	span.SetAttributes(attribute.String("tutor.outcome", string(verdict.Outcome)))

	// The mistake is written first so that a failed append leaves the
	// score untouched.
	if verdict.Mistake != nil {
		draft := *verdict.Mistake
		draft.OriginalText = text
		m := progress.NewMistake(draft, c.cfg.Clock, c.cfg.NewID)
		if err := c.cfg.Mistakes.AppendMistake(ctx, c.cfg.UserID, m); err != nil {
			span.RecordError(err)
			log.Error("tutor: append mistake", "err", err)
			c.failAnalysis()
			return
		}
	}
	if err := c.cfg.Scores.ApplyDelta(ctx, c.cfg.UserID, verdict.Delta); err != nil {
		span.RecordError(err)
		log.Error("tutor: apply score delta", "delta", verdict.Delta, "err", err)
	}

	c.mu.Lock()
	c.snap.Feedback = verdict.Message
	c.sink.Scored(verdict)
	c.publish()
	c.mu.Unlock()

	clip, ok := c.synthesize(ctx, result.Response)

	c.mu.Lock()
	if !ok || clip.Empty() {
		c.fire(EventNoAudio)
		c.publish()
		c.mu.Unlock()
		return
	}
	c.fire(EventAudioReady)
	c.publish()
	c.mu.Unlock()

	if err := c.cfg.Player.Play(ctx, clip); err != nil {
		log.Warn("tutor: playback failed", "err", err)
	}

	c.mu.Lock()
	c.fire(EventPlaybackEnded)
	c.publish()
	c.mu.Unlock()
}

func (c *Controller) synthesize(ctx context.Context, text string) (audio.Clip, bool) {
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, false
	}
	return c.cfg.Synthesizer.Synthesize(ctx, text)
}

func (c *Controller) failAnalysis() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fire(EventAnalysisFailed)
	c.snap.Feedback = msgAnalysisFail
	c.publish()
}

// fire applies ev to the current state. Must hold c.mu.
func (c *Controller) fire(ev EventKind) bool {
	to, ok := Transition(c.snap.State, ev)
	if !ok {
		slog.Debug("tutor: dropped event", "state", c.snap.State, "event", ev)
		return false
	}
	c.snap.State = to
	return true
}

// publish sends the snapshot to the sink. Must hold c.mu.
func (c *Controller) publish() {
	c.sink.StateChanged(c.snap)
}
