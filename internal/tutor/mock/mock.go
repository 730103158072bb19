// Package mock provides test doubles for the tutor collaborator interfaces.
//
// Each double records its calls and can be gated so tests can observe the
// controller while a stage is in flight:
//
//	an := &mock.Analyzer{Gate: make(chan struct{})}
//	// ... controller is now Analyzing ...
//	close(an.Gate)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/nova/internal/tutor"
	"github.com/MrWong99/nova/pkg/audio"
)

// Outcome is one scripted Listen result.
type Outcome struct {
	Text string
	Err  error
}

// Recognizer is a mock implementation of tutor.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// PermitErr, if non-nil, is returned by Permit.
	PermitErr error

	// Outcomes feeds Listen. Listen blocks until an outcome arrives or ctx
	// is cancelled, in which case it returns ctx.Err().
	Outcomes chan Outcome

	// ListenFunc, if set, replaces the Outcomes behaviour.
	ListenFunc func(ctx context.Context) (string, error)

	permitCalls int
	listenCalls int
}

// NewRecognizer returns a Recognizer with a buffered Outcomes channel.
func NewRecognizer() *Recognizer {
	return &Recognizer{Outcomes: make(chan Outcome, 4)}
}

// Permit records the call and returns PermitErr.
func (r *Recognizer) Permit(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.permitCalls++
	return r.PermitErr
}

// Listen records the call and returns the next scripted outcome.
func (r *Recognizer) Listen(ctx context.Context) (string, error) {
	r.mu.Lock()
	r.listenCalls++
	fn := r.ListenFunc
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	select {
	case o := <-r.Outcomes:
		return o.Text, o.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Calls returns the number of Permit and Listen calls.
func (r *Recognizer) Calls() (permit, listen int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.permitCalls, r.listenCalls
}

// Analyzer is a mock implementation of tutor.Analyzer.
type Analyzer struct {
	mu sync.Mutex

	Result tutor.AnalysisResult
	Err    error

	// Gate, if non-nil, makes Analyze wait until it is closed.
	Gate chan struct{}

	// Entered, if non-nil, receives the text when Analyze is called.
	Entered chan string

	calls []string
}

// Analyze records text, waits on Gate and returns Result, Err.
func (a *Analyzer) Analyze(ctx context.Context, text string) (tutor.AnalysisResult, error) {
	a.mu.Lock()
	a.calls = append(a.calls, text)
	gate, entered := a.Gate, a.Entered
	res, err := a.Result, a.Err
	a.mu.Unlock()

	if entered != nil {
		entered <- text
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return tutor.AnalysisResult{}, ctx.Err()
		}
	}
	return res, err
}

// Calls returns the texts passed to Analyze.
func (a *Analyzer) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// Synthesizer is a mock implementation of tutor.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	Clip audio.Clip
	OK   bool

	calls []string
}

// Synthesize records text and returns Clip, OK.
func (s *Synthesizer) Synthesize(_ context.Context, text string) (audio.Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, text)
	return s.Clip, s.OK
}

// Calls returns the texts passed to Synthesize.
func (s *Synthesizer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Player is a mock implementation of tutor.Player.
type Player struct {
	mu sync.Mutex

	// Err is returned by Play.
	Err error

	// Gate, if non-nil, makes Play wait until it is closed.
	Gate chan struct{}

	// Entered, if non-nil, is signalled when Play starts.
	Entered chan struct{}

	clips []audio.Clip
}

// Play records the clip, waits on Gate and returns Err.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	p.mu.Lock()
	p.clips = append(p.clips, clip)
	gate, entered, err := p.Gate, p.Entered, p.Err
	p.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Clips returns the clips passed to Play.
func (p *Player) Clips() []audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audio.Clip(nil), p.clips...)
}

// Sink records everything the controller publishes.
type Sink struct {
	mu       sync.Mutex
	states   []tutor.Snapshot
	verdicts []tutor.Verdict
}

// StateChanged implements tutor.Sink.
func (s *Sink) StateChanged(snap tutor.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, snap)
}

// Scored implements tutor.Sink.
func (s *Sink) Scored(v tutor.Verdict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts = append(s.verdicts, v)
}

// States returns the published snapshots in order.
func (s *Sink) States() []tutor.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tutor.Snapshot(nil), s.states...)
}

// Verdicts returns the published verdicts in order.
func (s *Sink) Verdicts() []tutor.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tutor.Verdict(nil), s.verdicts...)
}

var (
	_ tutor.Recognizer  = (*Recognizer)(nil)
	_ tutor.Analyzer    = (*Analyzer)(nil)
	_ tutor.Synthesizer = (*Synthesizer)(nil)
	_ tutor.Player      = (*Player)(nil)
	_ tutor.Sink        = (*Sink)(nil)
)
