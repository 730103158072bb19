package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/MrWong99/nova/internal/config"
	"github.com/MrWong99/nova/internal/progress"
	"github.com/MrWong99/nova/internal/tutor"
)

var _ tutor.Sink = (*Terminal)(nil)

// Terminal renders the practice session as plain text lines.
type Terminal struct {
	mu      sync.Mutex
	out     io.Writer
	name    string
	input   config.InputMode
	last    tutor.Snapshot
	partial string
}

// NewTerminal returns a renderer writing to out.
func NewTerminal(out io.Writer, tutorName string, input config.InputMode) *Terminal {
	return &Terminal{out: out, name: tutorName, input: input}
}

// StateChanged prints what differs from the previous snapshot.
func (t *Terminal) StateChanged(s tutor.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.Transcript != "" && s.Transcript != t.last.Transcript {
		fmt.Fprintf(t.out, "You said: %q\n", s.Transcript)
	}
	if s.Feedback != "" && s.Feedback != t.last.Feedback {
		fmt.Fprintf(t.out, "» %s\n", s.Feedback)
	}
	if s.State != t.last.State {
		t.partial = ""
		if hint := t.hint(s.State); hint != "" {
			fmt.Fprintln(t.out, hint)
		}
	}
	t.last = s
}

// Scored prints the correction for grammar mistakes.
func (t *Terminal) Scored(v tutor.Verdict) {
	if v.Outcome != tutor.OutcomeGrammar || v.Mistake == nil || v.Mistake.CorrectedText == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "  Better: %s\n", v.Mistake.CorrectedText)
}

// Partial prints an interim transcript while listening.
func (t *Terminal) Partial(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if text == "" || text == t.partial || t.last.State != tutor.Listening {
		return
	}
	t.partial = text
	fmt.Fprintf(t.out, "  … %s\n", text)
}

// Println writes one line, serialized with the session output.
func (t *Terminal) Println(a ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, a...)
}

// Prompt prints the idle hint.
func (t *Terminal) Prompt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.hint(tutor.Idle))
}

// Mistakes writes a mistake report.
func (t *Terminal) Mistakes(ms []progress.Mistake) {
	t.mu.Lock()
	defer t.mu.Unlock()
	WriteMistakes(t.out, ms)
}

// Profile writes the learner's score line.
func (t *Terminal) Profile(p progress.Profile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	WriteProfile(t.out, p)
}

func (t *Terminal) hint(s tutor.State) string {
	switch s {
	case tutor.Idle:
		if t.input == config.InputTyped {
			return "Type a sentence and press Enter (m: mistakes, s: score, q: quit)."
		}
		return "Press Enter to speak (m: mistakes, s: score, q: quit)."
	case tutor.Listening:
		if t.input == config.InputTyped {
			return "Listening... type your sentence."
		}
		return "Listening... press Enter to stop."
	case tutor.Speaking:
		return t.name + " is speaking..."
	}
	return ""
}

// WriteMistakes prints ms newest first followed by a per-type summary.
func WriteMistakes(w io.Writer, ms []progress.Mistake) {
	if len(ms) == 0 {
		fmt.Fprintln(w, "No mistakes yet. Keep practicing!")
		return
	}
	for _, m := range ms {
		fmt.Fprintf(w, "[%s] %s  -%d pts\n", m.Time().Format("2006-01-02 15:04"), m.Type.Label(), m.PointsDeducted)
		fmt.Fprintf(w, "  You said:  %s\n", m.OriginalText)
		fmt.Fprintf(w, "  Better:    %s\n", m.CorrectedText)
		if m.Feedback != "" {
			fmt.Fprintf(w, "  Feedback:  %s\n", m.Feedback)
		}
	}
	s := progress.Summarize(ms)
	fmt.Fprintf(w, "%d mistakes (%d grammar, %d language), %d points deducted\n",
		s.Total, s.Grammar, s.Language, s.PointsDeducted)
}

// WriteProfile prints the learner and their points.
func WriteProfile(w io.Writer, p progress.Profile) {
	if p.Email != "" {
		fmt.Fprintf(w, "%s <%s>: %d points\n", p.Name, p.Email, p.Points)
		return
	}
	fmt.Fprintf(w, "%s: %d points\n", p.Name, p.Points)
}
