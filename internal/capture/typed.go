package capture

import (
	"context"
	"strings"

	"github.com/MrWong99/nova/internal/tutor"
)

var _ tutor.Recognizer = (*Typed)(nil)

// Typed is a Recognizer fed with lines of text, for practice without a
// microphone.
type Typed struct {
	lines chan string
}

// NewTyped returns a Typed recognizer.
func NewTyped() *Typed {
	return &Typed{lines: make(chan string, 1)}
}

// Feed delivers line to the pending or next Listen call. It returns false if a
// line is already waiting.
func (t *Typed) Feed(line string) bool {
	select {
	case t.lines <- line:
		return true
	default:
		return false
	}
}

// Permit always succeeds.
func (t *Typed) Permit(context.Context) error { return nil }

// Listen waits for the next line. A blank line is reported as no speech.
func (t *Typed) Listen(ctx context.Context) (string, error) {
	select {
	case line := <-t.lines:
		line = strings.TrimSpace(line)
		if line == "" {
			return "", tutor.ErrNoSpeech
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
