// Package progress holds the learner's profile, point score and mistake
// history, plus the stores that persist them.
//
// Scores only move through [ScoreStore.ApplyDelta], which clamps at zero, and
// mistakes only through [MistakeStore.AppendMistake], which prepends. Records
// are never edited or removed once written.
package progress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// StartingPoints is the balance of a freshly created profile.
const StartingPoints = 100

// ErrNoProfile is returned when no learner profile exists for the request.
var ErrNoProfile = errors.New("progress: no learner profile")

// MistakeType classifies a logged mistake.
type MistakeType string

const (
	MistakeGrammar  MistakeType = "grammar"
	MistakeLanguage MistakeType = "language"
)

// Label is the human-readable heading for the type.
func (t MistakeType) Label() string {
	switch t {
	case MistakeLanguage:
		return "Language Check"
	case MistakeGrammar:
		return "Grammar Check"
	default:
		return string(t)
	}
}

// Profile is the learner identity that scopes score and mistakes.
type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photoUrl"`
	Points   int    `json:"points"`
}

// NewProfile returns a profile with a fresh ID and [StartingPoints].
func NewProfile(name, email, photoURL string) Profile {
	return Profile{
		ID:       uuid.NewString(),
		Name:     name,
		Email:    email,
		PhotoURL: photoURL,
		Points:   StartingPoints,
	}
}

// Mistake is an immutable record of a deduction-causing utterance.
type Mistake struct {
	ID             string      `json:"id"`
	Timestamp      int64       `json:"timestamp"` // epoch milliseconds
	OriginalText   string      `json:"originalText"`
	CorrectedText  string      `json:"correctedText"`
	Feedback       string      `json:"feedback"`
	PointsDeducted int         `json:"pointsDeducted"`
	Type           MistakeType `json:"type"`
}

// Time returns Timestamp as a time.Time.
func (m Mistake) Time() time.Time { return time.UnixMilli(m.Timestamp) }

// Draft is a mistake before it receives its identity.
type Draft struct {
	OriginalText   string
	CorrectedText  string
	Feedback       string
	PointsDeducted int
	Type           MistakeType
}

// NewMistake stamps d with an ID from newID and the current time from clock.
// Nil functions default to uuid.NewString and time.Now.
func NewMistake(d Draft, clock func() time.Time, newID func() string) Mistake {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return Mistake{
		ID:             newID(),
		Timestamp:      clock().UnixMilli(),
		OriginalText:   d.OriginalText,
		CorrectedText:  d.CorrectedText,
		Feedback:       d.Feedback,
		PointsDeducted: d.PointsDeducted,
		Type:           d.Type,
	}
}

// ClampPoints applies delta to points with a floor of zero.
func ClampPoints(points, delta int) int {
	return max(0, points+delta)
}

// Summary aggregates a mistake list.
type Summary struct {
	Total          int
	Grammar        int
	Language       int
	PointsDeducted int
}

// Summarize counts mistakes per type and totals the deducted points.
func Summarize(mistakes []Mistake) Summary {
	var s Summary
	for _, m := range mistakes {
		s.Total++
		s.PointsDeducted += m.PointsDeducted
		switch m.Type {
		case MistakeGrammar:
			s.Grammar++
		case MistakeLanguage:
			s.Language++
		}
	}
	return s
}

// ProfileStore manages the signed-in learner.
type ProfileStore interface {
	// CurrentProfile returns the signed-in learner or ErrNoProfile.
	CurrentProfile(ctx context.Context) (Profile, error)

	// SaveProfile creates or replaces p and makes it the signed-in learner.
	SaveProfile(ctx context.Context, p Profile) error

	// DeleteProfile signs the current learner out and discards the profile.
	// Logged mistakes are kept.
	DeleteProfile(ctx context.Context) error
}

// ScoreStore mutates the point balance.
type ScoreStore interface {
	// ApplyDelta adds delta to the learner's points, clamped at zero.
	ApplyDelta(ctx context.Context, userID string, delta int) error
}

// MistakeStore holds the mistake history.
type MistakeStore interface {
	// AppendMistake records m as the newest entry.
	AppendMistake(ctx context.Context, userID string, m Mistake) error

	// Mistakes returns up to limit records, newest first. limit <= 0 means all.
	Mistakes(ctx context.Context, userID string, limit int) ([]Mistake, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	ProfileStore
	ScoreStore
	MistakeStore
	Close() error
}
