// Package storetest is a conformance suite for progress.Store implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/nova/internal/progress"
)

// Run exercises s against the progress.Store contract. newStore must return
// an empty store; it is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) progress.Store) {
	t.Helper()
	ctx := context.Background()

	learner := progress.Profile{ID: "u1", Name: "Sarah", Email: "sarah@example.com", Points: 100}

	t.Run("NoProfile", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.CurrentProfile(ctx); !errors.Is(err, progress.ErrNoProfile) {
			t.Fatalf("CurrentProfile on empty store: err = %v, want ErrNoProfile", err)
		}
		if err := s.ApplyDelta(ctx, "nobody", 10); !errors.Is(err, progress.ErrNoProfile) {
			t.Fatalf("ApplyDelta for unknown user: err = %v, want ErrNoProfile", err)
		}
	})

	t.Run("SaveAndDeleteProfile", func(t *testing.T) {
		s := newStore(t)
		if err := s.SaveProfile(ctx, learner); err != nil {
			t.Fatalf("SaveProfile: %v", err)
		}
		got, err := s.CurrentProfile(ctx)
		if err != nil {
			t.Fatalf("CurrentProfile: %v", err)
		}
		if got != learner {
			t.Errorf("CurrentProfile = %+v, want %+v", got, learner)
		}

		replacement := progress.Profile{ID: "u2", Name: "Rafi", Points: 100}
		if err := s.SaveProfile(ctx, replacement); err != nil {
			t.Fatalf("SaveProfile replacement: %v", err)
		}
		if got, _ := s.CurrentProfile(ctx); got.ID != "u2" {
			t.Errorf("current after replace = %q, want u2", got.ID)
		}

		if err := s.DeleteProfile(ctx); err != nil {
			t.Fatalf("DeleteProfile: %v", err)
		}
		if _, err := s.CurrentProfile(ctx); !errors.Is(err, progress.ErrNoProfile) {
			t.Errorf("after DeleteProfile: err = %v, want ErrNoProfile", err)
		}
	})

	t.Run("ScoreClampsAtZero", func(t *testing.T) {
		s := newStore(t)
		p := learner
		p.Points = 5
		if err := s.SaveProfile(ctx, p); err != nil {
			t.Fatalf("SaveProfile: %v", err)
		}
		steps := []struct {
			delta int
			want  int
		}{
			{-10, 0},
			{-10, 0},
			{10, 10},
			{10, 20},
			{-10, 10},
		}
		for i, st := range steps {
			if err := s.ApplyDelta(ctx, p.ID, st.delta); err != nil {
				t.Fatalf("step %d ApplyDelta(%d): %v", i, st.delta, err)
			}
			got, err := s.CurrentProfile(ctx)
			if err != nil {
				t.Fatalf("step %d CurrentProfile: %v", i, err)
			}
			if got.Points != st.want {
				t.Errorf("step %d: points = %d, want %d", i, got.Points, st.want)
			}
		}
	})

	t.Run("MistakesNewestFirst", func(t *testing.T) {
		s := newStore(t)
		a := mistake("a", 1000, progress.MistakeGrammar)
		b := mistake("b", 2000, progress.MistakeLanguage)
		if err := s.AppendMistake(ctx, "u1", a); err != nil {
			t.Fatalf("AppendMistake a: %v", err)
		}
		if err := s.AppendMistake(ctx, "u1", b); err != nil {
			t.Fatalf("AppendMistake b: %v", err)
		}

		got, err := s.Mistakes(ctx, "u1", 0)
		if err != nil {
			t.Fatalf("Mistakes: %v", err)
		}
		if len(got) != 2 || got[0] != b || got[1] != a {
			t.Fatalf("Mistakes = %+v, want [b a]", got)
		}

		limited, err := s.Mistakes(ctx, "u1", 1)
		if err != nil {
			t.Fatalf("Mistakes limit 1: %v", err)
		}
		if len(limited) != 1 || limited[0].ID != "b" {
			t.Errorf("limited = %+v, want [b]", limited)
		}

		other, err := s.Mistakes(ctx, "u2", 0)
		if err != nil {
			t.Fatalf("Mistakes for u2: %v", err)
		}
		if len(other) != 0 {
			t.Errorf("u2 mistakes = %+v, want none", other)
		}
	})

	t.Run("DuplicateMistakeRejected", func(t *testing.T) {
		s := newStore(t)
		m := mistake("dup", 1000, progress.MistakeGrammar)
		if err := s.AppendMistake(ctx, "u1", m); err != nil {
			t.Fatalf("first AppendMistake: %v", err)
		}
		if err := s.AppendMistake(ctx, "u1", m); err == nil {
			t.Fatal("second AppendMistake with same id: expected error")
		}
		got, _ := s.Mistakes(ctx, "u1", 0)
		if len(got) != 1 {
			t.Errorf("len = %d after duplicate, want 1", len(got))
		}
	})

	t.Run("MistakesSurviveLogout", func(t *testing.T) {
		s := newStore(t)
		if err := s.SaveProfile(ctx, learner); err != nil {
			t.Fatalf("SaveProfile: %v", err)
		}
		if err := s.AppendMistake(ctx, learner.ID, mistake("m", 1, progress.MistakeGrammar)); err != nil {
			t.Fatalf("AppendMistake: %v", err)
		}
		if err := s.DeleteProfile(ctx); err != nil {
			t.Fatalf("DeleteProfile: %v", err)
		}
		got, _ := s.Mistakes(ctx, learner.ID, 0)
		if len(got) != 1 {
			t.Errorf("mistakes after logout = %d, want 1", len(got))
		}
	})

	t.Run("ManyMistakes", func(t *testing.T) {
		s := newStore(t)
		for i := range 25 {
			if err := s.AppendMistake(ctx, "u1", mistake(fmt.Sprintf("m%02d", i), int64(i), progress.MistakeGrammar)); err != nil {
				t.Fatalf("AppendMistake %d: %v", i, err)
			}
		}
		got, _ := s.Mistakes(ctx, "u1", 10)
		if len(got) != 10 || got[0].ID != "m24" || got[9].ID != "m15" {
			t.Errorf("first page = %v .. %v", got[0].ID, got[len(got)-1].ID)
		}
	})
}

func mistake(id string, ts int64, typ progress.MistakeType) progress.Mistake {
	return progress.Mistake{
		ID:             id,
		Timestamp:      ts,
		OriginalText:   "I are happy",
		CorrectedText:  "I am happy",
		Feedback:       "Subject-verb agreement",
		PointsDeducted: 10,
		Type:           typ,
	}
}
