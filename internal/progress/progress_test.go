package progress_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/nova/internal/progress"
	"github.com/MrWong99/nova/internal/progress/storetest"
)

func TestMemStore(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) progress.Store { return progress.NewMemStore() })
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) progress.Store {
		s, err := progress.OpenFileStore(filepath.Join(t.TempDir(), "nova.json"))
		if err != nil {
			t.Fatalf("OpenFileStore: %v", err)
		}
		return s
	})
}

func TestFileStore_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "nova.json")

	s, err := progress.OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	p := progress.Profile{ID: "u1", Name: "Sarah", Points: 100}
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if err := s.ApplyDelta(ctx, "u1", -10); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	m := progress.Mistake{ID: "m1", Timestamp: 42, OriginalText: "I are", Type: progress.MistakeGrammar, PointsDeducted: 10}
	if err := s.AppendMistake(ctx, "u1", m); err != nil {
		t.Fatalf("AppendMistake: %v", err)
	}

	reopened, err := progress.OpenFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.CurrentProfile(ctx)
	if err != nil {
		t.Fatalf("CurrentProfile: %v", err)
	}
	if got.Points != 90 {
		t.Errorf("points = %d, want 90", got.Points)
	}
	ms, _ := reopened.Mistakes(ctx, "u1", 0)
	if len(ms) != 1 || ms[0] != m {
		t.Errorf("mistakes = %+v", ms)
	}

	// The on-disk shape keeps the localStorage field names.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var raw struct {
		User     map[string]any              `json:"user"`
		Mistakes map[string][]map[string]any `json:"mistakes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw.User["photoUrl"] == nil {
		t.Error("user.photoUrl missing from document")
	}
	if raw.Mistakes["u1"][0]["correctedText"] == nil || raw.Mistakes["u1"][0]["pointsDeducted"] != float64(10) {
		t.Errorf("mistake fields = %v", raw.Mistakes["u1"][0])
	}
}

func TestFileStore_FailedWriteKeepsState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "nova.json")

	s, err := progress.OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	if err := s.SaveProfile(ctx, progress.Profile{ID: "u1", Points: 50}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	// Unknown users fail before any write happens.
	if err := s.ApplyDelta(ctx, "u2", 10); err == nil {
		t.Fatal("expected ErrNoProfile")
	}
	got, _ := s.CurrentProfile(ctx)
	if got.Points != 50 {
		t.Errorf("points = %d, want 50", got.Points)
	}
}

func TestOpenFileStore_Corrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nova.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := progress.OpenFileStore(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestOpenFileStore_Empty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nova.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := progress.OpenFileStore(path); err != nil {
		t.Fatalf("empty file: %v", err)
	}
}

func TestNewMistake(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := progress.NewMistake(progress.Draft{
		OriginalText:   "I are happy",
		CorrectedText:  "I am happy",
		Feedback:       "Subject-verb agreement",
		PointsDeducted: 10,
		Type:           progress.MistakeGrammar,
	}, func() time.Time { return now }, func() string { return "fixed-id" })

	if m.ID != "fixed-id" {
		t.Errorf("ID = %q", m.ID)
	}
	if m.Timestamp != now.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", m.Timestamp, now.UnixMilli())
	}
	if !m.Time().Equal(now) {
		t.Errorf("Time() = %v", m.Time())
	}
	if m.CorrectedText != "I am happy" || m.PointsDeducted != 10 || m.Type != progress.MistakeGrammar {
		t.Errorf("fields not copied: %+v", m)
	}
}

func TestNewMistake_DefaultsAreUnique(t *testing.T) {
	t.Parallel()
	a := progress.NewMistake(progress.Draft{}, nil, nil)
	b := progress.NewMistake(progress.Draft{}, nil, nil)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids %q and %q must be non-empty and distinct", a.ID, b.ID)
	}
	if a.Timestamp == 0 {
		t.Error("timestamp not set")
	}
}

func TestNewProfile(t *testing.T) {
	t.Parallel()
	p := progress.NewProfile("Sarah", "sarah@example.com", "")
	if p.Points != progress.StartingPoints || p.ID == "" || p.Name != "Sarah" {
		t.Errorf("NewProfile = %+v", p)
	}
}

func TestClampPoints(t *testing.T) {
	t.Parallel()
	tests := []struct{ points, delta, want int }{
		{5, -10, 0},
		{0, -10, 0},
		{100, 10, 110},
		{10, -10, 0},
		{20, -10, 10},
	}
	for _, tt := range tests {
		if got := progress.ClampPoints(tt.points, tt.delta); got != tt.want {
			t.Errorf("ClampPoints(%d, %d) = %d, want %d", tt.points, tt.delta, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	got := progress.Summarize([]progress.Mistake{
		{Type: progress.MistakeGrammar, PointsDeducted: 10},
		{Type: progress.MistakeLanguage, PointsDeducted: 10},
		{Type: progress.MistakeGrammar, PointsDeducted: 10},
	})
	want := progress.Summary{Total: 3, Grammar: 2, Language: 1, PointsDeducted: 30}
	if got != want {
		t.Errorf("Summarize = %+v, want %+v", got, want)
	}
	if (progress.Summarize(nil) != progress.Summary{}) {
		t.Error("Summarize(nil) should be zero")
	}
}

func TestMistakeTypeLabel(t *testing.T) {
	t.Parallel()
	if progress.MistakeLanguage.Label() != "Language Check" || progress.MistakeGrammar.Label() != "Grammar Check" {
		t.Error("unexpected labels")
	}
}
