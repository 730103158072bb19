package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MrWong99/nova/internal/progress"
	"github.com/MrWong99/nova/internal/progress/sqlite"
	"github.com/MrWong99/nova/internal/progress/storetest"
)

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) progress.Store {
		return openStore(t, filepath.Join(t.TempDir(), "nova.db"))
	})
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "nova.db")

	s, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SaveProfile(ctx, progress.Profile{ID: "u1", Name: "Sarah", Points: 100}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if err := s.ApplyDelta(ctx, "u1", 10); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Migrations are idempotent.
	s2 := openStore(t, path)
	p, err := s2.CurrentProfile(ctx)
	if err != nil {
		t.Fatalf("CurrentProfile: %v", err)
	}
	if p.Points != 110 {
		t.Errorf("points = %d, want 110", p.Points)
	}
}
