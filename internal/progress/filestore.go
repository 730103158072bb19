package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

var _ Store = (*FileStore)(nil)

// FileStore persists the learner and mistake history as one JSON document:
//
//	{"user": {...}, "mistakes": {"<user id>": [newest, ..., oldest]}}
//
// Every mutation rewrites the file through a temporary file and a rename, so
// a crash leaves either the old or the new document. Safe for concurrent use
// within one process.
type FileStore struct {
	mu   sync.Mutex
	path string
	doc  document
}

// OpenFileStore loads path, or starts empty if the file does not exist.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("progress: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("progress: decode %s: %w", path, err)
	}
	return s, nil
}

// update applies fn to a copy of the document and persists it. The in-memory
// state only changes when the write succeeds.
func (s *FileStore) update(fn func(d *document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.doc = next
	return nil
}

func (s *FileStore) write(d document) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("progress: marshal: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("progress: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".nova-*.json")
	if err != nil {
		return fmt.Errorf("progress: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("progress: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("progress: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("progress: rename: %w", err)
	}
	return nil
}

func (d document) clone() document {
	out := document{}
	if d.User != nil {
		u := *d.User
		out.User = &u
	}
	if d.Mistakes != nil {
		out.Mistakes = make(map[string][]Mistake, len(d.Mistakes))
		for k, v := range d.Mistakes {
			out.Mistakes[k] = slices.Clone(v)
		}
	}
	return out
}

// CurrentProfile implements [ProfileStore.CurrentProfile].
func (s *FileStore) CurrentProfile(ctx context.Context) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.User == nil {
		return Profile{}, ErrNoProfile
	}
	return *s.doc.User, nil
}

// SaveProfile implements [ProfileStore.SaveProfile].
func (s *FileStore) SaveProfile(ctx context.Context, p Profile) error {
	return s.update(func(d *document) error {
		d.User = &p
		return nil
	})
}

// DeleteProfile implements [ProfileStore.DeleteProfile].
func (s *FileStore) DeleteProfile(ctx context.Context) error {
	return s.update(func(d *document) error {
		d.User = nil
		return nil
	})
}

// ApplyDelta implements [ScoreStore.ApplyDelta].
func (s *FileStore) ApplyDelta(ctx context.Context, userID string, delta int) error {
	return s.update(func(d *document) error {
		p, err := d.profileFor(userID)
		if err != nil {
			return err
		}
		p.Points = ClampPoints(p.Points, delta)
		return nil
	})
}

// AppendMistake implements [MistakeStore.AppendMistake].
func (s *FileStore) AppendMistake(ctx context.Context, userID string, m Mistake) error {
	return s.update(func(d *document) error {
		return d.appendMistake(userID, m)
	})
}

// Mistakes implements [MistakeStore.Mistakes].
func (s *FileStore) Mistakes(ctx context.Context, userID string, limit int) ([]Mistake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.mistakes(userID, limit), nil
}

// Close is a no-op; every mutation is already on disk.
func (s *FileStore) Close() error { return nil }
