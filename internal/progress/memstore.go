package progress

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrDuplicateMistake is returned when a mistake ID is appended twice.
var ErrDuplicateMistake = errors.New("progress: duplicate mistake id")

var _ Store = (*MemStore)(nil)

// document is the complete persisted state: the signed-in learner and every
// learner's mistake history, newest first.
type document struct {
	User     *Profile             `json:"user"`
	Mistakes map[string][]Mistake `json:"mistakes"`
}

func (d *document) profileFor(userID string) (*Profile, error) {
	if d.User == nil || d.User.ID != userID {
		return nil, ErrNoProfile
	}
	return d.User, nil
}

func (d *document) appendMistake(userID string, m Mistake) error {
	if d.Mistakes == nil {
		d.Mistakes = make(map[string][]Mistake)
	}
	list := d.Mistakes[userID]
	if slices.ContainsFunc(list, func(x Mistake) bool { return x.ID == m.ID }) {
		return ErrDuplicateMistake
	}
	d.Mistakes[userID] = append([]Mistake{m}, list...)
	return nil
}

func (d *document) mistakes(userID string, limit int) []Mistake {
	list := d.Mistakes[userID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return slices.Clone(list)
}

// MemStore is a thread-safe, in-memory implementation of [Store].
// The zero value is ready to use.
type MemStore struct {
	mu  sync.RWMutex
	doc document
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{}
}

// CurrentProfile implements [ProfileStore.CurrentProfile].
func (s *MemStore) CurrentProfile(ctx context.Context) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc.User == nil {
		return Profile{}, ErrNoProfile
	}
	return *s.doc.User, nil
}

// SaveProfile implements [ProfileStore.SaveProfile].
func (s *MemStore) SaveProfile(ctx context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.User = &p
	return nil
}

// DeleteProfile implements [ProfileStore.DeleteProfile].
func (s *MemStore) DeleteProfile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.User = nil
	return nil
}

// ApplyDelta implements [ScoreStore.ApplyDelta].
func (s *MemStore) ApplyDelta(ctx context.Context, userID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.doc.profileFor(userID)
	if err != nil {
		return err
	}
	p.Points = ClampPoints(p.Points, delta)
	return nil
}

// AppendMistake implements [MistakeStore.AppendMistake].
func (s *MemStore) AppendMistake(ctx context.Context, userID string, m Mistake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.appendMistake(userID, m)
}

// Mistakes implements [MistakeStore.Mistakes].
func (s *MemStore) Mistakes(ctx context.Context, userID string, limit int) ([]Mistake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.mistakes(userID, limit), nil
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }
