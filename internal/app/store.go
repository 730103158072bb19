package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/nova/internal/config"
	"github.com/MrWong99/nova/internal/health"
	"github.com/MrWong99/nova/internal/progress"
	"github.com/MrWong99/nova/internal/progress/postgres"
	"github.com/MrWong99/nova/internal/progress/sqlite"
	"github.com/MrWong99/nova/pkg/audio"
)

// DefaultLearnerName names the profile created when none is stored.
const DefaultLearnerName = "Learner"

// OpenStore opens the progress store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (progress.Store, error) {
	var (
		s   progress.Store
		err error
	)
	switch cfg.Driver {
	case config.StoreMemory, "":
		return progress.NewMemStore(), nil
	case config.StoreFile:
		s, err = openAs(progress.OpenFileStore(cfg.Path))
	case config.StoreSQLite:
		s, err = openAs(sqlite.Open(ctx, cfg.Path))
	case config.StorePostgres:
		s, err = openAs(postgres.NewStore(ctx, cfg.DSN))
	default:
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("app: open %s store: %w", cfg.Driver, err)
	}
	return s, nil
}

// openAs keeps a failed constructor's typed nil out of the interface.
func openAs[S progress.Store](s S, err error) (progress.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// StoreChecker returns a readiness probe for s. Stores with a Ping method are
// pinged; the rest must answer a profile lookup.
func StoreChecker(s progress.Store) health.Checker {
	return health.Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			if p, ok := s.(interface{ Ping(context.Context) error }); ok {
				return p.Ping(ctx)
			}
			_, err := s.CurrentProfile(ctx)
			if errors.Is(err, progress.ErrNoProfile) {
				return nil
			}
			return err
		},
	}
}

// EnsureProfile returns the stored learner profile, creating one from
// learner when none exists yet.
func EnsureProfile(ctx context.Context, s progress.ProfileStore, learner config.LearnerConfig) (progress.Profile, error) {
	p, err := s.CurrentProfile(ctx)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, progress.ErrNoProfile) {
		return progress.Profile{}, fmt.Errorf("app: load profile: %w", err)
	}

	name := learner.Name
	if name == "" {
		name = DefaultLearnerName
	}
	p = progress.NewProfile(name, learner.Email, learner.PhotoURL)
	if err := s.SaveProfile(ctx, p); err != nil {
		return progress.Profile{}, fmt.Errorf("app: save profile: %w", err)
	}
	slog.Info("created learner profile", "id", p.ID, "name", p.Name, "points", p.Points)
	return p, nil
}

// NewPlayer returns the player for audio.player: "wav:<dir>" writes each clip to
// a WAV file in dir, anything else is a command fed raw PCM.
func NewPlayer(name string) (audio.Player, error) {
	if dir, ok := strings.CutPrefix(name, "wav:"); ok {
		sink, err := audio.NewWAVSink(dir)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	return audio.NewCommandPlayer(name), nil
}
