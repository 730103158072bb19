// Package app wires the Nova subsystems into a running practice session.
//
// The App struct owns the full lifecycle: New opens the progress store,
// ensures a learner profile and builds the tutor controller with its capture,
// grading, speech and playback collaborators. Run drives the terminal loop
// and, when configured, the diagnostics HTTP server. Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithRecognizer, WithPlayer, etc.). When an option is not provided, New
// creates the real implementation from the config.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/nova/internal/analysis"
	"github.com/MrWong99/nova/internal/capture"
	"github.com/MrWong99/nova/internal/config"
	"github.com/MrWong99/nova/internal/health"
	"github.com/MrWong99/nova/internal/observe"
	"github.com/MrWong99/nova/internal/progress"
	"github.com/MrWong99/nova/internal/speech"
	"github.com/MrWong99/nova/internal/tutor"
	"github.com/MrWong99/nova/pkg/audio"
	"github.com/MrWong99/nova/pkg/types"
)

// mistakesShown caps the list printed by the "m" key.
const mistakesShown = 10

// errQuit ends Run without an error.
var errQuit = errors.New("app: quit")

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	store      progress.Store
	profile    progress.Profile
	recognizer tutor.Recognizer
	typed      *capture.Typed
	analyzer   tutor.Analyzer
	player     audio.Player
	metrics    *observe.Metrics
	telemetry  *observe.Telemetry
	controller *tutor.Controller
	term       *Terminal
	out        io.Writer

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a progress store instead of opening one from config. The
// App does not close an injected store.
func WithStore(s progress.Store) Option {
	return func(a *App) { a.store = s }
}

// WithRecognizer injects the utterance source instead of the microphone or
// typed input selected by config.
func WithRecognizer(r tutor.Recognizer) Option {
	return func(a *App) { a.recognizer = r }
}

// WithAnalyzer injects the grader instead of building one on the LLM provider.
func WithAnalyzer(an tutor.Analyzer) Option {
	return func(a *App) { a.analyzer = an }
}

// WithPlayer injects the audio player instead of the one named by
// audio.player.
func WithPlayer(p audio.Player) Option {
	return func(a *App) { a.player = p }
}

// WithMetrics injects the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithOutput redirects the terminal output. Default os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from the config registry (see [BuildProviders]).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		out:       os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if providers == nil {
		a.providers = &Providers{}
	}

	// ── 1. Progress store + learner ──────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 3. Tutor pipeline ────────────────────────────────────────────────
	a.term = NewTerminal(a.out, cfg.Tutor.Name, cfg.Tutor.Input)
	if err := a.initController(); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init tutor: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context) error {
	if a.store == nil {
		s, err := OpenStore(ctx, a.cfg.Store)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
	}
	p, err := EnsureProfile(ctx, a.store, a.cfg.Learner)
	if err != nil {
		return err
	}
	a.profile = p
	return nil
}

// initTelemetry exports metrics over Prometheus when the diagnostics server
// is enabled. Otherwise instruments go to the global (no-op) provider.
func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}
	if a.cfg.Server.ListenAddr == "" {
		a.metrics = observe.DefaultMetrics()
		return nil
	}
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{Registry: prometheus.NewRegistry()})
	if err != nil {
		return err
	}
	a.telemetry = tel
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tel.Shutdown(ctx)
	})
	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

func (a *App) initController() error {
	cfg := a.cfg

	if a.recognizer == nil {
		switch cfg.Tutor.Input {
		case config.InputTyped:
			a.typed = capture.NewTyped()
			a.recognizer = a.typed
		default:
			if a.providers.STT == nil {
				return errors.New("microphone input needs an STT provider")
			}
			source := audio.NewFFmpegSource(cfg.Audio.CaptureCommand, cfg.Audio.InputFormat, cfg.Audio.InputDevice)
			a.recognizer = capture.NewMicrophone(source, a.providers.STT,
				capture.WithFormat(audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: 1}),
				capture.WithLanguage(cfg.Tutor.Language),
				capture.WithMaxListen(cfg.Tutor.MaxListen),
				capture.WithPartials(a.term.Partial),
				capture.WithMetrics(a.metrics),
			)
		}
	} else if t, ok := a.recognizer.(*capture.Typed); ok {
		a.typed = t
	}

	if a.analyzer == nil {
		if a.providers.LLM == nil {
			return errors.New("grading needs an LLM provider")
		}
		an, err := analysis.New(a.providers.LLM,
			analysis.WithTutorName(cfg.Tutor.Name),
			analysis.WithProviderName(cfg.Providers.LLM.Name),
			analysis.WithMetrics(a.metrics),
		)
		if err != nil {
			return err
		}
		a.analyzer = an
	}

	if a.providers.TTS == nil {
		return errors.New("replies need a TTS provider")
	}
	voice := types.VoiceProfile{
		ID:           cfg.Tutor.Voice.ID,
		Name:         cfg.Tutor.Name,
		Provider:     cfg.Providers.TTS.Name,
		SpeedFactor:  cfg.Tutor.Voice.SpeedFactor,
		Instructions: cfg.Tutor.Voice.Instructions,
	}
	synth := speech.New(a.providers.TTS, voice,
		speech.WithPrefix(cfg.Tutor.SpeakPrefix),
		speech.WithMetrics(a.metrics),
	)

	if a.player == nil {
		p, err := NewPlayer(cfg.Audio.Player)
		if err != nil {
			return err
		}
		a.player = p
	}

	c, err := tutor.New(tutor.Config{
		Recognizer:  a.recognizer,
		Analyzer:    a.analyzer,
		Synthesizer: synth,
		Player:      a.player,
		Scores:      a.store,
		Mistakes:    a.store,
		UserID:      a.profile.ID,
		Sink:        tutor.Sinks{a.term, NewMetricsSink(a.metrics)},
	})
	if err != nil {
		return err
	}
	a.controller = c
	return nil
}

// Controller returns the session controller.
func (a *App) Controller() *tutor.Controller { return a.controller }

// Profile returns the learner the session scores.
func (a *App) Profile() progress.Profile { return a.profile }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run reads terminal commands from in until "q", end of input or ctx
// cancellation. The diagnostics server runs alongside when
// server.listen_addr is set.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	g, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("diagnostics server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: diagnostics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return a.terminalLoop(ctx, in)
	})

	err := g.Wait()
	a.controller.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handler serves /metrics, /healthz and /readyz.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	health.New(StoreChecker(a.store)).Register(mux)
	if a.telemetry != nil {
		mux.Handle("GET /metrics", a.telemetry.Handler())
	}
	return observe.Middleware(a.metrics)(mux)
}

// terminalLoop dispatches one action per input line.
func (a *App) terminalLoop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	a.term.Println(fmt.Sprintf("Hi %s! %s is ready to practice English with you.", a.profile.Name, a.cfg.Tutor.Name))
	a.term.Prompt()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			if err := a.handleLine(ctx, line); err != nil {
				return err
			}
		}
	}
}

// handleLine applies one terminal command.
func (a *App) handleLine(ctx context.Context, line string) error {
	cmd := strings.TrimSpace(line)
	state := a.controller.Snapshot().State

	if cmd == "q" {
		return errQuit
	}
	// While typing an utterance every other line is the utterance.
	if a.typed != nil && state == tutor.Listening {
		a.typed.Feed(line)
		return nil
	}

	switch cmd {
	case "m":
		ms, err := a.store.Mistakes(ctx, a.profile.ID, mistakesShown)
		if err != nil {
			slog.Error("load mistakes", "err", err)
			return nil
		}
		a.term.Mistakes(ms)
		return nil
	case "s":
		p, err := a.store.CurrentProfile(ctx)
		if err != nil {
			slog.Error("load profile", "err", err)
			return nil
		}
		a.term.Profile(p)
		return nil
	}

	if err := a.controller.Toggle(ctx); err != nil {
		if errors.Is(err, tutor.ErrBusy) {
			a.term.Println(a.cfg.Tutor.Name + " is still answering; wait a moment.")
			return nil
		}
		return err
	}
	// A sentence typed while idle starts listening and is the utterance.
	if a.typed != nil && cmd != "" && a.controller.Snapshot().State == tutor.Listening {
		a.typed.Feed(cmd)
	}
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown waits for the in-flight tutor cycle and closes subsystems in
// order. If ctx expires first, the remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		done := make(chan struct{})
		go func() {
			if a.controller != nil {
				a.controller.Wait()
			}
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded while waiting for the tutor")
			shutdownErr = ctx.Err()
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// close runs closers after a failed New.
func (a *App) close() {
	for _, c := range a.closers {
		_ = c()
	}
}
