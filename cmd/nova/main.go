// Command nova is a spoken-English practice tutor. It listens to one
// utterance at a time, grades it with an LLM, keeps a score and a mistake log,
// and speaks a reply.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/nova/internal/app"
	"github.com/MrWong99/nova/internal/config"
	"github.com/MrWong99/nova/internal/progress"
)

const defaultConfigPath = "nova.yaml"

var (
	configPath string
	envFiles   []string

	mistakesLimit int

	loginName  string
	loginEmail string
	loginPhoto string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "nova",
		Short:        "Practice spoken English with an AI tutor",
		SilenceUsage: true,
		RunE:         runPracticeCmd,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files with NOVA_* secrets (default .env)")

	rootCmd.AddCommand(newPracticeCmd())
	rootCmd.AddCommand(newMistakesCmd())
	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newVoicesCmd())
	return rootCmd
}

func newPracticeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "practice",
		Short: "Start a practice session (default)",
		Args:  cobra.NoArgs,
		RunE:  runPracticeCmd,
	}
}

func runPracticeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.ValidatePractice(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("nova starting",
		"config", configPath,
		"input", cfg.Tutor.Input,
		"store", cfg.Store.Driver,
		"listen_addr", cfg.Server.ListenAddr,
	)

	application, err := app.New(ctx, cfg, providers, app.WithOutput(cmd.OutOrStdout()))
	if err != nil {
		return err
	}

	runErr := application.Run(ctx, cmd.InOrStdin())
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("shutdown: %w", err))
	}
	if runErr == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Goodbye!")
	}
	return runErr
}

func newMistakesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mistakes",
		Short: "List logged mistakes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withProfile(cmd, func(ctx context.Context, st progress.Store, p progress.Profile) error {
				ms, err := st.Mistakes(ctx, p.ID, mistakesLimit)
				if err != nil {
					return err
				}
				app.WriteMistakes(cmd.OutOrStdout(), ms)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&mistakesLimit, "limit", 0, "show at most this many mistakes (0 = all)")
	return cmd
}

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Show the learner profile and points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withProfile(cmd, func(_ context.Context, _ progress.Store, p progress.Profile) error {
				app.WriteProfile(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Create or replace the learner profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, st progress.Store) error {
				p := progress.NewProfile(loginName, loginEmail, loginPhoto)
				if err := st.SaveProfile(ctx, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s with %d points.\n", p.Name, p.Points)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&loginName, "name", "", "display name")
	cmd.Flags().StringVar(&loginEmail, "email", "", "email address")
	cmd.Flags().StringVar(&loginPhoto, "photo", "", "profile photo URL")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the learner profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, st progress.Store) error {
				if err := st.DeleteProfile(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}

func newVoicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices of the configured TTS provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Providers.TTS.Name == "" {
				return errors.New("providers.tts is not configured")
			}
			reg := config.NewRegistry()
			app.RegisterBuiltinProviders(reg)
			p, err := reg.CreateTTS(cfg.Providers.TTS)
			if err != nil {
				return err
			}
			voices, err := p.ListVoices(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, v := range voices {
				fmt.Fprintf(out, "%-24s %s\n", v.ID, v.Name)
			}
			return nil
		},
	}
}

// loadConfig reads --config, overlays the environment and installs the
// logger. A missing default config file yields the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, err
		}
		cfg = config.Default()
	}

	env, err := config.LoadEnv(envFiles...)
	if err != nil {
		return nil, err
	}
	env.Apply(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Server.LogLevel))
	return cfg, nil
}

// withStore opens the configured progress store for fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, st progress.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			slog.Warn("close store", "err", cerr)
		}
	}()
	return fn(ctx, st)
}

// withProfile is withStore for commands that need a signed-in learner.
func withProfile(cmd *cobra.Command, fn func(ctx context.Context, st progress.Store, p progress.Profile) error) error {
	return withStore(cmd, func(ctx context.Context, st progress.Store) error {
		p, err := st.CurrentProfile(ctx)
		if errors.Is(err, progress.ErrNoProfile) {
			return errors.New("no learner profile; run \"nova login\" or start a practice session first")
		}
		if err != nil {
			return err
		}
		return fn(ctx, st, p)
	})
}

func newLogger(w io.Writer, level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.Level()}))
}
