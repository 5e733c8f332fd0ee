// Command papertrade is the entry point for the paper-trading simulator. It
// loads configuration, validates it, wires dependencies, sets up signal
// handling, and runs the server or one of the offline commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/papertrade/internal/app"
	"github.com/alanyoungcy/papertrade/internal/config"
	"github.com/alanyoungcy/papertrade/internal/domain"
)

const defaultConfigPath = "config.toml"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "papertrade",
		Short: "Paper stock-trading simulator",
		Long: `papertrade streams live quotes and simulates buying and selling
a fixed set of stocks against a virtual cash balance.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to configuration file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(quotesCmd())
	rootCmd.AddCommand(stateCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(ordersCmd())
	rootCmd.AddCommand(archivesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration. A missing default file
// falls back to built-in defaults and environment overrides. Offline commands
// skip the live feed requirements.
func loadConfig(cmd *cobra.Command, live bool) (*config.Config, error) {
	path := configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	validate := cfg.ValidateOffline
	if live {
		validate = cfg.Validate
	}
	if err := validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(level slog.Level, toStderr bool) *slog.Logger {
	out := os.Stdout
	if toStderr {
		out = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// offlineApp builds an App for one-shot commands. Logs go to stderr at warn
// level so stdout stays machine-readable.
func offlineApp(cmd *cobra.Command) (*config.Config, *app.App, error) {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return nil, nil, err
	}
	// A feed publisher keeps no session; offline commands always need one.
	if cfg.Mode == "feed" {
		cfg.Mode = "full"
	}
	return cfg, app.New(cfg, newLogger(slog.LevelWarn, true)), nil
}

func runCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulator (full, feed or api mode)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "" {
				os.Setenv("PAPERTRADE_MODE", mode)
			}
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}

			logger := newLogger(parseLevel(cfg.LogLevel), false)
			logger.Info("papertrade starting",
				slog.String("mode", cfg.Mode),
				slog.String("config", configPath),
			)

			application := app.New(cfg, logger)
			defer application.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("application exited with error", slog.String("error", err.Error()))
				return err
			}
			logger.Info("papertrade stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "override the configured mode (full, feed, api)")
	return cmd
}

func quotesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quotes",
		Short: "Fetch a one-shot quote snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			snap, err := app.NewSnapshotter(cfg)
			if err != nil {
				return err
			}
			if snap == nil {
				return fmt.Errorf("quotes: feed.api_key is not configured")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			quotes, err := snap.Snapshot(ctx, cfg.Market.Symbols)
			if err != nil {
				return err
			}
			return printQuotes(cmd.OutOrStdout(), quotes, cfg.Market.Currency)
		},
	}
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, application, err := offlineApp(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			session, _, err := application.LoadSession(cmd.Context())
			if err != nil {
				return err
			}
			return printPortfolio(cmd.OutOrStdout(), session.Portfolio(), cfg.Market.Currency)
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the persisted session while no server is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, application, err := offlineApp(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			ctx := cmd.Context()
			deps, err := application.Dependencies(ctx)
			if err != nil {
				return err
			}
			unlock, err := deps.LockManager.Acquire(ctx, app.SessionLockKey, cfg.Redis.LockTTL.Duration)
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("reset: a running session holds the lock; use POST /api/reset instead")
			}
			if err != nil {
				return err
			}
			defer unlock()

			session, _, err := application.LoadSession(ctx)
			if err != nil {
				return err
			}
			return printPortfolio(cmd.OutOrStdout(), session.Reset(ctx), cfg.Market.Currency)
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(config.RedactedConfig(cfg))
		},
	}
}

func ordersCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List journaled orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, application, err := offlineApp(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			deps, err := application.Dependencies(cmd.Context())
			if err != nil {
				return err
			}
			if deps.Journal == nil {
				return fmt.Errorf("orders: no order journal configured")
			}
			orders, err := deps.Journal.List(cmd.Context(), domain.ListOpts{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			return printOrders(cmd.OutOrStdout(), orders, cfg.Market.Currency)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of orders")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of orders to skip")
	return cmd
}

func archivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "Browse archived sessions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List archived sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, application, err := offlineApp(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			deps, err := application.Dependencies(cmd.Context())
			if err != nil {
				return err
			}
			if deps.Archiver == nil {
				return fmt.Errorf("archives: s3 is not enabled")
			}
			infos, err := deps.Archiver.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			return printArchives(cmd.OutOrStdout(), infos)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <path>",
		Short: "Print the orders of one archived session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, application, err := offlineApp(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			deps, err := application.Dependencies(cmd.Context())
			if err != nil {
				return err
			}
			if deps.Archiver == nil {
				return fmt.Errorf("archives: s3 is not enabled")
			}
			orders, err := deps.Archiver.LoadSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printOrders(cmd.OutOrStdout(), orders, cfg.Market.Currency)
		},
	}

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}
