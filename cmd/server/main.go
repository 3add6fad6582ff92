/*
main.go - Application entry point

PURPOSE:
  Command-line entry point of the lending back office. Loads configuration,
  wires the store and optional integrations, and runs one of:

COMMANDS:
  serve      HTTP API with graceful shutdown and the reminder scheduler
  migrate    Create or upgrade the database schema (--down for postgres)
  schedule   Print a repayment schedule as text or CSV without saving it
  seed       Add fake clients, loans and payments

CONFIGURATION:
  Defaults, then .env, then --config file, then LENDING_* environment
  variables, then flags. See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reminder scheduler (waits for a running job)
  2. Stop accepting new connections
  3. Wait for active requests to complete (server.shutdown_timeout)
  4. Close the store, the receipt counter and the event publisher

EXAMPLES:
  # Run with file database
  lending-engine serve --db-path ./data/lending.db

  # Run in memory with sample data and no login
  LENDING_AUTH_DISABLED=true lending-engine serve --db-driver memory --seed 20

  # Preview a schedule
  lending-engine schedule --principal 5000 --count 12 --start 2025-01-01

SEE ALSO:
  - app.go: Dependency wiring
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/warp/lending-engine/api"
	"github.com/warp/lending-engine/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var configFile string

	root := &cobra.Command{
		Use:           "lending-engine",
		Short:         "Lending back office: schedules, outstanding payments, receipts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("log-pretty", false, "human-readable console logs")
	root.PersistentFlags().String("db-driver", "sqlite", "store driver: sqlite, postgres or memory")
	root.PersistentFlags().String("db-path", "lending.db", "SQLite database path (\":memory:\" allowed)")
	root.PersistentFlags().String("db-url", "", "PostgreSQL connection string")
	for key, name := range map[string]string{
		"log.level":       "log-level",
		"log.pretty":      "log-pretty",
		"database.driver": "db-driver",
		"database.path":   "db-path",
		"database.url":    "db-url",
	} {
		if err := v.BindPFlag(key, root.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	load := func() (*config.Config, error) { return config.Load(v, configFile) }

	root.AddCommand(
		newServeCmd(v, load),
		newMigrateCmd(load),
		newScheduleCmd(load),
		newSeedCmd(load),
	)
	return root
}

func newServeCmd(v *viper.Viper, load func() (*config.Config, error)) *cobra.Command {
	var seedClients int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, seedClients)
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP server port")
	cmd.Flags().Bool("reminders", false, "send overdue reminders on reminders.schedule")
	cmd.Flags().IntVar(&seedClients, "seed", 0, "load this many sample clients at startup")
	for key, name := range map[string]string{
		"server.port":       "port",
		"reminders.enabled": "reminders",
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func serve(parent context.Context, cfg *config.Config, seedClients int) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	log := app.log

	if seedClients > 0 {
		res, err := api.LoadSampleData(ctx, app.service, api.SampleOptions{Clients: seedClients})
		if err != nil {
			return fmt.Errorf("failed to load sample data: %w", err)
		}
		log.Info().Int("clients", res.Clients).Int("payments", res.Payments).Msg("sample data loaded")
	}

	handler := api.NewHandler(app.service, log)
	handler.Auth = app.auth
	handler.Health = app.store

	if cfg.Reminders.Enabled {
		scheduler, err := api.NewReminderScheduler(app.service, cfg.Reminders.Schedule, log)
		if err != nil {
			return err
		}
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
		handler.Reminders = scheduler
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server.CORSOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("store", cfg.Database.Driver).
			Bool("auth", app.auth != nil).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
