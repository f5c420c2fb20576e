package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pathakanu/ashx/internal/app"
	"github.com/pathakanu/ashx/internal/config"
	"github.com/pathakanu/ashx/internal/database"
	"github.com/pathakanu/ashx/internal/logging"
	"github.com/pathakanu/ashx/internal/reminder"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "ashx",
		Short:        "Reminder assistant backend",
		RunE:         serve,
		SilenceUsage: true,
	}

	f := rootCmd.PersistentFlags()
	f.String("port", "8000", "HTTP port")
	f.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	f.Duration("interval", reminder.DefaultInterval, "time between reminder scheduler ticks")

	// Viper keys use underscores so they match the environment variable names.
	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("port", "port")
	bindFlag("log_level", "log-level")
	bindFlag("reminder_interval", "interval")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the reminder scheduler",
			RunE:  serve,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the reminder table and exit",
			RunE:  migrate,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(config.Version)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, zerolog.Logger) {
	cfg := config.Load()
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	for _, w := range cfg.Warnings {
		log.Warn().Err(w).Msg("invalid configuration value, using default")
	}
	return cfg, log
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, log := setup()
	log.Info().
		Str("version", config.Version).
		Str("port", cfg.Port).
		Dur("interval", cfg.ReminderInterval).
		Str("llm_provider", cfg.LLMProvider).
		Bool("whatsapp", cfg.TwilioEnabled()).
		Msg("ashx starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.New(cfg, log).Run(ctx)
}

func migrate(cmd *cobra.Command, args []string) error {
	cfg, log := setup()
	resolver := database.NewResolver(config.ConnectionString, logging.Component(log, "database"),
		database.WithTimeout(cfg.ConnectTimeout))

	if err := app.Migrate(cmd.Context(), resolver); err != nil {
		log.Error().Err(err).Msg("migration failed")
		return err
	}
	log.Info().Msg("schema up to date")
	return nil
}
