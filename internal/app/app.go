// Package app wires the components together and owns the process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pathakanu/ashx/internal/anthropic"
	"github.com/pathakanu/ashx/internal/bot"
	"github.com/pathakanu/ashx/internal/config"
	"github.com/pathakanu/ashx/internal/database"
	"github.com/pathakanu/ashx/internal/launcher"
	"github.com/pathakanu/ashx/internal/logging"
	"github.com/pathakanu/ashx/internal/notify"
	"github.com/pathakanu/ashx/internal/openai"
	"github.com/pathakanu/ashx/internal/reminder"
	"github.com/pathakanu/ashx/internal/server"
	"github.com/pathakanu/ashx/internal/twilio"
)

const shutdownTimeout = 10 * time.Second

// App is the assembled backend.
type App struct {
	cfg       *config.Config
	log       zerolog.Logger
	resolver  *database.Resolver
	scheduler *reminder.Scheduler
	auditor   *reminder.Auditor
	server    *server.Server
}

// Option customises an App.
type Option func(*options)

type options struct {
	source func() string
	sink   notify.Sink
}

// WithConnectionSource replaces the configured connection string lookup.
func WithConnectionSource(fn func() string) Option {
	return func(o *options) { o.source = fn }
}

// WithSink replaces the reminder notification sinks.
func WithSink(s notify.Sink) Option {
	return func(o *options) { o.sink = s }
}

// New builds every component from cfg. Nothing is started.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) *App {
	o := options{source: config.ConnectionString}
	for _, opt := range opts {
		opt(&o)
	}

	resolver := database.NewResolver(o.source, logging.Component(log, "database"),
		database.WithTimeout(cfg.ConnectTimeout))

	sink := o.sink
	if sink == nil {
		sink = newSink(cfg, log)
	}

	assistant := bot.New(
		reminder.NewIntake(resolver, logging.Component(log, "intake")),
		newCompleter(cfg, log),
		logging.Component(log, "bot"),
	)

	var serverOpts []server.Option
	if cfg.TwilioEnabled() {
		serverOpts = append(serverOpts, server.WithWebhook(assistant.Handler()))
	}

	return &App{
		cfg:      cfg,
		log:      log,
		resolver: resolver,
		scheduler: reminder.NewScheduler(resolver, sink, logging.Component(log, "scheduler"),
			reminder.WithInterval(cfg.ReminderInterval)),
		auditor: reminder.NewAuditor(resolver, cfg.AuditSchedule, logging.Component(log, "audit")),
		server: server.New(cfg, resolver, assistant, launcher.New(logging.Component(log, "launcher")),
			logging.Component(log, "http"), serverOpts...),
	}
}

// Resolver returns the connection resolver shared by all components.
func (a *App) Resolver() *database.Resolver { return a.resolver }

// Run ensures the schema, starts the scheduler, the audit job and the HTTP
// server, and blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if err := Migrate(ctx, a.resolver); err != nil {
		a.log.Warn().Err(err).Msg("schema setup failed, continuing without it")
	}

	a.scheduler.Start(ctx)
	if err := a.auditor.Start(); err != nil {
		a.log.Warn().Err(err).Msg("audit job disabled")
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- a.server.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("server shutdown")
	}
	a.auditor.Stop()
	a.scheduler.Stop()
	return runErr
}

// Migrate creates or updates the reminder table on a fresh connection.
func Migrate(ctx context.Context, conns reminder.Acquirer) (err error) {
	conn, err := conns.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, conn.Close())
	}()
	return reminder.NewStore(conn.DB).EnsureSchema(ctx)
}

func newSink(cfg *config.Config, log zerolog.Logger) notify.Sink {
	sinks := notify.Multi{notify.LogSink{Logger: logging.Component(log, "reminder")}}
	if cfg.TwilioEnabled() {
		sinks = append(sinks, twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken,
			cfg.TwilioWhatsAppNumber, cfg.ReminderWhatsAppTo, logging.Component(log, "twilio")))
	}
	return sinks
}

func newCompleter(cfg *config.Config, log zerolog.Logger) bot.Completer {
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			log.Warn().Msg("ANTHROPIC_API_KEY not set, chat runs in offline mode")
		}
		return anthropic.New(cfg.AnthropicAPIKey, cfg.LLMModel)
	default:
		if cfg.LLMAPIKey == "" {
			log.Warn().Msg("LLM_API_KEY not set, chat runs in offline mode")
		}
		return openai.New(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel)
	}
}
