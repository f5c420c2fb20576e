// Package notify delivers fired reminders.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/pathakanu/ashx/internal/model"
)

// Sink receives a reminder at the moment it fires.
type Sink interface {
	Fire(ctx context.Context, r model.Reminder) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r model.Reminder) error

func (f SinkFunc) Fire(ctx context.Context, r model.Reminder) error { return f(ctx, r) }

// LogSink writes each reminder as a log record.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Fire(_ context.Context, r model.Reminder) error {
	s.Logger.Info().
		Uint("id", r.ID).
		Str("remind_at", r.RemindAt).
		Msgf("🔔 REMINDER: %s", r.Task)
	return nil
}

// Multi fans a reminder out to every sink, even after one of them fails.
type Multi []Sink

func (m Multi) Fire(ctx context.Context, r model.Reminder) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Fire(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
