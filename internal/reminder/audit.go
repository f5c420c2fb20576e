package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/pathakanu/ashx/internal/logging"
)

// DefaultAuditSchedule runs the audit once an hour.
const DefaultAuditSchedule = "@hourly"

// AuditReport counts pending reminders and the ones no tick can ever match.
type AuditReport struct {
	Pending     int
	Unreachable int
}

// Auditor periodically reports pending reminders. It never modifies rows.
type Auditor struct {
	conns    Acquirer
	schedule string
	cron     *cron.Cron
	log      zerolog.Logger
}

// NewAuditor creates an auditor running on a standard cron spec or descriptor.
func NewAuditor(conns Acquirer, schedule string, log zerolog.Logger) *Auditor {
	if schedule == "" {
		schedule = DefaultAuditSchedule
	}
	cronLog := logging.Cron{L: log}
	return &Auditor{
		conns:    conns,
		schedule: schedule,
		cron: cron.New(
			cron.WithLocation(time.Local),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		log: log,
	}
}

// Start registers the audit job and starts the cron scheduler.
func (a *Auditor) Start() error {
	_, err := a.cron.AddFunc(a.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = a.Run(ctx)
	})
	if err != nil {
		return fmt.Errorf("audit schedule %q: %w", a.schedule, err)
	}
	a.cron.Start()
	return nil
}

// Stop stops the cron scheduler and waits for a running audit.
func (a *Auditor) Stop() {
	ctx := a.cron.Stop()
	<-ctx.Done()
}

// Run performs one audit.
func (a *Auditor) Run(ctx context.Context) (AuditReport, error) {
	var report AuditReport

	conn, err := a.conns.Acquire(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("audit: database unavailable")
		return report, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			a.log.Warn().Err(err).Msg("audit: release connection")
		}
	}()

	pending, err := NewStore(conn.DB).ListUndone(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("audit: query failed")
		return report, err
	}

	report.Pending = len(pending)
	for _, r := range pending {
		if !IsClockTime(r.RemindAt) {
			report.Unreachable++
			a.log.Warn().Uint("id", r.ID).Str("remind_at", r.RemindAt).Msg("audit: reminder can never fire")
		}
	}
	a.log.Info().Int("pending", report.Pending).Int("unreachable", report.Unreachable).Msg("audit: done")
	return report, nil
}
