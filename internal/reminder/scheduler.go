package reminder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pathakanu/ashx/internal/database"
	"github.com/pathakanu/ashx/internal/model"
	"github.com/pathakanu/ashx/internal/notify"
)

// DefaultInterval is the polling cadence. Reminders have minute granularity.
const DefaultInterval = time.Minute

// ClockLayout is the format of remind_at and of the tick's "now".
const ClockLayout = "15:04"

// Acquirer hands out a fresh connection per call.
type Acquirer interface {
	Acquire(ctx context.Context) (*database.Conn, error)
}

// Clock abstracts wall-clock time and sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the host's local clock.
var SystemClock Clock = systemClock{}

// TickReport summarises one scheduler cycle.
type TickReport struct {
	Now       string
	Connected bool
	Due       int
	Fired     int
	Failed    int
}

// Scheduler polls the store once per interval and fires reminders that are due.
type Scheduler struct {
	conns    Acquirer
	sink     notify.Sink
	clock    Clock
	interval time.Duration
	log      zerolog.Logger

	once   sync.Once
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SchedulerOption customises a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock replaces the system clock.
func WithClock(c Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithInterval sets the sleep between ticks.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewScheduler creates a scheduler that has not been started.
func NewScheduler(conns Acquirer, sink notify.Sink, log zerolog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		conns:    conns,
		sink:     sink,
		clock:    SystemClock,
		interval: DefaultInterval,
		log:      log,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the polling loop in its own goroutine. Only the first call
// starts a loop; later calls return false.
func (s *Scheduler) Start(ctx context.Context) bool {
	started := false
	s.once.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()
		started = true
		s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
		go s.run(ctx)
	})
	return started
}

// Stop signals the loop and waits for it to exit. It is safe to call before
// Start and more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.done
}

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	defer s.log.Info().Msg("scheduler stopped")

	for {
		s.safeTick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.interval):
		}
	}
}

// safeTick keeps a panicking tick from ending the loop.
func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("scheduler: tick panicked")
		}
	}()
	s.Tick(ctx)
}

// Tick runs one cycle: acquire, query, fire and mark each due reminder,
// release. Errors are logged and reported, never returned.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	report := TickReport{Now: s.clock.Now().Format(ClockLayout)}
	log := s.log.With().Str("now", report.Now).Logger()

	conn, err := s.conns.Acquire(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("scheduler: database unavailable, skipping tick")
		return report
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("scheduler: release connection")
		}
	}()
	report.Connected = true

	store := NewStore(conn.DB)
	due, err := store.FetchDueUndone(ctx, report.Now)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: query failed")
		return report
	}
	report.Due = len(due)

	for _, r := range due {
		if err := s.fire(ctx, r); err != nil {
			log.Error().Err(err).Uint("id", r.ID).Msg("scheduler: notification failed")
		} else {
			report.Fired++
		}
		if err := store.MarkDone(ctx, r.ID); err != nil {
			report.Failed++
			log.Error().Err(err).Uint("id", r.ID).Msg("scheduler: mark done failed")
		}
	}

	if report.Due > 0 {
		log.Info().Int("due", report.Due).Int("fired", report.Fired).Int("failed", report.Failed).Msg("scheduler: tick")
	} else {
		log.Debug().Msg("scheduler: nothing due")
	}
	return report
}

// errSinkPanic marks a notification that panicked.
var errSinkPanic = errors.New("notification sink panicked")

func (s *Scheduler) fire(ctx context.Context, r model.Reminder) (err error) {
	if s.sink == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", errSinkPanic, rec)
		}
	}()
	return s.sink.Fire(ctx, r)
}
