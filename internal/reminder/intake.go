package reminder

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pathakanu/ashx/internal/model"
)

// ErrStoreUnavailable is returned by Submit when no connection could be made.
var ErrStoreUnavailable = errors.New("reminder store unavailable")

// ParseError describes a reminder request that could not be understood.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse reminder %q: %s", e.Input, e.Reason)
}

var (
	reminderRequestRe = regexp.MustCompile(`(?is)\bremind me\b.*\bat\b`)
	// The task is greedy so the last standalone "at" separates task and time.
	reminderRe = regexp.MustCompile(`(?is)\bremind me to\s+(.+)\s+at\s+(\S+?)[.!]?\s*$`)
	clockRe    = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)
)

// IsReminderRequest reports whether text asks for a reminder. It needs both
// "remind me" and a later standalone "at".
func IsReminderRequest(text string) bool {
	return reminderRequestRe.MatchString(text)
}

// ParseRequest extracts the task and the HH:MM time from
// "remind me to <task> at <time>".
func ParseRequest(text string) (task, remindAt string, err error) {
	m := reminderRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", "", &ParseError{Input: text, Reason: `expected "remind me to <task> at <HH:MM>"`}
	}
	task = strings.Join(strings.Fields(m[1]), " ")
	if task == "" {
		return "", "", &ParseError{Input: text, Reason: "empty task"}
	}
	remindAt, ok := NormalizeClock(m[2])
	if !ok {
		return "", "", &ParseError{Input: text, Reason: fmt.Sprintf("invalid time %q, want HH:MM", m[2])}
	}
	return task, remindAt, nil
}

// NormalizeClock validates a 24-hour H:MM or HH:MM time and returns it in
// the zero-padded layout the scheduler compares against.
func NormalizeClock(s string) (string, bool) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	hour := m[1]
	if len(hour) == 1 {
		hour = "0" + hour
	}
	return hour + ":" + m[2], true
}

// IsClockTime reports whether s can ever equal a tick's formatted time.
func IsClockTime(s string) bool {
	norm, ok := NormalizeClock(s)
	return ok && norm == s
}

// Intake turns chat messages into stored reminders.
type Intake struct {
	conns Acquirer
	log   zerolog.Logger
}

// NewIntake returns an intake path that opens its own connection per call.
func NewIntake(conns Acquirer, log zerolog.Logger) *Intake {
	return &Intake{conns: conns, log: log}
}

// Submit parses raw and inserts an undone reminder.
func (i *Intake) Submit(ctx context.Context, raw string) (*model.Reminder, error) {
	task, remindAt, err := ParseRequest(raw)
	if err != nil {
		return nil, err
	}

	conn, err := i.conns.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			i.log.Warn().Err(err).Msg("intake: release connection")
		}
	}()

	r, err := NewStore(conn.DB).Insert(ctx, task, remindAt)
	if err != nil {
		return nil, err
	}
	i.log.Info().Uint("id", r.ID).Str("remind_at", r.RemindAt).Msg("intake: reminder saved")
	return r, nil
}
