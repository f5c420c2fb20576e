package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pathakanu/ashx/internal/logging"
)

// DefaultConnectTimeout bounds each connection attempt.
const DefaultConnectTimeout = 10 * time.Second

// ErrNoConnectionString is returned when neither DATABASE_URL nor DB_URL is set.
var ErrNoConnectionString = errors.New("database: DATABASE_URL (or DB_URL) is not set")

var errNoIPv4 = errors.New("no IPv4 address for host")

// ConnectionError reports a failed connection attempt. Err is the error of
// the direct attempt; Retry holds the IPv4 fallback error when one was made.
type ConnectionError struct {
	Err   error
	Retry error
}

func (e *ConnectionError) Error() string {
	if e.Retry != nil {
		return fmt.Sprintf("database: connect: %v (ipv4 retry: %v)", e.Err, e.Retry)
	}
	return fmt.Sprintf("database: connect: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Conn is a short-lived, single-connection handle. Close must be called.
type Conn struct {
	DB *gorm.DB

	release func() error
	once    sync.Once
	err     error
}

// NewConn wraps db; release runs once on Close and may be nil.
func NewConn(db *gorm.DB, release func() error) *Conn {
	return &Conn{DB: db, release: release}
}

// Close releases the underlying connection.
func (c *Conn) Close() error {
	if c == nil {
		return nil
	}
	c.once.Do(func() {
		if c.release != nil {
			c.err = c.release()
		}
	})
	return c.err
}

// Dialer opens a gorm handle for a target.
type Dialer interface {
	Dial(ctx context.Context, t Target) (*gorm.DB, error)
}

// GormDialer connects through gorm's postgres (pgx) and sqlite drivers.
type GormDialer struct {
	Timeout time.Duration
	Logger  gormlogger.Interface
}

// NewGormDialer returns a dialer that logs slow or failing statements to log.
func NewGormDialer(timeout time.Duration, log zerolog.Logger) *GormDialer {
	return &GormDialer{
		Timeout: timeout,
		Logger: gormlogger.New(logging.Printf{L: log, Level: zerolog.WarnLevel}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

func (d *GormDialer) Dial(ctx context.Context, t Target) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:               d.Logger,
		DisableAutomaticPing: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch t.Driver {
	case DriverSQLite:
		db, err = gorm.Open(sqlite.Open(t.DSN), gormConfig)
	default:
		var cfg *pgx.ConnConfig
		cfg, err = pgx.ParseConfig(t.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse connection string: %w", err)
		}
		if d.Timeout > 0 {
			cfg.ConnectTimeout = d.Timeout
		}
		if t.PinnedAddr != "" {
			addr := t.PinnedAddr
			cfg.LookupFunc = func(context.Context, string) ([]string, error) {
				return []string{addr}, nil
			}
		}
		db, err = gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDB(*cfg)}), gormConfig)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Resolver produces connections from configuration, retrying over IPv4 when
// the direct attempt fails.
type Resolver struct {
	source  func() string
	dialer  Dialer
	lookup  func(ctx context.Context, host string) ([]net.IP, error)
	timeout time.Duration
	log     zerolog.Logger
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithDialer replaces the gorm dialer.
func WithDialer(d Dialer) Option {
	return func(r *Resolver) { r.dialer = d }
}

// WithIPv4Lookup replaces IPv4 host resolution.
func WithIPv4Lookup(fn func(ctx context.Context, host string) ([]net.IP, error)) Option {
	return func(r *Resolver) { r.lookup = fn }
}

// NewResolver returns a Resolver reading the connection string from source
// on every attempt.
func NewResolver(source func() string, log zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		source:  source,
		timeout: DefaultConnectTimeout,
		lookup:  lookupIPv4,
		log:     log,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dialer == nil {
		r.dialer = NewGormDialer(r.timeout, log)
	}
	return r
}

// Acquire opens a new connection. Failures are logged here and returned so
// that callers can degrade.
func (r *Resolver) Acquire(ctx context.Context) (*Conn, error) {
	raw := ""
	if r.source != nil {
		raw = strings.TrimSpace(r.source())
	}
	if raw == "" {
		r.log.Error().Err(ErrNoConnectionString).Msg("database: cannot connect")
		return nil, ErrNoConnectionString
	}

	target := TargetFor(raw)
	db, err := r.dial(ctx, target)
	if err == nil {
		return gormConn(db), nil
	}
	if target.Driver != DriverPostgres {
		r.log.Error().Err(err).Str("driver", string(target.Driver)).Msg("database: connect failed")
		return nil, &ConnectionError{Err: err}
	}

	r.log.Warn().Err(err).Msg("database: direct connect failed, retrying over IPv4")
	db, retryErr := r.retryIPv4(ctx, target)
	if retryErr == nil {
		r.log.Info().Msg("database: connected via IPv4 fallback")
		return gormConn(db), nil
	}

	cerr := &ConnectionError{Err: err, Retry: retryErr}
	r.log.Error().Err(cerr).Msg("database: connect failed")
	return nil, cerr
}

func (r *Resolver) retryIPv4(ctx context.Context, target Target) (*gorm.DB, error) {
	host := hostOf(target.DSN)
	if host == "" {
		return nil, errNoIPv4
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	ips, err := r.lookup(lookupCtx, host)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}

	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			target.PinnedAddr = v4.String()
			return r.dial(ctx, target)
		}
	}
	return nil, fmt.Errorf("%s: %w", host, errNoIPv4)
}

func (r *Resolver) dial(ctx context.Context, target Target) (*gorm.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.dialer.Dial(ctx, target)
}

func gormConn(db *gorm.DB) *Conn {
	return NewConn(db, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
}

func lookupIPv4(ctx context.Context, host string) ([]net.IP, error) {
	return net.DefaultResolver.LookupIP(ctx, "ip4", host)
}
