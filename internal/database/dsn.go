package database

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Driver names the backend a connection string selects.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// Target is a resolved connection attempt.
type Target struct {
	Driver Driver
	DSN    string
	// PinnedAddr, when set, replaces host name resolution with this address.
	PinnedAddr string
}

// TargetFor classifies raw and normalises it for its driver.
func TargetFor(raw string) Target {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "sqlite://"):
		return Target{Driver: DriverSQLite, DSN: raw[len("sqlite://"):]}
	case strings.HasPrefix(lower, "sqlite:"):
		return Target{Driver: DriverSQLite, DSN: raw[len("sqlite:"):]}
	case isURL(raw), isKeywordValue(raw):
		return Target{Driver: DriverPostgres, DSN: NormalizeDSN(raw)}
	case strings.HasPrefix(lower, "file:"), strings.HasSuffix(lower, ".db"):
		return Target{Driver: DriverSQLite, DSN: raw}
	default:
		return Target{Driver: DriverPostgres, DSN: NormalizeDSN(raw)}
	}
}

// NormalizeDSN requires TLS unless the connection string already picks an
// sslmode. Both URL and keyword/value forms are handled.
func NormalizeDSN(raw string) string {
	if raw == "" || hasSSLMode(raw) {
		return raw
	}
	if isURL(raw) {
		sep := "?"
		if strings.Contains(raw, "?") {
			sep = "&"
		}
		return raw + sep + "sslmode=require"
	}
	return strings.TrimSpace(raw) + " sslmode=require"
}

// sslModeKeyRe matches an sslmode keyword in a keyword/value string. libpq
// allows spaces around the equals sign.
var sslModeKeyRe = regexp.MustCompile(`(?i)(^|\s)sslmode\s*=`)

// keywordRe matches the first keyword of a keyword/value string.
var keywordRe = regexp.MustCompile(`^[A-Za-z_]+\s*=`)

func hasSSLMode(raw string) bool {
	if isURL(raw) {
		u, err := url.Parse(raw)
		if err != nil {
			return strings.Contains(strings.ToLower(raw), "sslmode=")
		}
		for key := range u.Query() {
			if strings.EqualFold(key, "sslmode") {
				return true
			}
		}
		return false
	}
	return sslModeKeyRe.MatchString(raw)
}

func isKeywordValue(raw string) bool {
	return keywordRe.MatchString(raw)
}

func isURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

// hostOf returns the first host of a postgres connection string, or "" when
// it cannot be parsed or points at a unix socket.
func hostOf(dsn string) string {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return ""
	}
	if strings.HasPrefix(cfg.Host, "/") {
		return ""
	}
	return cfg.Host
}
