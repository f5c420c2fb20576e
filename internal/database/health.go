package database

import "context"

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"

	DatabaseConnected    = "connected"
	DatabaseDisconnected = "disconnected"
)

// Health is the payload of the health endpoint.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Check acquires and releases one connection.
func (r *Resolver) Check(ctx context.Context) Health {
	conn, err := r.Acquire(ctx)
	if err != nil {
		return Health{Status: StatusDegraded, Database: DatabaseDisconnected}
	}
	if err := conn.Close(); err != nil {
		r.log.Warn().Err(err).Msg("database: health check release")
	}
	return Health{Status: StatusOK, Database: DatabaseConnected}
}
