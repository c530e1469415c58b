package store

import (
	"log/slog"
	"strings"
)

// Open selects a persistent backend from the DSN shape: postgres:// and
// postgresql:// URLs open a PostgresStore, anything else is treated as an
// SQLite file path. An empty DSN falls back to the in-memory store, which
// does not survive restarts.
func Open(dsn string) (Store, error) {
	switch {
	case dsn == "":
		slog.Warn("store.Open: no DSN configured, state will not survive restarts")
		return NewInMemoryStore(), nil
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		slog.Debug("store.Open: selecting Postgres backend")
		return NewPostgresStore(WithDSN(dsn))
	default:
		slog.Debug("store.Open: selecting SQLite backend", "path", dsn)
		return NewSQLiteStore(WithDSN(dsn))
	}
}
