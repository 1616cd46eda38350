// Package database selects a domain.EventStore implementation from a DSN.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/postgres"
	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
)

// Backend names the store implementation a DSN maps to.
type Backend string

const (
	BackendNone     Backend = ""
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// Parse maps dsn to a backend and the connection string that backend expects.
//
//	postgres://..., postgresql://...  -> postgres, dsn unchanged
//	sqlite://<path>                   -> sqlite, <path>
//	file:<path>[?query]               -> sqlite, dsn unchanged
func Parse(dsn string) (Backend, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return BackendNone, "", nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return BackendPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return BackendNone, "", fmt.Errorf("sqlite dsn %q has no path", dsn)
		}
		return BackendSQLite, path, nil
	case strings.HasPrefix(dsn, "file:"):
		return BackendSQLite, dsn, nil
	default:
		return BackendNone, "", fmt.Errorf("unsupported DATABASE_URL scheme in %q", redact(dsn))
	}
}

// Open connects to the store named by dsn. An empty dsn returns
// domain.ErrStoreUnavailable.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (domain.EventStore, error) {
	backend, conn, err := Parse(dsn)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendPostgres:
		s, err := postgres.New(ctx, conn, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		s, err := sqlite.Open(ctx, conn, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, domain.ErrStoreUnavailable
	}
}

// redact strips credentials from a URL-shaped DSN for error messages.
func redact(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	return scheme + "://" + rest
}
