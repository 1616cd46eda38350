package database

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		backend Backend
		conn    string
		wantErr bool
	}{
		{"empty", "", BackendNone, "", false},
		{"postgres", "postgres://who:pw@db:5432/who?sslmode=disable", BackendPostgres, "postgres://who:pw@db:5432/who?sslmode=disable", false},
		{"postgresql", "postgresql://db/who", BackendPostgres, "postgresql://db/who", false},
		{"sqlite scheme", "sqlite:///var/lib/who/who.db", BackendSQLite, "/var/lib/who/who.db", false},
		{"sqlite relative", "sqlite://who.db", BackendSQLite, "who.db", false},
		{"file uri", "file:who.db?cache=shared", BackendSQLite, "file:who.db?cache=shared", false},
		{"sqlite without path", "sqlite://", BackendNone, "", true},
		{"mysql rejected", "mysql://root:secret@db/who", BackendNone, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, conn, err := Parse(tt.dsn)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.backend, backend)
			assert.Equal(t, tt.conn, conn)
		})
	}
}

func TestParse_RedactsCredentials(t *testing.T) {
	_, _, err := Parse("mysql://root:secret@db/who")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}

func TestOpen_Empty(t *testing.T) {
	s, err := Open(context.Background(), "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Nil(t, s)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestOpen_SQLite(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "who.db")

	s, err := Open(context.Background(), dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &sqlite.Store{}, s)
	assert.NoError(t, s.Init(context.Background()))
}
