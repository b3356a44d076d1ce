package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/melih/servery/internal/adapters/storage/badger"
	"github.com/melih/servery/internal/adapters/storage/cached"
	"github.com/melih/servery/internal/adapters/storage/jsonfile"
	"github.com/melih/servery/internal/adapters/storage/sqlite"
	"github.com/melih/servery/internal/core/domain"
)

func TestOpen_SelectsBackend(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		opts Options
		want any
	}{
		{"default is json", Options{Path: filepath.Join(dir, "default.json")}, &jsonfile.Registry{}},
		{"json", Options{Backend: BackendJSON, Path: filepath.Join(dir, "servers.json")}, &jsonfile.Registry{}},
		{"sqlite", Options{Backend: BackendSQLite, Path: filepath.Join(dir, "servers.db")}, &sqlite.Registry{}},
		{"badger", Options{Backend: BackendBadger, Path: filepath.Join(dir, "badger")}, &badger.Registry{}},
		{"cached", Options{Backend: BackendJSON, Path: filepath.Join(dir, "cached.json"), Cache: true, CacheTTL: time.Minute}, &cached.Registry{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := Open(tt.opts)
			require.NoError(t, err)
			defer reg.Close()

			require.IsType(t, tt.want, reg)
			all, err := reg.All(context.Background())
			require.NoError(t, err)
			require.Empty(t, all)
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(Options{Backend: "mongo", Path: t.TempDir()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown registry backend")
}

func TestOpen_PropagatesStorageError(t *testing.T) {
	// A directory where the JSON file should be cannot be read as a registry.
	_, err := Open(Options{Backend: BackendJSON, Path: t.TempDir()})
	var storageErr *domain.StorageError
	require.ErrorAs(t, err, &storageErr)
}
