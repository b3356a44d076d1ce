// Package storage selects and opens a server registry backend.
package storage

import (
	"fmt"
	"io"
	"time"

	"github.com/melih/servery/internal/adapters/storage/badger"
	"github.com/melih/servery/internal/adapters/storage/cached"
	"github.com/melih/servery/internal/adapters/storage/jsonfile"
	"github.com/melih/servery/internal/adapters/storage/sqlite"
	"github.com/melih/servery/internal/core/ports"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Registry is a server registry that owns resources until closed.
type Registry interface {
	ports.ServerRegistry
	io.Closer
}

// Options selects the backend and its location.
type Options struct {
	Backend  string
	Path     string
	Cache    bool
	CacheTTL time.Duration
}

// Open opens the configured backend, creating an empty registry when none
// exists at opts.Path yet.
func Open(opts Options) (Registry, error) {
	var (
		reg Registry
		err error
	)
	switch opts.Backend {
	case BackendJSON, "":
		reg, err = jsonfile.Load(opts.Path)
	case BackendSQLite:
		reg, err = sqlite.Open(opts.Path)
	case BackendBadger:
		reg, err = badger.Open(opts.Path)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	if opts.Cache {
		reg = cached.New(reg, opts.CacheTTL)
	}
	return reg, nil
}
