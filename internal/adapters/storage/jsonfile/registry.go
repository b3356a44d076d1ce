// Package jsonfile implements the server registry as a single JSON array
// file that is rewritten atomically on every mutation.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/melih/servery/internal/core/domain"
)

// Registry implements ports.ServerRegistry on top of a flat file.
type Registry struct {
	path string

	mu      sync.RWMutex
	servers []domain.Server
}

// Load reads the registry at path. A missing file is created as an empty
// collection, parent directories included.
func Load(path string) (*Registry, error) {
	servers, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return &Registry{path: path, servers: servers}, nil
}

func readFile(path string) ([]domain.Server, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: registry path comes from operator config
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &domain.StorageError{Op: "create registry dir", Err: err}
		}
		if err := writeAtomic(path, []byte("[]")); err != nil {
			return nil, &domain.StorageError{Op: "create registry", Err: err}
		}
		return []domain.Server{}, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "read registry", Err: err}
	}

	var servers []domain.Server
	if err := json.Unmarshal(data, &servers); err != nil {
		return nil, &domain.StorageError{Op: "decode registry", Err: err}
	}
	seen := make(map[domain.ID]struct{}, len(servers))
	for _, s := range servers {
		if _, dup := seen[s.ID]; dup {
			return nil, &domain.StorageError{Op: "decode registry", Err: fmt.Errorf("id %s appears twice", s.ID)}
		}
		seen[s.ID] = struct{}{}
	}
	if servers == nil {
		servers = []domain.Server{}
	}
	return servers, nil
}

// All returns a copy of every record in insertion order.
func (r *Registry) All(ctx context.Context) ([]domain.Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Server, len(r.servers))
	for i, s := range r.servers {
		out[i] = s.Clone()
	}
	return out, nil
}

// ByID returns domain.ErrNotFound when no record has id.
func (r *Registry) ByID(ctx context.Context, id domain.ID) (domain.Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(id); i >= 0 {
		return r.servers[i].Clone(), nil
	}
	return domain.Server{}, domain.ErrNotFound
}

// Insert appends the record and rewrites the file. On a failed write the
// in-memory state is left as it was.
func (r *Registry) Insert(ctx context.Context, candidate *domain.ID, fields domain.ServerFields) (domain.Server, error) {
	if err := ctx.Err(); err != nil {
		return domain.Server{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	used := make(map[domain.ID]struct{}, len(r.servers))
	for _, s := range r.servers {
		used[s.ID] = struct{}{}
	}
	var id domain.ID
	if candidate != nil {
		if _, taken := used[*candidate]; taken {
			return domain.Server{}, &domain.DuplicateIdentityError{ID: *candidate}
		}
		id = *candidate
	} else {
		id = domain.FirstFreeID(used)
	}

	rec := domain.Server{ID: id, ServerFields: fields, Status: domain.StatusPending}.Clone()
	if rec.Mods == nil {
		rec.Mods = []string{}
	}

	next := make([]domain.Server, len(r.servers), len(r.servers)+1)
	copy(next, r.servers)
	next = append(next, rec)
	if err := r.persist(next); err != nil {
		return domain.Server{}, err
	}
	r.servers = next
	return rec.Clone(), nil
}

// SetStatus rewrites the file with the new status of id.
func (r *Registry) SetStatus(ctx context.Context, id domain.ID, status domain.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	next := make([]domain.Server, len(r.servers))
	copy(next, r.servers)
	next[i].Status = status
	if err := r.persist(next); err != nil {
		return err
	}
	r.servers = next
	return nil
}

// Close is a no-op; every write is already on disk.
func (r *Registry) Close() error { return nil }

func (r *Registry) indexOf(id domain.ID) int {
	for i, s := range r.servers {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) persist(servers []domain.Server) error {
	data, err := json.MarshalIndent(servers, "", "  ")
	if err != nil {
		return &domain.StorageError{Op: "encode registry", Err: err}
	}
	if err := writeAtomic(r.path, data); err != nil {
		return &domain.StorageError{Op: "write registry", Err: err}
	}
	return nil
}

// writeAtomic replaces path with data through a synced temp file in the same
// directory, so readers see either the old or the new contents.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
