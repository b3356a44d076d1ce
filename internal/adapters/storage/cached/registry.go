// Package cached adds an in-memory read cache in front of a server registry.
package cached

import (
	"context"
	"io"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/melih/servery/internal/core/domain"
	"github.com/melih/servery/internal/core/ports"
)

const DefaultCleanupInterval = 10 * time.Minute

// Registry caches ByID lookups of the wrapped registry. Writes go straight
// through and refresh or drop the affected entry.
//
// Each id carries a generation that every status write bumps. A ByID only
// caches what it read when the generation is unchanged since before the read.
type Registry struct {
	next  ports.ServerRegistry
	cache *gocache.Cache

	mu          sync.Mutex
	generations map[domain.ID]uint64
}

// New wraps next with a cache whose entries expire after ttl.
func New(next ports.ServerRegistry, ttl time.Duration) *Registry {
	return &Registry{
		next:        next,
		cache:       gocache.New(ttl, DefaultCleanupInterval),
		generations: make(map[domain.ID]uint64),
	}
}

// All always reads the wrapped registry.
func (r *Registry) All(ctx context.Context) ([]domain.Server, error) {
	return r.next.All(ctx)
}

// ByID serves id from the cache, filling it from the wrapped registry on a
// miss. Misses that end in an error are not cached.
func (r *Registry) ByID(ctx context.Context, id domain.ID) (domain.Server, error) {
	if v, found := r.cache.Get(id.String()); found {
		if s, ok := v.(domain.Server); ok {
			return s.Clone(), nil
		}
	}

	gen := r.generation(id)
	s, err := r.next.ByID(ctx, id)
	if err != nil {
		return domain.Server{}, err
	}

	r.mu.Lock()
	if r.generations[id] == gen {
		r.cache.SetDefault(id.String(), s.Clone())
	}
	r.mu.Unlock()
	return s, nil
}

// Insert stores through the wrapped registry and caches the new record.
func (r *Registry) Insert(ctx context.Context, candidate *domain.ID, fields domain.ServerFields) (domain.Server, error) {
	s, err := r.next.Insert(ctx, candidate, fields)
	if err != nil {
		return domain.Server{}, err
	}
	r.cache.SetDefault(s.ID.String(), s.Clone())
	return s, nil
}

// SetStatus writes through and drops the cached entry. The generation moves
// on both sides of the write: a ByID that read before the commit finishes
// with a stale generation and leaves the cache alone.
func (r *Registry) SetStatus(ctx context.Context, id domain.ID, status domain.Status) error {
	r.invalidate(id)
	err := r.next.SetStatus(ctx, id, status)
	r.invalidate(id)
	return err
}

func (r *Registry) generation(id domain.ID) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generations[id]
}

func (r *Registry) invalidate(id domain.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations[id]++
	r.cache.Delete(id.String())
}

// Close closes the wrapped registry when it holds resources.
func (r *Registry) Close() error {
	r.cache.Flush()
	if c, ok := r.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
