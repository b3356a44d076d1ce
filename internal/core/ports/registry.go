package ports

import (
	"context"

	"github.com/melih/servery/internal/core/domain"
)

// ServerRegistry is the single source of truth for provisioned servers.
//
// Implementations allow any number of concurrent readers and at most one
// writer. A write is either fully persisted or not applied at all.
type ServerRegistry interface {
	// All returns a snapshot of every record in insertion order.
	All(ctx context.Context) ([]domain.Server, error)
	// ByID returns domain.ErrNotFound when no record has id.
	ByID(ctx context.Context, id domain.ID) (domain.Server, error)
	// Insert stores a new pending record. A non-nil candidate is used as the
	// id and rejected with *domain.DuplicateIdentityError when taken; a nil
	// candidate gets the smallest unused id.
	Insert(ctx context.Context, candidate *domain.ID, fields domain.ServerFields) (domain.Server, error)
	// SetStatus records a lifecycle transition.
	SetStatus(ctx context.Context, id domain.ID, status domain.Status) error
}
