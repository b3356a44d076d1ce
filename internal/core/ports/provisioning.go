package ports

import (
	"context"
	"io"

	"github.com/melih/servery/internal/core/domain"
)

// ServerService is what the API adapters need from the provisioning core.
type ServerService interface {
	List(ctx context.Context) ([]domain.Server, error)
	Get(ctx context.Context, id domain.ID) (domain.Server, error)
	Create(ctx context.Context, req domain.NewServer) (domain.ID, error)
	Stop(ctx context.Context, id domain.ID) error
	Logs(ctx context.Context, id domain.ID) (io.ReadCloser, error)
	Instances(ctx context.Context) ([]domain.Instance, error)
}
