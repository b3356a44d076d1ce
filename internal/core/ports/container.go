package ports

import (
	"context"
	"io"

	"github.com/melih/servery/internal/core/domain"
)

// ContainerRuntime defines the core operations for managing server instances.
// This interface allows us to switch between Docker, Podman, or Kubernetes
// without changing the business logic.
type ContainerRuntime interface {
	// CreateAndStart creates the instance under name from spec and starts it.
	// It returns the runtime's id for the instance.
	CreateAndStart(ctx context.Context, name string, spec domain.LaunchSpec) (string, error)
	ListInstances(ctx context.Context) ([]domain.Instance, error)
	StopInstance(ctx context.Context, name string) error
	InstanceLogs(ctx context.Context, name string) (io.ReadCloser, error)
}
