package ports

import (
	"context"

	"github.com/melih/servery/internal/core/domain"
)

// ImageBuilder defines operations for building container images from source code.
type ImageBuilder interface {
	// BuildImage clones the repository described by spec and builds an image
	// tagged imageName. It returns the tag of the built image or an error.
	BuildImage(ctx context.Context, spec domain.BuildSpec, imageName string) (string, error)
}
