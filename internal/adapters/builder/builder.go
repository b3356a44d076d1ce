package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/melih/servery/internal/core/domain"
)

const defaultDockerfile = "Dockerfile"

// Adapter implements ports.ImageBuilder by cloning a git repository and
// handing it to the Docker daemon as a build context.
type Adapter struct {
	cli    *client.Client
	logger *zap.Logger
}

// NewBuilderAdapter shares cli with the runtime adapter so both talk to the
// same daemon.
func NewBuilderAdapter(cli *client.Client, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cli: cli, logger: logger.With(zap.String("component", "builder"))}
}

// BuildImage clones a repo and builds a Docker image
func (a *Adapter) BuildImage(ctx context.Context, spec domain.BuildSpec, imageName string) (string, error) {
	// 1. Create temporary directory
	tmpDir, err := os.MkdirTemp("", "servery-build-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir) // Clean up after build

	// 2. Clone Repository
	log := a.logger.With(zap.String("repo", spec.Repo), zap.String("image", imageName))
	log.Info("cloning repository", zap.String("ref", spec.Ref))
	if _, err := git.PlainCloneContext(ctx, tmpDir, false, cloneOptions(spec)); err != nil {
		return "", fmt.Errorf("failed to clone repo: %w", err)
	}

	// 3. Create Build Context (Tar)
	tar, err := archive.TarWithOptions(tmpDir, &archive.TarOptions{ExcludePatterns: []string{".git"}})
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}
	defer tar.Close()

	// 4. Build Docker Image
	log.Info("building image")
	resp, err := a.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:       []string{imageName},
		Dockerfile: dockerfile(spec),
		Remove:     true, // Remove intermediate containers
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	// The build finishes when the stream is drained; a failing step shows up
	// as an error message inside it.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, io.Discard, 0, false, nil); err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}

	log.Info("image built")
	return imageName, nil
}

func cloneOptions(spec domain.BuildSpec) *git.CloneOptions {
	opts := &git.CloneOptions{
		URL:   spec.Repo,
		Depth: 1, // Shallow clone for speed
	}
	if ref := referenceName(spec.Ref); ref != "" {
		opts.ReferenceName = ref
		opts.SingleBranch = true
	}
	return opts
}

// referenceName accepts a full reference ("refs/tags/v1") or a bare branch name.
func referenceName(ref string) plumbing.ReferenceName {
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "refs/"):
		return plumbing.ReferenceName(ref)
	default:
		return plumbing.NewBranchReferenceName(ref)
	}
}

func dockerfile(spec domain.BuildSpec) string {
	if spec.Dockerfile == "" {
		return defaultDockerfile
	}
	return spec.Dockerfile
}
