package builder

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/melih/servery/internal/core/domain"
	"github.com/melih/servery/internal/core/ports"
)

func TestReferenceName(t *testing.T) {
	require.Equal(t, plumbing.ReferenceName(""), referenceName(""))
	require.Equal(t, plumbing.ReferenceName("refs/heads/main"), referenceName("main"))
	require.Equal(t, plumbing.ReferenceName("refs/tags/v1.2.0"), referenceName("refs/tags/v1.2.0"))
}

func TestCloneOptions(t *testing.T) {
	opts := cloneOptions(domain.BuildSpec{Repo: "https://example.com/mods.git"})
	require.Equal(t, "https://example.com/mods.git", opts.URL)
	require.Equal(t, 1, opts.Depth)
	require.False(t, opts.SingleBranch)

	opts = cloneOptions(domain.BuildSpec{Repo: "https://example.com/mods.git", Ref: "release"})
	require.Equal(t, plumbing.NewBranchReferenceName("release"), opts.ReferenceName)
	require.True(t, opts.SingleBranch)
}

func TestDockerfile(t *testing.T) {
	require.Equal(t, "Dockerfile", dockerfile(domain.BuildSpec{}))
	require.Equal(t, "docker/server.Dockerfile", dockerfile(domain.BuildSpec{Dockerfile: "docker/server.Dockerfile"}))
}

var _ ports.ImageBuilder = (*Adapter)(nil)
