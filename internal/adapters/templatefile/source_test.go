package templatefile

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/melih/servery/internal/core/ports"
	"github.com/melih/servery/internal/core/template"
)

func TestSource_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Main:\n  Image: \"{image}\"\n"), 0o600))

	src := New(path)
	doc, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, template.FormatYAML, doc.Format)
	require.Equal(t, "Main:\n  Image: \"{image}\"\n", doc.Text)

	// picks up edits without a new Source
	require.NoError(t, os.WriteFile(path, []byte("Main: {}\n"), 0o600))
	doc, err = src.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Main: {}\n", doc.Text)
}

func TestSource_Missing(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "fabric.toml")).Load(context.Background())
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestSource_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New("fabric.toml").Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

var _ ports.TemplateSource = (*Source)(nil)
