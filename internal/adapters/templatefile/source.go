// Package templatefile serves the configuration template from disk.
package templatefile

import (
	"context"
	"fmt"
	"os"

	"github.com/melih/servery/internal/core/template"
)

// Source re-reads the file on every Load so edits apply to the next create
// without a restart.
type Source struct {
	path   string
	format template.Format
}

func New(path string) *Source {
	return &Source{path: path, format: template.FormatFromPath(path)}
}

func (s *Source) Load(ctx context.Context) (template.Document, error) {
	if err := ctx.Err(); err != nil {
		return template.Document{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return template.Document{}, fmt.Errorf("read template %s: %w", s.path, err)
	}
	return template.Document{Text: string(data), Format: s.format}, nil
}
