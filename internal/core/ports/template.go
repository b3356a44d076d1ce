package ports

import (
	"context"

	"github.com/melih/servery/internal/core/template"
)

// TemplateSource loads the raw configuration template for one create call.
type TemplateSource interface {
	Load(ctx context.Context) (template.Document, error)
}
