package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/melih/servery/internal/core/domain"
)

// Format is the syntax of a template document.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Document is an unrendered template.
type Document struct {
	Text   string
	Format Format
}

// FormatFromPath picks the document format from a file extension.
// Unknown extensions are treated as TOML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatTOML
	}
}

// sections mirrors the top level of a template. Keys follow the Docker API
// field names (Main, Host, Build) and match case-insensitively.
type sections struct {
	Main  *container.Config     `json:"Main"`
	Host  *container.HostConfig `json:"Host"`
	Build *domain.BuildSpec     `json:"Build"`
}

// Load renders doc with vars and parses the result with host defaults applied.
func Load(doc Document, vars map[string]string) (domain.LaunchSpec, error) {
	spec, err := Parse(Render(doc.Text, vars), doc.Format)
	if err != nil {
		return domain.LaunchSpec{}, err
	}
	ApplyHostDefaults(&spec)
	return spec, nil
}

// Parse decodes a rendered document into a launch specification. Every
// failure is a *domain.TemplateError.
func Parse(text string, format Format) (domain.LaunchSpec, error) {
	tree, err := decodeTree(text, format)
	if err != nil {
		return domain.LaunchSpec{}, &domain.TemplateError{Err: err}
	}

	// The Docker types only carry json tags, so the generic tree is
	// re-encoded as JSON before decoding into them.
	raw, err := json.Marshal(tree)
	if err != nil {
		return domain.LaunchSpec{}, &domain.TemplateError{Err: fmt.Errorf("normalize %s document: %w", format, err)}
	}
	var s sections
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&s); err != nil {
		return domain.LaunchSpec{}, &domain.TemplateError{Err: fmt.Errorf("decode sections: %w", err)}
	}
	if s.Main == nil {
		return domain.LaunchSpec{}, &domain.TemplateError{Err: errors.New("missing Main section")}
	}
	if s.Build != nil && s.Build.Repo == "" {
		return domain.LaunchSpec{}, &domain.TemplateError{Err: errors.New("Build section requires Repo")}
	}
	return domain.LaunchSpec{Config: s.Main, Host: s.Host, Build: s.Build}, nil
}

func decodeTree(text string, format Format) (map[string]any, error) {
	tree := map[string]any{}
	switch format {
	case FormatTOML, "":
		if err := toml.Unmarshal([]byte(text), &tree); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal([]byte(text), &tree); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal([]byte(text), &tree); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported template format %q", format)
	}
	return tree, nil
}

// ApplyHostDefaults synthesizes a host configuration when none was given and
// fills in the "unless-stopped" restart policy when the template left it
// unset. An explicit policy is never overwritten.
func ApplyHostDefaults(spec *domain.LaunchSpec) {
	if spec.Host == nil {
		spec.Host = &container.HostConfig{}
	}
	if spec.Host.RestartPolicy.Name == "" {
		spec.Host.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyUnlessStopped}
	}
}
