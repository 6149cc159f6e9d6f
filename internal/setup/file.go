package setup

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"preview/internal/apperrors"
	"preview/internal/preview"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed descriptor.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("descriptor.schema.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("descriptor.schema.json")
	})
	return schema, schemaErr
}

// File is the on-disk setup descriptor.
type File struct {
	Project            string             `yaml:"project"`
	Books              string             `yaml:"books"`
	BookFormat         preview.BookFormat `yaml:"bookFormat"`
	UseProjectFont     bool               `yaml:"useProjectFont"`
	UseCustomFootnotes bool               `yaml:"useCustomFootnotes"`
	FontSizeInPts      float64            `yaml:"fontSizeInPts"`
	FontLeadingInPts   float64            `yaml:"fontLeadingInPts"`
	PageHeightInPts    float64            `yaml:"pageHeightInPts"`
	PageWidthInPts     float64            `yaml:"pageWidthInPts"`
	PageHeaderInPts    float64            `yaml:"pageHeaderInPts"`
	Archive            bool               `yaml:"archive"`
	Cancel             bool               `yaml:"cancel"`
}

// ParseFile decodes and schema-validates a YAML setup descriptor.
func ParseFile(data []byte) (*File, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Validation("descriptor", fmt.Sprintf("invalid YAML: %v", err))
	}
	if doc == nil {
		return nil, apperrors.Validation("descriptor", "descriptor is empty")
	}

	// The schema validator works on JSON values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.Validation("descriptor", fmt.Sprintf("descriptor is not a plain mapping: %v", err))
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, apperrors.Internal("setup.parse", err)
	}

	s, err := compiledSchema()
	if err != nil {
		return nil, apperrors.Internal("setup.schema", err)
	}
	if err := s.Validate(v); err != nil {
		return nil, schemaError(err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, apperrors.Validation("descriptor", fmt.Sprintf("invalid YAML: %v", err))
	}
	return &f, nil
}

// schemaError turns the most specific schema violation into a validation error.
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return apperrors.Validation("descriptor", err.Error())
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := strings.TrimPrefix(ve.InstanceLocation, "/")
	if field == "" {
		field = "descriptor"
	}
	return apperrors.Validation(field, fmt.Sprintf("%s: %s", field, ve.Message))
}

// FileCollector reads the descriptor from a YAML file and checks it against
// the host.
type FileCollector struct {
	path      string
	host      Host
	cancelled atomic.Bool
}

// NewFileCollector creates a collector for the descriptor at path.
func NewFileCollector(path string, host Host) *FileCollector {
	return &FileCollector{path: path, host: host}
}

// Cancel marks the setup as cancelled.
func (c *FileCollector) Cancel() {
	c.cancelled.Store(true)
}

// IsCancelled implements Collector.
func (c *FileCollector) IsCancelled() bool {
	return c.cancelled.Load()
}

// Descriptor implements Collector. A descriptor with cancel set marks the
// collector cancelled and is still returned.
func (c *FileCollector) Descriptor(ctx context.Context) (*Descriptor, error) {
	if err := ctx.Err(); err != nil {
		c.Cancel()
		return nil, err
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NotFound("setup file", c.path)
		}
		return nil, apperrors.Internal("setup.read", err)
	}

	f, err := ParseFile(data)
	if err != nil {
		return nil, err
	}
	if f.Cancel {
		c.Cancel()
	}
	return Resolve(f, c.host)
}

// Resolve validates f against host and builds the descriptor.
func Resolve(f *File, host Host) (*Descriptor, error) {
	params := preview.TypesettingParams{
		BookFormat:         f.BookFormat,
		UseProjectFont:     f.UseProjectFont,
		UseCustomFootnotes: f.UseCustomFootnotes,
		FontSizeInPts:      f.FontSizeInPts,
		FontLeadingInPts:   f.FontLeadingInPts,
		PageHeightInPts:    f.PageHeightInPts,
		PageWidthInPts:     f.PageWidthInPts,
		PageHeaderInPts:    f.PageHeaderInPts,
	}
	if err := ValidateParams(params); err != nil {
		return nil, err
	}

	project, err := host.ProjectDetails(f.Project)
	if err != nil {
		return nil, err
	}
	if f.UseCustomFootnotes && !host.FootnoteCallersDefined(project.ProjectName) {
		return nil, apperrors.Validation("useCustomFootnotes",
			fmt.Sprintf("project %s does not define a footnote caller sequence", project.ProjectName))
	}

	return &Descriptor{
		User:    host.CurrentUser(),
		Project: *project,
		Selection: preview.BibleSelectionParams{
			ProjectName:   project.ProjectName,
			SelectedBooks: NormalizeBooks(f.Books),
		},
		Params:      params,
		WantArchive: f.Archive,
	}, nil
}

// Verify FileCollector implements Collector
var _ Collector = (*FileCollector)(nil)
