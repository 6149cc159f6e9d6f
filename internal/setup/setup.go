// Package setup collects what to typeset and how before a preview job is
// submitted, and validates it against the host's projects.
package setup

import (
	"context"
	"preview/internal/apperrors"
	"preview/internal/preview"
	"strings"
)

// Collector supplies the job descriptor for a run.
type Collector interface {
	// Descriptor returns a validated descriptor.
	Descriptor(ctx context.Context) (*Descriptor, error)

	// IsCancelled reports whether the user backed out of the setup.
	IsCancelled() bool
}

// Host is the authoring environment the client runs in.
type Host interface {
	// CurrentUser returns the name attached to submitted jobs.
	CurrentUser() string

	// ProjectDetails looks up a project by name. A missing project is
	// reported as apperrors.ErrNotFound.
	ProjectDetails(name string) (*preview.ProjectDetails, error)

	// FootnoteCallersDefined reports whether the project defines a custom
	// footnote caller sequence.
	FootnoteCallersDefined(name string) bool
}

// Descriptor is everything needed to create a preview job.
type Descriptor struct {
	User        string
	Project     preview.ProjectDetails
	Selection   preview.BibleSelectionParams
	Params      preview.TypesettingParams
	WantArchive bool
}

// Job builds the unsubmitted job for d.
func (d *Descriptor) Job() *preview.PreviewJob {
	return preview.NewPreviewJob(d.User, d.Selection, d.Params)
}

// ValidateParams checks typesetting parameters for consistency beyond what
// the schema can express.
func ValidateParams(p preview.TypesettingParams) error {
	switch {
	case !p.BookFormat.Valid():
		return apperrors.Validation("bookFormat", "bookFormat must be one of: cav, tbotb")
	case p.FontSizeInPts <= 0:
		return apperrors.Validation("fontSizeInPts", "fontSizeInPts must be positive")
	case p.FontLeadingInPts < p.FontSizeInPts:
		return apperrors.Validation("fontLeadingInPts", "fontLeadingInPts must not be less than fontSizeInPts")
	case p.PageWidthInPts <= 0:
		return apperrors.Validation("pageWidthInPts", "pageWidthInPts must be positive")
	case p.PageHeightInPts <= 0:
		return apperrors.Validation("pageHeightInPts", "pageHeightInPts must be positive")
	case p.PageHeaderInPts < 0:
		return apperrors.Validation("pageHeaderInPts", "pageHeaderInPts must not be negative")
	case p.PageHeaderInPts+p.FontLeadingInPts > p.PageHeightInPts:
		return apperrors.Validation("pageHeaderInPts", "page header and one line of text must fit on the page")
	}
	return nil
}

// NormalizeBooks upper-cases book codes and removes blanks and duplicates,
// keeping the first occurrence of each.
func NormalizeBooks(books string) string {
	seen := make(map[string]bool)
	var out []string
	for code := range strings.SplitSeq(books, ",") {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return strings.Join(out, ",")
}
