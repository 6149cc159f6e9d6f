// Package preview defines the typesetting preview job model and its wire format.
package preview

import (
	"slices"
	"time"
)

// JobState is the kind of a single entry in a job's state history.
type JobState string

// Job states, in their usual order of appearance.
const (
	StateSubmitted        JobState = "Submitted"
	StateStarted          JobState = "Started"
	StatePreviewGenerated JobState = "PreviewGenerated"
	StateError            JobState = "Error"
	// StateCancelled is reported by servers that support remote cancellation.
	StateCancelled JobState = "Cancelled"
)

// IsTerminal reports whether no further state entries are expected after s.
func (s JobState) IsTerminal() bool {
	switch s {
	case StatePreviewGenerated, StateError, StateCancelled:
		return true
	default:
		return false
	}
}

// Known reports whether s is one of the defined job states.
func (s JobState) Known() bool {
	switch s {
	case StateSubmitted, StateStarted, StatePreviewGenerated, StateError, StateCancelled:
		return true
	default:
		return false
	}
}

// BookFormat selects the page layout used by the typesetter.
type BookFormat string

// Supported book formats
const (
	BookFormatCAV   BookFormat = "cav"   // chapter-and-verse layout
	BookFormatTBOTB BookFormat = "tbotb" // "the books of the bible" reader layout
)

// Valid reports whether f is a supported book format.
func (f BookFormat) Valid() bool {
	return f == BookFormatCAV || f == BookFormatTBOTB
}

// ProjectDetails describes the host project a job is built from.
type ProjectDetails struct {
	ProjectName    string    `json:"projectName"`
	ProjectUpdated time.Time `json:"projectUpdated,omitzero"`
}

// BibleSelectionParams identifies what to typeset.
type BibleSelectionParams struct {
	ProjectName   string `json:"projectName"`
	SelectedBooks string `json:"selectedBooks,omitempty"` // comma-separated book codes, empty = all
}

// TypesettingParams is the rendering configuration. Dimensions are in points.
type TypesettingParams struct {
	BookFormat         BookFormat `json:"bookFormat"`
	UseProjectFont     bool       `json:"useProjectFont"`
	UseCustomFootnotes bool       `json:"useCustomFootnotes"`
	FontSizeInPts      float64    `json:"fontSizeInPts"`
	FontLeadingInPts   float64    `json:"fontLeadingInPts"`
	PageHeightInPts    float64    `json:"pageHeightInPts"`
	PageWidthInPts     float64    `json:"pageWidthInPts"`
	PageHeaderInPts    float64    `json:"pageHeaderInPts"`
}

// PreviewJobState is one entry of a job's state history.
type PreviewJobState struct {
	State     JobState  `json:"state"`
	Timestamp time.Time `json:"dateSubmitted,omitzero"`
	Message   string    `json:"message,omitempty"`
}

// PreviewJob is a typesetting request and, once submitted, a snapshot of its
// server-side progress. Snapshots returned by the gateway must not be mutated.
type PreviewJob struct {
	ID                   string               `json:"id,omitempty"`
	User                 string               `json:"user"`
	BibleSelectionParams BibleSelectionParams `json:"bibleSelectionParams"`
	TypesettingParams    TypesettingParams    `json:"typesettingParams"`
	State                []PreviewJobState    `json:"state"`
}

// NewPreviewJob builds an unsubmitted job descriptor.
func NewPreviewJob(user string, selection BibleSelectionParams, params TypesettingParams) *PreviewJob {
	return &PreviewJob{
		User:                 user,
		BibleSelectionParams: selection,
		TypesettingParams:    params,
		State:                []PreviewJobState{},
	}
}

// Submitted reports whether the server has assigned an identifier.
func (j *PreviewJob) Submitted() bool {
	return j.ID != ""
}

// Current returns the last state entry, or nil when the job has been accepted
// but has not reported any state yet.
func (j *PreviewJob) Current() *PreviewJobState {
	if len(j.State) == 0 {
		return nil
	}
	last := j.State[len(j.State)-1]
	return &last
}

// CurrentState returns the kind of the last state entry, or "" when there is none.
func (j *PreviewJob) CurrentState() JobState {
	if cur := j.Current(); cur != nil {
		return cur.State
	}
	return ""
}

// Clone returns a deep copy of the job.
func (j *PreviewJob) Clone() *PreviewJob {
	c := *j
	c.State = slices.Clone(j.State)
	if c.State == nil {
		c.State = []PreviewJobState{}
	}
	return &c
}

// WithState returns a copy of the job with entries appended to its history.
func (j *PreviewJob) WithState(entries ...PreviewJobState) *PreviewJob {
	c := j.Clone()
	c.State = append(c.State, entries...)
	return c
}

// ServerStatus is the response of the server availability probe.
type ServerStatus struct {
	Version string `json:"version"`
}

// Artifact is a downloaded preview file. The caller owns the file at Path.
type Artifact struct {
	JobID   string `json:"jobId"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Archive bool   `json:"archive"`
}
