package preview

import (
	"strings"
	"testing"
	"time"
)

func testJob() *PreviewJob {
	return NewPreviewJob("testUser",
		BibleSelectionParams{ProjectName: "testProjectName", SelectedBooks: "GEN,EXO"},
		TypesettingParams{
			BookFormat:         BookFormatCAV,
			UseCustomFootnotes: true,
			FontSizeInPts:      9.2,
			FontLeadingInPts:   10.4,
			PageHeightInPts:    792,
			PageWidthInPts:     612,
			PageHeaderInPts:    20,
		},
	)
}

func TestJobState_IsTerminal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state    JobState
		terminal bool
	}{
		{StateSubmitted, false},
		{StateStarted, false},
		{StatePreviewGenerated, true},
		{StateError, true},
		{StateCancelled, true},
		{JobState("Bogus"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			t.Parallel()
			if got := tt.state.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestBookFormat_Valid(t *testing.T) {
	t.Parallel()
	if !BookFormatCAV.Valid() || !BookFormatTBOTB.Valid() {
		t.Error("expected known formats to be valid")
	}
	if BookFormat("folio").Valid() {
		t.Error("expected unknown format to be invalid")
	}
}

func TestPreviewJob_Current(t *testing.T) {
	t.Parallel()
	job := testJob()

	if job.Current() != nil {
		t.Fatal("expected no current state for a new job")
	}
	if job.CurrentState() != "" {
		t.Errorf("expected empty current state, got %q", job.CurrentState())
	}

	job = job.WithState(
		PreviewJobState{State: StateSubmitted},
		PreviewJobState{State: StateStarted},
	)
	if job.CurrentState() != StateStarted {
		t.Errorf("expected Started, got %q", job.CurrentState())
	}
}

func TestPreviewJob_CurrentUsesLastEntry(t *testing.T) {
	t.Parallel()
	job := testJob().WithState(
		PreviewJobState{State: StateError, Message: "early failure"},
		PreviewJobState{State: StatePreviewGenerated},
	)

	if job.CurrentState() != StatePreviewGenerated {
		t.Errorf("expected last entry PreviewGenerated, got %q", job.CurrentState())
	}
}

func TestPreviewJob_WithStateDoesNotMutate(t *testing.T) {
	t.Parallel()
	original := testJob().WithState(PreviewJobState{State: StateSubmitted})
	next := original.WithState(PreviewJobState{State: StateStarted})

	if len(original.State) != 1 {
		t.Errorf("expected original history to stay at 1 entry, got %d", len(original.State))
	}
	if len(next.State) != 2 {
		t.Errorf("expected new history to have 2 entries, got %d", len(next.State))
	}

	next.State[0].Message = "changed"
	if original.State[0].Message != "" {
		t.Error("expected clone to not share state history")
	}
}

func TestPreviewJob_Submitted(t *testing.T) {
	t.Parallel()
	job := testJob()
	if job.Submitted() {
		t.Error("expected new job to be unsubmitted")
	}
	job.ID = "abc"
	if !job.Submitted() {
		t.Error("expected job with id to be submitted")
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	t.Parallel()
	ts := time.Date(2022, 3, 14, 15, 9, 26, 0, time.UTC)
	job := testJob()
	job.ID = "7c1d3b0e-7a57-4d0c-9d58-d4b1f1f1f001"
	job = job.WithState(
		PreviewJobState{State: StateSubmitted, Timestamp: ts},
		PreviewJobState{State: StateStarted, Timestamp: ts.Add(time.Second)},
		PreviewJobState{State: StateError, Timestamp: ts.Add(2 * time.Second), Message: "missing font"},
	)

	data, err := MarshalJob(job)
	if err != nil {
		t.Fatalf("MarshalJob() error = %v", err)
	}

	parsed, err := UnmarshalJob(data)
	if err != nil {
		t.Fatalf("UnmarshalJob() error = %v", err)
	}

	if parsed.ID != job.ID {
		t.Errorf("ID = %q, want %q", parsed.ID, job.ID)
	}
	if parsed.User != job.User {
		t.Errorf("User = %q, want %q", parsed.User, job.User)
	}
	if parsed.BibleSelectionParams != job.BibleSelectionParams {
		t.Errorf("BibleSelectionParams = %+v, want %+v", parsed.BibleSelectionParams, job.BibleSelectionParams)
	}
	if parsed.TypesettingParams != job.TypesettingParams {
		t.Errorf("TypesettingParams = %+v, want %+v", parsed.TypesettingParams, job.TypesettingParams)
	}
	if len(parsed.State) != len(job.State) {
		t.Fatalf("expected %d states, got %d", len(job.State), len(parsed.State))
	}
	for i := range job.State {
		want, got := job.State[i], parsed.State[i]
		if got.State != want.State || got.Message != want.Message || !got.Timestamp.Equal(want.Timestamp) {
			t.Errorf("state[%d] = %+v, want %+v", i, got, want)
		}
	}
}

func TestMarshalJob_UnsubmittedHasEmptyStateList(t *testing.T) {
	t.Parallel()
	job := testJob()
	job.State = nil

	data, err := MarshalJob(job)
	if err != nil {
		t.Fatalf("MarshalJob() error = %v", err)
	}
	s := string(data)
	if strings.Contains(s, `"id"`) {
		t.Errorf("expected no id field for unsubmitted job, got %s", s)
	}
	if !strings.Contains(s, `"state":[]`) {
		t.Errorf("expected explicit empty state list, got %s", s)
	}
}

func TestUnmarshalJob_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		json string
	}{
		{"not json", "not json"},
		{"state without kind", `{"id":"a","state":[{"message":"x"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := UnmarshalJob([]byte(tt.json)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestUnmarshalJob_MissingStateList(t *testing.T) {
	t.Parallel()
	job, err := UnmarshalJob([]byte(`{"id":"abc","user":"u"}`))
	if err != nil {
		t.Fatalf("UnmarshalJob() error = %v", err)
	}
	if job.State == nil || len(job.State) != 0 {
		t.Errorf("expected empty non-nil state list, got %#v", job.State)
	}
}

func TestDecodeServerStatus(t *testing.T) {
	t.Parallel()
	status, err := DecodeServerStatus(strings.NewReader(`{"version":"1.2.3"}`))
	if err != nil {
		t.Fatalf("DecodeServerStatus() error = %v", err)
	}
	if status.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", status.Version)
	}

	if _, err := DecodeServerStatus(strings.NewReader(`{}`)); err == nil {
		t.Error("expected error for missing version")
	}
	if _, err := DecodeServerStatus(strings.NewReader(`<html>`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}
