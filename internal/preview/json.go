package preview

import (
	"encoding/json"
	"fmt"
	"io"
)

// MarshalJob encodes a job in the wire format.
func MarshalJob(j *PreviewJob) ([]byte, error) {
	if j == nil {
		return nil, fmt.Errorf("nil job")
	}
	out := j
	if j.State == nil {
		// Always send an explicit list so the server sees an empty history.
		out = j.Clone()
	}
	return json.Marshal(out)
}

// UnmarshalJob decodes a job from the wire format.
func UnmarshalJob(data []byte) (*PreviewJob, error) {
	var j PreviewJob
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preview job: %w", err)
	}
	if j.State == nil {
		j.State = []PreviewJobState{}
	}
	for i, s := range j.State {
		if s.State == "" {
			return nil, fmt.Errorf("state[%d]: state kind is required", i)
		}
	}
	return &j, nil
}

// DecodeJob reads a single job from r.
func DecodeJob(r io.Reader) (*PreviewJob, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read preview job: %w", err)
	}
	return UnmarshalJob(data)
}

// DecodeServerStatus reads a status probe response from r.
// An empty version is treated as malformed.
func DecodeServerStatus(r io.Reader) (*ServerStatus, error) {
	var s ServerStatus
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode server status: %w", err)
	}
	if s.Version == "" {
		return nil, fmt.Errorf("server status has no version")
	}
	return &s, nil
}
