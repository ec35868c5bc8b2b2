package enums

import "fmt"

// UploadSessionStatus tracks a bulk upload batch through its lifecycle.
type UploadSessionStatus string

const (
	UploadSessionStatusPending    UploadSessionStatus = "pending"
	UploadSessionStatusUploading  UploadSessionStatus = "uploading"
	UploadSessionStatusProcessing UploadSessionStatus = "processing"
	UploadSessionStatusCompleted  UploadSessionStatus = "completed"
	UploadSessionStatusExpired    UploadSessionStatus = "expired"
	UploadSessionStatusCancelled  UploadSessionStatus = "cancelled"
)

var validUploadSessionStatuses = []UploadSessionStatus{
	UploadSessionStatusPending,
	UploadSessionStatusUploading,
	UploadSessionStatusProcessing,
	UploadSessionStatusCompleted,
	UploadSessionStatusExpired,
	UploadSessionStatusCancelled,
}

// uploadSessionTransitions is the complete edge list of the session graph.
// expired and cancelled are reachable from every non-terminal state.
var uploadSessionTransitions = map[UploadSessionStatus][]UploadSessionStatus{
	UploadSessionStatusPending: {
		UploadSessionStatusUploading,
		UploadSessionStatusExpired,
		UploadSessionStatusCancelled,
	},
	UploadSessionStatusUploading: {
		UploadSessionStatusProcessing,
		UploadSessionStatusExpired,
		UploadSessionStatusCancelled,
	},
	UploadSessionStatusProcessing: {
		UploadSessionStatusCompleted,
		UploadSessionStatusExpired,
		UploadSessionStatusCancelled,
	},
}

// String returns the literal string for the status.
func (s UploadSessionStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is known.
func (s UploadSessionStatus) IsValid() bool {
	for _, candidate := range validUploadSessionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status.
func (s UploadSessionStatus) IsTerminal() bool {
	switch s {
	case UploadSessionStatusCompleted, UploadSessionStatusExpired, UploadSessionStatusCancelled:
		return true
	default:
		return false
	}
}

// ImageAcceptingUploadSessionStatuses are the statuses that still take new images.
var ImageAcceptingUploadSessionStatuses = []UploadSessionStatus{
	UploadSessionStatusPending,
	UploadSessionStatusUploading,
}

// AcceptsImages reports whether new images may still be attached.
func (s UploadSessionStatus) AcceptsImages() bool {
	return s == UploadSessionStatusPending || s == UploadSessionStatusUploading
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s UploadSessionStatus) CanTransitionTo(next UploadSessionStatus) bool {
	for _, candidate := range uploadSessionTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// SourcesFor lists every status that may legally move to target. The
// repository uses it to build conditional updates.
func SourcesFor(target UploadSessionStatus) []UploadSessionStatus {
	sources := make([]UploadSessionStatus, 0, len(uploadSessionTransitions))
	for _, candidate := range validUploadSessionStatuses {
		if candidate.CanTransitionTo(target) {
			sources = append(sources, candidate)
		}
	}
	return sources
}

// ParseUploadSessionStatus converts raw input into an UploadSessionStatus.
func ParseUploadSessionStatus(value string) (UploadSessionStatus, error) {
	for _, candidate := range validUploadSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid upload session status %q", value)
}
