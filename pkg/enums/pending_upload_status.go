package enums

import "fmt"

// PendingUploadStatus describes the extraction state of a single uploaded image.
type PendingUploadStatus string

const (
	PendingUploadStatusPending    PendingUploadStatus = "pending"
	PendingUploadStatusProcessing PendingUploadStatus = "processing"
	PendingUploadStatusReady      PendingUploadStatus = "ready"
	PendingUploadStatusError      PendingUploadStatus = "error"
	PendingUploadStatusCancelled  PendingUploadStatus = "cancelled"
	PendingUploadStatusImported   PendingUploadStatus = "imported"
)

var validPendingUploadStatuses = []PendingUploadStatus{
	PendingUploadStatusPending,
	PendingUploadStatusProcessing,
	PendingUploadStatusReady,
	PendingUploadStatusError,
	PendingUploadStatusCancelled,
	PendingUploadStatusImported,
}

// UnprocessedPendingUploadStatuses are the statuses the extraction worker still has to visit.
var UnprocessedPendingUploadStatuses = []PendingUploadStatus{
	PendingUploadStatusPending,
	PendingUploadStatusProcessing,
}

// DashboardPendingUploadStatuses are the statuses listed on the cross-session dashboard.
var DashboardPendingUploadStatuses = []PendingUploadStatus{
	PendingUploadStatusPending,
	PendingUploadStatusProcessing,
	PendingUploadStatusReady,
	PendingUploadStatusError,
}

// String returns the literal string for the status.
func (s PendingUploadStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is known.
func (s PendingUploadStatus) IsValid() bool {
	for _, candidate := range validPendingUploadStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsProcessed reports whether extraction finished for the image, successfully or not.
func (s PendingUploadStatus) IsProcessed() bool {
	return s == PendingUploadStatusReady || s == PendingUploadStatusError
}

// IsUnprocessed reports whether the worker still has to visit the image.
func (s PendingUploadStatus) IsUnprocessed() bool {
	return s == PendingUploadStatusPending || s == PendingUploadStatusProcessing
}

// ParsePendingUploadStatus converts raw input into a PendingUploadStatus.
func ParsePendingUploadStatus(value string) (PendingUploadStatus, error) {
	for _, candidate := range validPendingUploadStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pending upload status %q", value)
}
