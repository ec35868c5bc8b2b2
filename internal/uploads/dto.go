package uploads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/spoolhub-backend/pkg/db/models"
	"github.com/angelmondragon/spoolhub-backend/pkg/enums"
	"github.com/angelmondragon/spoolhub-backend/pkg/types"
)

// ImageFile is one validated image taken from a multipart request.
type ImageFile struct {
	Name     string
	MimeType string
	Ext      string
	Data     []byte
}

type SessionCreatedDTO struct {
	Token     string                    `json:"token"`
	Status    enums.UploadSessionStatus `json:"status"`
	ExpiresAt time.Time                 `json:"expiresAt"`
}

type BulkUploadDTO struct {
	Token         string    `json:"token"`
	UploadedCount int       `json:"uploadedCount"`
	FailedCount   int       `json:"failedCount"`
	TotalCount    int       `json:"totalCount"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type SessionInfoDTO struct {
	Status     enums.UploadSessionStatus `json:"status"`
	ImageCount int                       `json:"imageCount"`
	ExpiresAt  time.Time                 `json:"expiresAt"`
}

type AddImagesDTO struct {
	UploadedCount int `json:"uploadedCount"`
	FailedCount   int `json:"failedCount"`
	TotalCount    int `json:"totalCount"`
}

type PendingUploadDTO struct {
	ID            uuid.UUID                 `json:"id"`
	SessionID     uuid.UUID                 `json:"sessionId"`
	ImageURL      string                    `json:"imageUrl"`
	OriginalName  string                    `json:"originalName"`
	MimeType      string                    `json:"mimeType"`
	SizeBytes     int64                     `json:"sizeBytes"`
	Status        enums.PendingUploadStatus `json:"status"`
	ExtractedData *types.ExtractedData      `json:"extractedData,omitempty"`
	ErrorMessage  *string                   `json:"errorMessage,omitempty"`
	CreatedAt     time.Time                 `json:"createdAt"`
	ProcessedAt   *time.Time                `json:"processedAt,omitempty"`
}

type SessionStatusDTO struct {
	Status         enums.UploadSessionStatus `json:"status"`
	ImageCount     int                       `json:"imageCount"`
	Images         []PendingUploadDTO        `json:"images"`
	ProcessedCount int                       `json:"processedCount"`
	PendingCount   int                       `json:"pendingCount"`
	ExpiresAt      time.Time                 `json:"expiresAt"`
	Processing     bool                      `json:"processing"`
}

type StartProcessingDTO struct {
	Status         enums.UploadSessionStatus `json:"status"`
	Results        []PendingUploadDTO        `json:"results"`
	Processing     bool                      `json:"processing"`
	ProcessedCount int                       `json:"processedCount"`
	TotalCount     int                       `json:"totalCount"`
}

type CancelDTO struct {
	CancelledCount int                       `json:"cancelledCount"`
	Status         enums.UploadSessionStatus `json:"status"`
}

type PendingListDTO struct {
	Items          []PendingUploadDTO `json:"items"`
	PendingCount   int                `json:"pendingCount"`
	ProcessedCount int                `json:"processedCount"`
	TotalCount     int                `json:"totalCount"`
	NextCursor     string             `json:"nextCursor,omitempty"`
}

func toPendingUploadDTO(upload models.PendingUpload) PendingUploadDTO {
	return PendingUploadDTO{
		ID:            upload.ID,
		SessionID:     upload.SessionID,
		ImageURL:      upload.ImageLocator,
		OriginalName:  upload.OriginalName,
		MimeType:      upload.MimeType,
		SizeBytes:     upload.SizeBytes,
		Status:        upload.Status,
		ExtractedData: upload.ExtractedData,
		ErrorMessage:  upload.ErrorMessage,
		CreatedAt:     upload.CreatedAt,
		ProcessedAt:   upload.ProcessedAt,
	}
}

// summarize converts uploads to DTOs, dropping imported rows, and counts
// processed (ready/error) and unprocessed (pending/processing) entries.
func summarize(uploads []models.PendingUpload) (items []PendingUploadDTO, processed, unprocessed int) {
	items = make([]PendingUploadDTO, 0, len(uploads))
	for _, upload := range uploads {
		if upload.Status == enums.PendingUploadStatusImported {
			continue
		}
		switch {
		case upload.Status.IsProcessed():
			processed++
		case upload.Status.IsUnprocessed():
			unprocessed++
		}
		items = append(items, toPendingUploadDTO(upload))
	}
	return items, processed, unprocessed
}
