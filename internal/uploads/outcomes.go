package uploads

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

const outcomeInsertTimeout = 10 * time.Second

// Outcome describes how one image fared in the extraction worker.
type Outcome struct {
	SessionID       uuid.UUID
	PendingUploadID uuid.UUID
	OwnerID         uuid.UUID
	Outcome         string
	Model           string
	MimeType        string
	SizeBytes       int64
	Duration        time.Duration
	ErrorMessage    string
	RecordedAt      time.Time
}

// OutcomeRecorder ships per-image outcomes to an analytics sink. Failures are
// reported to the caller, which only logs them.
type OutcomeRecorder interface {
	Record(ctx context.Context, outcome Outcome) error
}

// NopRecorder drops every outcome.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Outcome) error { return nil }

type rowInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
	OutcomesTable() string
}

// BigQueryRecorder streams outcomes into the configured BigQuery table.
type BigQueryRecorder struct {
	client rowInserter
}

// NewBigQueryRecorder wraps a BigQuery client.
func NewBigQueryRecorder(client rowInserter) (*BigQueryRecorder, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return &BigQueryRecorder{client: client}, nil
}

type outcomeRow struct {
	SessionID       string    `bigquery:"session_id"`
	PendingUploadID string    `bigquery:"pending_upload_id"`
	OwnerID         string    `bigquery:"owner_id"`
	Outcome         string    `bigquery:"outcome"`
	Model           string    `bigquery:"model"`
	MimeType        string    `bigquery:"mime_type"`
	SizeBytes       int64     `bigquery:"size_bytes"`
	DurationMS      int64     `bigquery:"duration_ms"`
	ErrorMessage    string    `bigquery:"error_message"`
	RecordedAt      time.Time `bigquery:"recorded_at"`
}

func (r *BigQueryRecorder) Record(ctx context.Context, outcome Outcome) error {
	row := outcomeRow{
		SessionID:       outcome.SessionID.String(),
		PendingUploadID: outcome.PendingUploadID.String(),
		OwnerID:         outcome.OwnerID.String(),
		Outcome:         outcome.Outcome,
		Model:           outcome.Model,
		MimeType:        outcome.MimeType,
		SizeBytes:       outcome.SizeBytes,
		DurationMS:      outcome.Duration.Milliseconds(),
		ErrorMessage:    outcome.ErrorMessage,
		RecordedAt:      outcome.RecordedAt.UTC(),
	}

	insertCtx, cancel := context.WithTimeout(ctx, outcomeInsertTimeout)
	defer cancel()
	// Reprocessing after a restart re-records the same image; the insert id
	// lets BigQuery drop the duplicate.
	saver := &bigquery.StructSaver{
		Struct:   row,
		InsertID: outcome.PendingUploadID.String() + ":" + outcome.Outcome,
	}
	return r.client.InsertRows(insertCtx, r.client.OutcomesTable(), []any{saver})
}
