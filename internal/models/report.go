package models

import "time"

// ReportFormat is the rendered output type for session reports.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Valid returns true when the format is supported.
func (f ReportFormat) Valid() bool {
	return f == ReportFormatCSV || f == ReportFormatPDF
}

// ReportStatus is the lifecycle state of an export job.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "queued"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusFinished   ReportStatus = "finished"
	ReportStatusFailed     ReportStatus = "failed"
)

// ReportJob tracks one asynchronous attendance export. State lives in the
// cache with a TTL matching the export file retention.
type ReportJob struct {
	ID           string       `json:"id"`
	SessionID    string       `json:"session_id"`
	Format       ReportFormat `json:"format"`
	Status       ReportStatus `json:"status"`
	Progress     int          `json:"progress"`
	RequestedBy  string       `json:"requested_by"`
	ResultURL    *string      `json:"result_url,omitempty"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
}
