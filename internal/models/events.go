package models

import "time"

// Subject names on the message bus.
const (
	SubjectBatchRequested    = "pdf.batch.requested"
	SubjectJobStatusRequest  = "pdf.job.status.requested"
	SubjectJobStatusResponse = "pdf.job.status.response"
	SubjectBatchAccepted     = "pdf.batch.accepted"
	SubjectItemCompleted     = "pdf.item.completed"
	SubjectItemFailed        = "pdf.item.failed"
	SubjectBatchCompleted    = "pdf.batch.completed"
	SubjectBatchFailed       = "pdf.batch.failed"
)

// EventSource identifies this service in every outbound envelope.
const EventSource = "certforge"

// Envelope wraps every outbound event: a fresh id, the subject name,
// an emission timestamp, and the event-specific payload.
type Envelope struct {
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Payload   interface{} `json:"payload"`
}

// ItemInput is one certificate request within an inbound batch.
type ItemInput struct {
	UserID       string        `json:"user_id"`
	TemplateID   string        `json:"template_id"`
	SerialCode   string        `json:"serial_code"`
	IsPublic     bool          `json:"is_public"`
	Placeholders []Placeholder `json:"pdf"`
	QR           QRSpec        `json:"qr"`
	Placement    QRPlacement   `json:"qr_pdf"`
}

// BatchRequestPayload is the `pdf.batch.requested` payload.
type BatchRequestPayload struct {
	PDFJobID string      `json:"pdf_job_id"`
	Items    []ItemInput `json:"items"`
}

// ItemResultData is the success payload nested under a completed item.
type ItemResultData struct {
	FileID           string    `json:"file_id"`
	FileName         string    `json:"file_name"`
	FileSize         int64     `json:"file_size"`
	FileHash         string    `json:"file_hash"`
	MimeType         string    `json:"mime_type"`
	IsPublic         bool      `json:"is_public"`
	DownloadURL      string    `json:"download_url"`
	CreatedAt        time.Time `json:"created_at"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
}

// ItemRoster is one entry of batch.completed's items[] array.
type ItemRoster struct {
	ItemID     string          `json:"item_id"`
	UserID     string          `json:"user_id"`
	SerialCode string          `json:"serial_code"`
	Status     string          `json:"status"`
	Data       *ItemResultData `json:"data,omitempty"`
	Error      *ItemError      `json:"error,omitempty"`
}

// BatchCompletedPayload is the `pdf.batch.completed` payload.
type BatchCompletedPayload struct {
	PDFJobID         string       `json:"pdf_job_id"`
	JobID            string       `json:"job_id"`
	Status           string       `json:"status"`
	TotalItems       int          `json:"total_items"`
	SuccessCount     int          `json:"success_count"`
	FailedCount      int          `json:"failed_count"`
	Items            []ItemRoster `json:"items"`
	ProcessingTimeMS int64        `json:"processing_time_ms"`
}

// BatchFailedPayload is the `pdf.batch.failed` payload, emitted only for
// accept-time rejection or non-item-scoped aborts.
type BatchFailedPayload struct {
	PDFJobID string `json:"pdf_job_id"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// BatchAcceptedPayload is the optional early-ack payload.
type BatchAcceptedPayload struct {
	PDFJobID   string `json:"pdf_job_id"`
	JobID      string `json:"job_id"`
	TotalItems int    `json:"total_items"`
}

// ItemEventPayload is the payload for a per-item pdf.item.completed/failed event.
type ItemEventPayload struct {
	PDFJobID string          `json:"pdf_job_id"`
	JobID    string          `json:"job_id"`
	ItemID   string          `json:"item_id"`
	UserID   string          `json:"user_id"`
	Status   string          `json:"status"`
	Data     *ItemResultData `json:"data,omitempty"`
	Error    *ItemError      `json:"error,omitempty"`
}

// JobStatusRequestPayload is the `pdf.job.status.requested` payload. Exactly
// one of ExternalID / InternalID is expected to be set.
type JobStatusRequestPayload struct {
	ExternalID string `json:"external_id,omitempty"`
	InternalID string `json:"internal_id,omitempty"`
	ReplyTo    string `json:"reply_to,omitempty"`
}

// JobStatusResponsePayload is the status snapshot returned for a job query.
type JobStatusResponsePayload struct {
	Found            bool         `json:"found"`
	PDFJobID         string       `json:"pdf_job_id,omitempty"`
	JobID            string       `json:"job_id,omitempty"`
	Status           string       `json:"status,omitempty"`
	TotalItems       int          `json:"total_items,omitempty"`
	SuccessCount     int          `json:"success_count,omitempty"`
	FailedCount      int          `json:"failed_count,omitempty"`
	Items            []ItemRoster `json:"items,omitempty"`
	ProcessingTimeMS int64        `json:"processing_time_ms,omitempty"`
}
