// Package models defines the wire and persistence shapes for certforge.
package models

import "time"

// Batch job status values. Transitions are monotonic:
// pending -> processing -> {completed | partial | failed}.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusPartial    = "partial"
	JobStatusFailed     = "failed"
)

// Batch item status values, in pipeline order.
const (
	ItemStatusPending       = "pending"
	ItemStatusDownloading   = "downloading"
	ItemStatusDownloaded    = "downloaded"
	ItemStatusRendering     = "rendering"
	ItemStatusRendered      = "rendered"
	ItemStatusGeneratingQR  = "generating_qr"
	ItemStatusQRGenerated   = "qr_generated"
	ItemStatusInsertingQR   = "inserting_qr"
	ItemStatusQRInserted    = "qr_inserted"
	ItemStatusUploading     = "uploading"
	ItemStatusCompleted     = "completed"
	ItemStatusFailed        = "failed"
)

// itemProgress maps an item status to its displayed completion percentage.
var itemProgress = map[string]int{
	ItemStatusPending:      0,
	ItemStatusDownloading:  10,
	ItemStatusDownloaded:   20,
	ItemStatusRendering:    30,
	ItemStatusRendered:     50,
	ItemStatusGeneratingQR: 60,
	ItemStatusQRGenerated:  70,
	ItemStatusInsertingQR:  80,
	ItemStatusQRInserted:   85,
	ItemStatusUploading:    90,
	ItemStatusCompleted:    100,
	ItemStatusFailed:       100,
}

// ProgressForStatus returns the 0-100 progress percentage for an item status.
func ProgressForStatus(status string) int {
	return itemProgress[status]
}

// BatchJob is the outer unit of work tracked by the Job Store.
type BatchJob struct {
	InternalID    string        `json:"internal_id"`
	ExternalID    string        `json:"external_id"`
	Status        string        `json:"status"`
	Total         int           `json:"total"`
	SuccessCount  int           `json:"success_count"`
	FailedCount   int           `json:"failed_count"`
	CreatedAt     time.Time     `json:"created_at"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   time.Time     `json:"completed_at"`
	ProcessingMS  int64         `json:"processing_time_ms"`
	Items         []*BatchItem  `json:"items"`
}

// IsTerminal reports whether the job has reached one of its terminal states.
func (j *BatchJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusPartial, JobStatusFailed:
		return true
	default:
		return false
	}
}

// AllItemsTerminal reports whether every item in the job has reached a
// terminal status (completed or failed).
func (j *BatchJob) AllItemsTerminal() bool {
	for _, it := range j.Items {
		if !it.IsTerminal() {
			return false
		}
	}
	return true
}

// Finalize sets the job's terminal status from its success/failed counters,
// per the spec's finalization rule: success==total -> completed,
// failed==total -> failed, otherwise partial.
func (j *BatchJob) Finalize(now time.Time) {
	switch {
	case j.SuccessCount == j.Total && j.Total > 0:
		j.Status = JobStatusCompleted
	case j.FailedCount == j.Total && j.Total > 0:
		j.Status = JobStatusFailed
	default:
		j.Status = JobStatusPartial
	}
	j.CompletedAt = now
	j.ProcessingMS = now.Sub(j.StartedAt).Milliseconds()
}

// Placeholder is a single {{key}} -> value substitution applied to a template.
type Placeholder struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FileDescriptor is the successful result of uploading a rendered certificate.
type FileDescriptor struct {
	FileID           string    `json:"file_id"`
	FileName         string    `json:"file_name"`
	FileSizeBytes    int64     `json:"file_size_bytes"`
	FileHash         string    `json:"file_hash"` // sha256 of the final PDF bytes
	MimeType         string    `json:"mime_type"`
	IsPublic         bool      `json:"is_public"`
	DownloadURL      string    `json:"download_url"`
	CreatedAt        time.Time `json:"created_at"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
}

// BatchItem is one certificate within a batch.
type BatchItem struct {
	ItemID      string       `json:"item_id"`
	UserID      string       `json:"user_id"`
	SerialCode  string       `json:"serial_code"`
	TemplateID  string       `json:"template_id"`
	Placeholders []Placeholder `json:"placeholders"`
	QR          QRSpec       `json:"qr"`
	Placement   QRPlacement  `json:"qr_placement"`
	IsPublic    bool         `json:"is_public"`

	Status   string           `json:"status"`
	Result   *FileDescriptor  `json:"result,omitempty"`
	Error    *ItemError       `json:"error,omitempty"`

	startedAt time.Time
}

// IsTerminal reports whether the item has reached completed or failed.
func (i *BatchItem) IsTerminal() bool {
	return i.Status == ItemStatusCompleted || i.Status == ItemStatusFailed
}

// Progress returns the item's current 0-100 completion percentage.
func (i *BatchItem) Progress() int {
	return ProgressForStatus(i.Status)
}

// Succeed transitions the item to completed with the given result. Sticky:
// callers must not invoke this on an already-terminal item.
func (i *BatchItem) Succeed(result *FileDescriptor) {
	i.Status = ItemStatusCompleted
	i.Result = result
	i.Error = nil
}

// Fail transitions the item to failed with the given error envelope.
func (i *BatchItem) Fail(err *ItemError) {
	i.Status = ItemStatusFailed
	i.Error = err
	i.Result = nil
}
