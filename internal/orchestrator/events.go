package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brightleaf/certforge/internal/models"
)

// envelope wraps payload in a fresh Envelope stamped with this service's
// source identity and the current time.
func (o *Orchestrator) envelope(subject string, payload interface{}) *models.Envelope {
	return &models.Envelope{
		EventID:   uuid.NewString(),
		EventType: subject,
		Timestamp: time.Now().UTC(),
		Source:    o.source,
		Payload:   payload,
	}
}

func (o *Orchestrator) publish(ctx context.Context, subject string, payload interface{}) {
	if err := o.publisher.Publish(ctx, subject, o.envelope(subject, payload)); err != nil {
		o.logger.Warn().Str("subject", subject).Err(err).Msg("failed to publish event")
	}
}

func (o *Orchestrator) publishBatchFailed(ctx context.Context, pdfJobID, code, message string) {
	o.publish(ctx, models.SubjectBatchFailed, models.BatchFailedPayload{
		PDFJobID: pdfJobID,
		Code:     code,
		Message:  message,
	})
}

func (o *Orchestrator) publishBatchAccepted(ctx context.Context, job *models.BatchJob) {
	o.publish(ctx, models.SubjectBatchAccepted, models.BatchAcceptedPayload{
		PDFJobID:   job.ExternalID,
		JobID:      job.InternalID,
		TotalItems: job.Total,
	})
}

func (o *Orchestrator) publishItemEvent(ctx context.Context, job *models.BatchJob, item *models.BatchItem) {
	subject := models.SubjectItemCompleted
	payload := models.ItemEventPayload{
		PDFJobID: job.ExternalID,
		JobID:    job.InternalID,
		ItemID:   item.ItemID,
		UserID:   item.UserID,
		Status:   item.Status,
	}
	if item.Status == models.ItemStatusFailed {
		subject = models.SubjectItemFailed
		payload.Error = item.Error
	} else {
		payload.Data = resultData(item)
	}
	o.publish(ctx, subject, payload)
}

func (o *Orchestrator) publishBatchCompleted(ctx context.Context, job *models.BatchJob) {
	items := make([]models.ItemRoster, len(job.Items))
	for i, it := range job.Items {
		items[i] = models.ItemRoster{
			ItemID:     it.ItemID,
			UserID:     it.UserID,
			SerialCode: it.SerialCode,
			Status:     it.Status,
			Error:      it.Error,
		}
		if it.Status != models.ItemStatusFailed {
			items[i].Data = resultData(it)
		}
	}
	o.publish(ctx, models.SubjectBatchCompleted, models.BatchCompletedPayload{
		PDFJobID:         job.ExternalID,
		JobID:            job.InternalID,
		Status:           job.Status,
		TotalItems:       job.Total,
		SuccessCount:     job.SuccessCount,
		FailedCount:      job.FailedCount,
		Items:            items,
		ProcessingTimeMS: job.ProcessingMS,
	})
}

func resultData(item *models.BatchItem) *models.ItemResultData {
	if item.Result == nil {
		return nil
	}
	return &models.ItemResultData{
		FileID:           item.Result.FileID,
		FileName:         item.Result.FileName,
		FileSize:         item.Result.FileSizeBytes,
		FileHash:         item.Result.FileHash,
		MimeType:         item.Result.MimeType,
		IsPublic:         item.Result.IsPublic,
		DownloadURL:      item.Result.DownloadURL,
		CreatedAt:        item.Result.CreatedAt,
		ProcessingTimeMS: item.Result.ProcessingTimeMS,
	}
}
