package eventplane

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightleaf/certforge/internal/common"
	"github.com/brightleaf/certforge/internal/interfaces"
	"github.com/brightleaf/certforge/internal/models"
)

// Accepter is the subset of the orchestrator the event plane dispatches
// accepted batches to.
type Accepter interface {
	Accept(ctx context.Context, req models.BatchRequestPayload)
}

// Plane subscribes to the inbound subjects, dispatches batch requests to
// the orchestrator, and answers job-status queries from the Job Store.
type Plane struct {
	subscriber interfaces.Subscriber
	publisher  interfaces.Publisher
	store      interfaces.JobStore
	accepter   Accepter
	logger     *common.Logger
	source     string

	wg sync.WaitGroup
}

// New constructs a Plane over its collaborators.
func New(subscriber interfaces.Subscriber, publisher interfaces.Publisher, store interfaces.JobStore, accepter Accepter, logger *common.Logger, source string) *Plane {
	if source == "" {
		source = models.EventSource
	}
	return &Plane{
		subscriber: subscriber,
		publisher:  publisher,
		store:      store,
		accepter:   accepter,
		logger:     logger,
		source:     source,
	}
}

// Start subscribes to both inbound subjects and blocks until ctx is
// canceled, then waits for both subscriber loops to return.
func (p *Plane) Start(ctx context.Context) {
	p.safeGo("batch-requested-subscriber", func() {
		if err := p.subscriber.Subscribe(ctx, models.SubjectBatchRequested, p.handleBatchRequested); err != nil {
			p.logger.Error().Err(err).Msg("batch.requested subscription ended")
		}
	})
	p.safeGo("status-requested-subscriber", func() {
		if err := p.subscriber.Subscribe(ctx, models.SubjectJobStatusRequest, p.handleStatusRequested); err != nil {
			p.logger.Error().Err(err).Msg("job.status.requested subscription ended")
		}
	})
	<-ctx.Done()
	p.wg.Wait()
}

func (p *Plane) safeGo(name string, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in event plane goroutine")
			}
		}()
		fn()
	}()
}

func (p *Plane) handleBatchRequested(ctx context.Context, payload []byte, reply func(context.Context, []byte) error) error {
	req, err := decodeBatchRequest(payload)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to decode batch request payload")
		p.publishBatchFailed(ctx, extractPDFJobIDBestEffort(payload), models.CodeValidationError, "malformed batch request payload")
		return nil
	}
	p.accepter.Accept(ctx, req)
	return nil
}

func (p *Plane) handleStatusRequested(ctx context.Context, payload []byte, reply func(context.Context, []byte) error) error {
	req, err := decodeStatusRequest(payload)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to decode status request payload")
		return nil
	}

	var job *models.BatchJob
	if req.InternalID != "" {
		job, err = p.store.Get(ctx, req.InternalID)
	} else if req.ExternalID != "" {
		job, err = p.store.GetByExternalID(ctx, req.ExternalID)
	}
	if err != nil {
		p.logger.Warn().Err(err).Msg("job status lookup failed")
		return nil
	}

	response := statusResponse(job)
	p.sendStatusResponse(ctx, response, req.ReplyTo, reply)
	return nil
}

func statusResponse(job *models.BatchJob) models.JobStatusResponsePayload {
	if job == nil {
		return models.JobStatusResponsePayload{Found: false}
	}
	items := make([]models.ItemRoster, len(job.Items))
	for i, it := range job.Items {
		items[i] = models.ItemRoster{
			ItemID:     it.ItemID,
			UserID:     it.UserID,
			SerialCode: it.SerialCode,
			Status:     it.Status,
			Error:      it.Error,
		}
	}
	return models.JobStatusResponsePayload{
		Found:            true,
		PDFJobID:         job.ExternalID,
		JobID:            job.InternalID,
		Status:           job.Status,
		TotalItems:       job.Total,
		SuccessCount:     job.SuccessCount,
		FailedCount:      job.FailedCount,
		Items:            items,
		ProcessingTimeMS: job.ProcessingMS,
	}
}

// sendStatusResponse prefers a direct reply (the bus's reply-to routing)
// when the caller set one; otherwise it publishes on the shared response
// subject, per §4.5's "either as a directly-addressed reply or on a
// pdf.job.status.response subject".
func (p *Plane) sendStatusResponse(ctx context.Context, response models.JobStatusResponsePayload, replyTo string, reply func(context.Context, []byte) error) {
	envelope := &models.Envelope{
		EventID:   uuid.NewString(),
		EventType: models.SubjectJobStatusResponse,
		Timestamp: time.Now().UTC(),
		Source:    p.source,
		Payload:   response,
	}

	if replyTo != "" {
		body, err := json.Marshal(envelope)
		if err != nil {
			p.logger.Warn().Err(err).Msg("failed to marshal status response")
			return
		}
		if err := reply(ctx, body); err != nil {
			p.logger.Warn().Err(err).Msg("failed to send direct status reply")
		}
		return
	}

	if err := p.publisher.Publish(ctx, models.SubjectJobStatusResponse, envelope); err != nil {
		p.logger.Warn().Err(err).Msg("failed to publish status response")
	}
}

func (p *Plane) publishBatchFailed(ctx context.Context, pdfJobID, code, message string) {
	envelope := &models.Envelope{
		EventID:   uuid.NewString(),
		EventType: models.SubjectBatchFailed,
		Timestamp: time.Now().UTC(),
		Source:    p.source,
		Payload: models.BatchFailedPayload{
			PDFJobID: pdfJobID,
			Code:     code,
			Message:  message,
		},
	}
	if err := p.publisher.Publish(ctx, models.SubjectBatchFailed, envelope); err != nil {
		p.logger.Warn().Err(err).Msg("failed to publish batch.failed for malformed request")
	}
}

// extractPDFJobIDBestEffort tries to recover pdf_job_id from a payload that
// otherwise failed strict decoding, so the batch.failed event can still
// carry the caller's external id when it's present in an otherwise
// malformed envelope.
func extractPDFJobIDBestEffort(payload []byte) string {
	var loose struct {
		PDFJobID string `json:"pdf_job_id"`
		Payload  struct {
			PDFJobID string `json:"pdf_job_id"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(payload, &loose); err != nil {
		return ""
	}
	if loose.Payload.PDFJobID != "" {
		return loose.Payload.PDFJobID
	}
	return loose.PDFJobID
}
