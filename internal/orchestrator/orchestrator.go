// Package orchestrator implements the Batch Orchestrator: it accepts a
// batch request, fans out its items with bounded concurrency over the
// item pipeline, aggregates per-item results under a per-job mutex, and
// finalizes and publishes the batch's terminal state.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightleaf/certforge/internal/common"
	"github.com/brightleaf/certforge/internal/interfaces"
	"github.com/brightleaf/certforge/internal/models"
	"github.com/brightleaf/certforge/internal/pipeline"
)

// Config bounds the orchestrator's behavior.
type Config struct {
	// Concurrency is the per-batch item parallelism P (default 4).
	Concurrency int
	// JobTTL is the Batch Job record's store TTL.
	JobTTL time.Duration
	// ScratchDir is the parent directory under which each item pipeline
	// run creates its own scratch subdirectory.
	ScratchDir string
	// Source identifies this service in outbound event envelopes.
	Source string
}

// Orchestrator wires the Job Store, Publisher and Item Pipeline
// collaborators into the accept/dispatch/finalize protocol.
type Orchestrator struct {
	store     interfaces.JobStore
	publisher interfaces.Publisher
	deps      pipeline.Dependencies
	cfg       Config
	logger    *common.Logger
	source    string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Orchestrator. deps.ScratchDir is replaced by
// cfg.ScratchDir, under which each item run creates its own
// <item_id>-prefixed subdirectory; callers should leave it zero.
func New(store interfaces.JobStore, publisher interfaces.Publisher, deps pipeline.Dependencies, cfg Config, logger *common.Logger) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	source := cfg.Source
	if source == "" {
		source = models.EventSource
	}
	deps.ScratchDir = cfg.ScratchDir
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:     store,
		publisher: publisher,
		deps:      deps,
		cfg:       cfg,
		logger:    logger,
		source:    source,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// safeGo launches a goroutine tracked by the orchestrator's WaitGroup,
// recovering any panic so one item's defect cannot take down the batch.
func (o *Orchestrator) safeGo(name string, fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in orchestrator goroutine")
			}
		}()
		fn()
	}()
}

// Close stops accepting new dispatch work and waits for in-flight items to
// reach a terminal state before returning. Batches already finalized are
// unaffected; batches still in flight finish their current item stage and
// commit state per the no-rollback cancellation contract.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// Accept runs the accept protocol for an inbound batch request and, on
// success, hands the job off to an asynchronous dispatch loop. It never
// returns a Go error to its caller (the event plane) — validation and
// duplicate-detection failures are reported as a published batch.failed
// event instead, per the malformed-inbound-handling contract.
func (o *Orchestrator) Accept(ctx context.Context, req models.BatchRequestPayload) {
	if req.PDFJobID == "" {
		o.publishBatchFailed(ctx, "", models.CodeValidationError, "pdf_job_id is required")
		return
	}
	if len(req.Items) == 0 {
		o.publishBatchFailed(ctx, req.PDFJobID, models.CodeValidationError, "items must be non-empty")
		return
	}

	if existing, err := o.store.GetByExternalID(ctx, req.PDFJobID); err != nil {
		o.logger.Warn().Str("pdf_job_id", req.PDFJobID).Err(err).Msg("duplicate lookup failed")
		o.publishBatchFailed(ctx, req.PDFJobID, models.CodeStoreError, "job store unavailable")
		return
	} else if existing != nil {
		o.publish(ctx, models.SubjectBatchFailed, models.BatchFailedPayload{
			PDFJobID: req.PDFJobID,
			Code:     models.CodeDuplicateReq,
			Message:  fmt.Sprintf("duplicate pdf_job_id, prior internal_id=%s", existing.InternalID),
		})
		return
	}

	job := &models.BatchJob{
		InternalID: uuid.NewString(),
		ExternalID: req.PDFJobID,
		Status:     models.JobStatusPending,
		Total:      len(req.Items),
		CreatedAt:  time.Now().UTC(),
		Items:      make([]*models.BatchItem, len(req.Items)),
	}
	for i, in := range req.Items {
		job.Items[i] = &models.BatchItem{
			ItemID:       uuid.NewString(),
			UserID:       in.UserID,
			SerialCode:   in.SerialCode,
			TemplateID:   in.TemplateID,
			Placeholders: in.Placeholders,
			QR:           in.QR,
			Placement:    in.Placement,
			IsPublic:     in.IsPublic,
			Status:       models.ItemStatusPending,
		}
	}

	if err := o.store.Save(ctx, job, o.cfg.JobTTL); err != nil {
		o.logger.Warn().Str("pdf_job_id", req.PDFJobID).Err(err).Msg("failed to persist accepted job")
		o.publishBatchFailed(ctx, req.PDFJobID, models.CodeStoreError, "failed to persist job")
		return
	}

	job.Status = models.JobStatusProcessing
	job.StartedAt = time.Now().UTC()
	if err := o.store.Save(ctx, job, o.cfg.JobTTL); err != nil {
		o.logger.Warn().Str("pdf_job_id", req.PDFJobID).Err(err).Msg("failed to persist processing transition")
	}

	o.publishBatchAccepted(ctx, job)

	o.safeGo("batch-"+job.InternalID, func() { o.runBatch(job) })
}

// runBatch executes the dispatch loop and finalization for an accepted
// job. It runs on the orchestrator's own long-lived context so an inbound
// message's context being canceled (e.g. subscriber shutdown) does not
// abort in-flight items, per the no-rollback cancellation contract.
func (o *Orchestrator) runBatch(job *models.BatchJob) {
	jobLogger := o.logger.WithCorrelationId(job.InternalID)

	var jobMu sync.Mutex
	sem := make(chan struct{}, o.cfg.Concurrency)
	var itemWG sync.WaitGroup

	for _, item := range job.Items {
		item := item
		select {
		case sem <- struct{}{}:
		case <-o.ctx.Done():
			return
		}

		itemWG.Add(1)
		o.safeGo("item-"+item.ItemID, func() {
			defer itemWG.Done()
			defer func() { <-sem }()

			deps := o.deps
			deps.Logger = jobLogger
			_ = pipeline.Run(o.ctx, deps, item)

			jobMu.Lock()
			if item.Status == models.ItemStatusCompleted {
				job.SuccessCount++
			} else {
				job.FailedCount++
			}
			if err := o.store.Save(o.ctx, job, o.cfg.JobTTL); err != nil {
				jobLogger.Warn().Str("job_id", job.InternalID).Err(err).Msg("failed to persist job after item completion")
			}
			jobMu.Unlock()

			o.publishItemEvent(o.ctx, job, item)
		})
	}

	itemWG.Wait()
	o.finalize(job, jobLogger)
}

func (o *Orchestrator) finalize(job *models.BatchJob, logger *common.Logger) {
	job.Finalize(time.Now().UTC())
	if err := o.store.Save(o.ctx, job, o.cfg.JobTTL); err != nil {
		logger.Warn().Str("job_id", job.InternalID).Err(err).Msg("failed to persist finalized job")
	}
	o.publishBatchCompleted(o.ctx, job)
}
