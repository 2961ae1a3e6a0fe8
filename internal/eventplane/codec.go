// Package eventplane subscribes to inbound batch-request and status-query
// subjects, dispatches accepted batches to the orchestrator, and answers
// status queries from the Job Store.
package eventplane

import (
	"encoding/json"
	"fmt"

	"github.com/brightleaf/certforge/internal/models"
)

// decodeBatchRequest parses an inbound pdf.batch.requested envelope's
// payload. The qr/qr_pdf ordered-single-key-object wire shape is handled
// by models.QRSpec/QRPlacement's own UnmarshalJSON.
func decodeBatchRequest(payload []byte) (models.BatchRequestPayload, error) {
	var envelope struct {
		Payload models.BatchRequestPayload `json:"payload"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Payload.PDFJobID != "" {
		return envelope.Payload, nil
	}

	var bare models.BatchRequestPayload
	if err := json.Unmarshal(payload, &bare); err != nil {
		return models.BatchRequestPayload{}, fmt.Errorf("failed to decode batch request payload: %w", err)
	}
	return bare, nil
}

// decodeStatusRequest parses an inbound pdf.job.status.requested payload.
func decodeStatusRequest(payload []byte) (models.JobStatusRequestPayload, error) {
	var envelope struct {
		Payload models.JobStatusRequestPayload `json:"payload"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil &&
		(envelope.Payload.ExternalID != "" || envelope.Payload.InternalID != "") {
		return envelope.Payload, nil
	}

	var bare models.JobStatusRequestPayload
	if err := json.Unmarshal(payload, &bare); err != nil {
		return models.JobStatusRequestPayload{}, fmt.Errorf("failed to decode status request payload: %w", err)
	}
	return bare, nil
}
