// Package interfaces declares the external collaborators the orchestration
// core depends on: the message bus, the key-value store with lists, the
// file gateway, and the PDF/QR rendering collaborators. One interface per
// collaborator, matching each to a single concrete adapter.
package interfaces

import (
	"context"
	"io"
	"time"

	"github.com/brightleaf/certforge/internal/models"
)

// JobStore persists BatchJob records under a TTL.
type JobStore interface {
	Save(ctx context.Context, job *models.BatchJob, ttl time.Duration) error
	Get(ctx context.Context, internalID string) (*models.BatchJob, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.BatchJob, error)
	Delete(ctx context.Context, internalID string) error
}

// Queue is a FIFO list used by the staged (queue-drain) orchestration layout.
type Queue interface {
	Push(ctx context.Context, queueName string, payload []byte) error
	BlockingPop(ctx context.Context, queueName string, wait time.Duration) ([]byte, error)
}

// Lock is a non-reentrant distributed mutex keyed by name, used by the
// Template Cache to guarantee at most one in-flight download per template.
type Lock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Publisher emits an event envelope on a named subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, envelope *models.Envelope) error
}

// Subscriber delivers inbound messages on a named subject to handler until
// the context is canceled.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(ctx context.Context, payload []byte, reply func(ctx context.Context, payload []byte) error) error) error
	Close() error
}

// FileGateway is the external file store: template download, result upload.
type FileGateway interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
	Upload(ctx context.Context, req UploadRequest) (*models.FileDescriptor, error)
}

// UploadRequest carries the final rendered certificate bytes and metadata
// for a file gateway upload.
type UploadRequest struct {
	FileName string
	UserID   string
	IsPublic bool
	Content  io.Reader
	Size     int64
}

// PDFEditor renders placeholder substitutions into a template's bytes and
// stamps a QR image onto a rendered PDF at a given rect, producing the final
// certificate PDF. This is the named out-of-scope "PDF edit engine"
// collaborator (§1): this repo owns the pipeline sequencing around it, not
// the rendering algorithm itself.
type PDFEditor interface {
	Render(ctx context.Context, template []byte, placeholders []models.Placeholder) ([]byte, error)
	Stamp(ctx context.Context, pdf []byte, qrPNG []byte, rect models.Rect) ([]byte, error)
}

// QRGenerator encodes a QRSpec into a QR code image. This is the named
// out-of-scope "QR generator" collaborator (§1).
type QRGenerator interface {
	Generate(ctx context.Context, spec models.QRSpec) ([]byte, error)
}

// TemplateCache fetches template bytes by id, coalescing concurrent callers
// for the same id into a single gateway download (single-flight), backed by
// a memory tier and a disk tier.
type TemplateCache interface {
	Get(ctx context.Context, templateID string, fetch func(ctx context.Context) ([]byte, error)) ([]byte, error)
}
