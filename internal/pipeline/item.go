// Package pipeline runs a single batch item through its strictly sequential
// stages: download -> render -> qr_generation -> qr_insertion -> upload.
// Each stage's failure is caught at its own boundary and attributed to that
// stage; the pipeline never panics the caller and never retries a stage
// itself (retries, where they exist, are the caller's responsibility).
package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/brightleaf/certforge/internal/certpdf"
	"github.com/brightleaf/certforge/internal/common"
	"github.com/brightleaf/certforge/internal/interfaces"
	"github.com/brightleaf/certforge/internal/models"
)

// Dependencies bundles the collaborators a single item run needs.
type Dependencies struct {
	Cache      interfaces.TemplateCache
	Gateway    interfaces.FileGateway
	Editor     interfaces.PDFEditor
	QR         interfaces.QRGenerator
	ScratchDir string
	Logger     *common.Logger
}

// Run executes item's full pipeline in place, mutating its Status/Result/
// Error fields, and returns nil — per the propagation policy, stage errors
// are terminal item state, never a returned error the orchestrator must
// handle specially.
func Run(ctx context.Context, deps Dependencies, item *models.BatchItem) error {
	scratchDir, err := os.MkdirTemp(deps.ScratchDir, item.ItemID+"-")
	if err != nil {
		item.Fail(models.NewItemError(item.UserID, models.StageOrchestration, models.CodeStoreError,
			fmt.Sprintf("failed to create scratch directory: %v", err)))
		return nil
	}
	defer os.RemoveAll(scratchDir)

	started := time.Now()

	template, stageErr := download(ctx, deps, item)
	if stageErr != nil {
		failItem(deps, item, stageErr)
		return nil
	}

	rendered, stageErr := render(ctx, deps, item, template)
	if stageErr != nil {
		failItem(deps, item, stageErr)
		return nil
	}

	qrImage, stageErr := generateQR(ctx, deps, item)
	if stageErr != nil {
		failItem(deps, item, stageErr)
		return nil
	}

	final, stageErr := insertQR(ctx, deps, item, rendered, qrImage)
	if stageErr != nil {
		failItem(deps, item, stageErr)
		return nil
	}

	result, stageErr := upload(ctx, deps, item, final, started)
	if stageErr != nil {
		failItem(deps, item, stageErr)
		return nil
	}

	item.Succeed(result)
	if deps.Logger != nil {
		deps.Logger.Info().Str("item_id", item.ItemID).Str("file_id", result.FileID).Msg("item completed")
	}
	return nil
}

func failItem(deps Dependencies, item *models.BatchItem, stageErr error) {
	itemErr := toItemError(item.UserID, stageErr)
	item.Fail(itemErr)
	if deps.Logger != nil {
		deps.Logger.Warn().Str("item_id", item.ItemID).Str("stage", string(itemErr.Stage)).Err(stageErr).Msg("item failed")
	}
}

func toItemError(userID string, err error) *models.ItemError {
	if se, ok := err.(*models.StageError); ok {
		return models.NewItemError(userID, se.Stage, se.Code, se.Message)
	}
	return models.NewItemError(userID, models.StageOrchestration, models.CodeStoreError, err.Error())
}

func download(ctx context.Context, deps Dependencies, item *models.BatchItem) ([]byte, error) {
	item.Status = models.ItemStatusDownloading
	data, err := deps.Cache.Get(ctx, item.TemplateID, func(ctx context.Context) ([]byte, error) {
		return deps.Gateway.Download(ctx, item.TemplateID)
	})
	if err != nil {
		return nil, models.NewStageError(models.StageDownload, models.CodeDownloadError, err.Error())
	}
	item.Status = models.ItemStatusDownloaded
	return data, nil
}

func render(ctx context.Context, deps Dependencies, item *models.BatchItem, template []byte) ([]byte, error) {
	item.Status = models.ItemStatusRendering
	out, err := deps.Editor.Render(ctx, template, item.Placeholders)
	if err != nil {
		return nil, models.NewStageError(models.StageRender, models.CodeRenderError, err.Error())
	}
	item.Status = models.ItemStatusRendered
	return out, nil
}

func generateQR(ctx context.Context, deps Dependencies, item *models.BatchItem) ([]byte, error) {
	item.Status = models.ItemStatusGeneratingQR
	img, err := deps.QR.Generate(ctx, item.QR)
	if err != nil {
		if se, ok := err.(*models.StageError); ok {
			return nil, se
		}
		return nil, models.NewStageError(models.StageQRGeneration, models.CodeQRError, err.Error())
	}
	item.Status = models.ItemStatusQRGenerated
	return img, nil
}

func insertQR(ctx context.Context, deps Dependencies, item *models.BatchItem, rendered, qrImage []byte) ([]byte, error) {
	item.Status = models.ItemStatusInsertingQR

	geom, err := certpdf.Inspect(rendered)
	if err != nil {
		return nil, models.NewStageError(models.StageQRInsertion, models.CodeInsertError, err.Error())
	}

	page, err := geom.PageAt(item.Placement.PageIndex)
	if err != nil {
		return nil, models.NewStageError(models.StageQRInsertion, models.CodeInsertError, err.Error())
	}

	if page.Orientation == certpdf.OrientationPortrait && item.Placement.ExplicitRect == nil {
		return nil, models.NewStageError(models.StageQRInsertion, models.CodeInsertError,
			"portrait page requires an explicit qr_rect placement")
	}

	rect := placementRect(page, item.Placement)

	final, err := deps.Editor.Stamp(ctx, rendered, qrImage, rect)
	if err != nil {
		return nil, models.NewStageError(models.StageQRInsertion, models.CodeInsertError, err.Error())
	}

	item.Status = models.ItemStatusQRInserted
	return final, nil
}

// placementRect resolves the stamp rectangle: an explicit rect if the
// caller supplied one, otherwise the landscape auto-compute rule — centered
// horizontally, anchored to the bottom with margin_y_cm above the bottom
// edge, size_cm square.
func placementRect(page *certpdf.PageGeometry, placement models.QRPlacement) models.Rect {
	if placement.ExplicitRect != nil {
		return *placement.ExplicitRect
	}

	sizePt := models.CmToPoints(placement.SizeCm)
	marginYPt := models.CmToPoints(placement.MarginYCm)
	x0 := (page.WidthPt - sizePt) / 2
	y0 := marginYPt
	return models.Rect{X0: x0, Y0: y0, X1: x0 + sizePt, Y1: y0 + sizePt}
}

func upload(ctx context.Context, deps Dependencies, item *models.BatchItem, final []byte, started time.Time) (*models.FileDescriptor, error) {
	item.Status = models.ItemStatusUploading

	fileName := fmt.Sprintf("%s.pdf", item.SerialCode)
	sum := sha256.Sum256(final)

	descriptor, err := deps.Gateway.Upload(ctx, interfaces.UploadRequest{
		FileName: fileName,
		UserID:   item.UserID,
		IsPublic: item.IsPublic,
		Content:  bytes.NewReader(final),
		Size:     int64(len(final)),
	})
	if err != nil {
		return nil, models.NewStageError(models.StageUpload, models.CodeUploadError, err.Error())
	}

	descriptor.FileHash = hex.EncodeToString(sum[:])
	descriptor.ProcessingTimeMS = time.Since(started).Milliseconds()
	return descriptor, nil
}
