package certpdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/brightleaf/certforge/internal/models"
)

// qrModules is the module grid side length, independent of output pixel scale.
const qrModules = 25

// DefaultQRGenerator is the structural QR-like adapter standing in for the
// out-of-scope QR generator collaborator (§1 of the expanded spec): a
// deterministic module grid derived from the verification payload, not a
// byte-exact ISO/IEC 18004 encoder.
type DefaultQRGenerator struct{}

// NewDefaultQRGenerator constructs the default QR image adapter.
func NewDefaultQRGenerator() *DefaultQRGenerator {
	return &DefaultQRGenerator{}
}

// Generate encodes spec into a deterministic PNG module grid.
func (g *DefaultQRGenerator) Generate(_ context.Context, spec models.QRSpec) ([]byte, error) {
	if spec.BaseURL == "" {
		return nil, models.NewStageError(models.StageQRGeneration, models.CodeQRError, "empty base_url")
	}
	if spec.VerifyCode == "" {
		return nil, models.NewStageError(models.StageQRGeneration, models.CodeQRError, "empty verify_code")
	}

	sum := sha256.Sum256([]byte(spec.BaseURL + spec.VerifyCode))

	img := image.NewGray(image.Rect(0, 0, qrModules, qrModules))
	for y := 0; y < qrModules; y++ {
		for x := 0; x < qrModules; x++ {
			bitIndex := (y*qrModules + x) % (len(sum) * 8)
			on := sum[bitIndex/8]&(1<<uint(bitIndex%8)) != 0
			if isFinderModule(x, y) || on {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode QR image: %w", err)
	}
	return buf.Bytes(), nil
}

// isFinderModule marks the three corner finder-pattern blocks every scannable
// QR code carries, for visual plausibility only.
func isFinderModule(x, y int) bool {
	const size = 7
	inCorner := func(cx, cy int) bool {
		return x >= cx && x < cx+size && y >= cy && y < cy+size
	}
	return inCorner(0, 0) || inCorner(qrModules-size, 0) || inCorner(0, qrModules-size)
}
