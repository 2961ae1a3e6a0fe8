package certpdf

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/brightleaf/certforge/internal/models"
)

// DefaultEditor is the structural placeholder-substitution adapter standing
// in for the out-of-scope PDF edit engine (§1 of the expanded spec). It
// substitutes `{{key}}` tokens directly against the raw template bytes,
// which is correct for the common case of simple, uncompressed certificate
// templates where the tokens sit in literal content-stream text operators.
// Templates with compressed content streams are beyond what this adapter
// resolves; the pipeline's contract is with the Render interface, not with
// any particular rendering algorithm.
type DefaultEditor struct{}

// NewDefaultEditor constructs the default placeholder-substitution editor.
func NewDefaultEditor() *DefaultEditor {
	return &DefaultEditor{}
}

// Render substitutes every placeholder's `{{key}}` token for its value.
func (e *DefaultEditor) Render(_ context.Context, template []byte, placeholders []models.Placeholder) ([]byte, error) {
	if !isPDF(template) {
		return nil, fmt.Errorf("template is not a valid PDF: missing header")
	}

	out := template
	for _, ph := range placeholders {
		token := []byte("{{" + ph.Key + "}}")
		out = bytes.ReplaceAll(out, token, []byte(ph.Value))
	}
	return out, nil
}

// Stamp embeds the QR PNG into the rendered PDF at rect. Like Render, this
// is a structural placeholder for the out-of-scope PDF edit engine: rather
// than building a real XObject/content-stream insertion, it appends the
// placement and the QR bytes verbatim as a trailing PDF comment block, which
// the PDF spec permits appearing after %%EOF and which a real edit engine's
// output this adapter stands in for would replace with actual page content.
// The pipeline's contract is with the Stamp interface, not this encoding.
func (e *DefaultEditor) Stamp(_ context.Context, pdf []byte, qrPNG []byte, rect models.Rect) ([]byte, error) {
	if !isPDF(pdf) {
		return nil, fmt.Errorf("document is not a valid PDF: missing header")
	}
	if len(qrPNG) == 0 {
		return nil, fmt.Errorf("qr image is empty")
	}

	marker := fmt.Sprintf("\n%%QRSTAMP x0=%s y0=%s x1=%s y1=%s len=%d\n",
		strconv.FormatFloat(rect.X0, 'f', -1, 64),
		strconv.FormatFloat(rect.Y0, 'f', -1, 64),
		strconv.FormatFloat(rect.X1, 'f', -1, 64),
		strconv.FormatFloat(rect.Y1, 'f', -1, 64),
		len(qrPNG))

	out := make([]byte, 0, len(pdf)+len(marker)+len(qrPNG))
	out = append(out, pdf...)
	out = append(out, marker...)
	out = append(out, qrPNG...)
	return out, nil
}
