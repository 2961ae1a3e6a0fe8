// Package certpdf owns the PDF geometry decisions the pipeline needs to
// place a QR code correctly — page count, per-page dimensions and
// orientation — plus the default (stdlib-only) rendering adapters for the
// out-of-scope PDF edit engine and QR generator collaborators.
package certpdf

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Orientation classifies a page by its MediaBox aspect ratio.
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// PageGeometry describes one page's dimensions, in PDF points.
type PageGeometry struct {
	Index       int
	WidthPt     float64
	HeightPt    float64
	Orientation Orientation
}

// Geometry is the page roster of a parsed template.
type Geometry struct {
	PageCount int
	Pages     []PageGeometry
}

func isPDF(data []byte) bool {
	return len(data) >= 5 && bytes.Equal(data[:5], []byte("%PDF-"))
}

// Inspect parses template bytes and returns per-page geometry. It never
// touches disk: templates come from the Template Cache as in-memory bytes.
func Inspect(data []byte) (*Geometry, error) {
	if !isPDF(data) {
		return nil, fmt.Errorf("not a PDF file: missing %%PDF- header")
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	n := r.NumPage()
	geom := &Geometry{PageCount: n, Pages: make([]PageGeometry, 0, n)}
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		w, h := mediaBoxDims(page)
		orientation := OrientationPortrait
		if w > h {
			orientation = OrientationLandscape
		}
		geom.Pages = append(geom.Pages, PageGeometry{
			Index:       i - 1,
			WidthPt:     w,
			HeightPt:    h,
			Orientation: orientation,
		})
	}
	return geom, nil
}

// mediaBoxDims reads the page's MediaBox, falling back to US Letter when
// absent (some minimal templates omit a page-level box and inherit the
// document default, which this reader does not chase through Pages nodes).
func mediaBoxDims(page pdf.Page) (float64, float64) {
	box := page.V.Key("MediaBox")
	if box.Len() != 4 {
		return 612, 792
	}
	x0 := box.Index(0).Float64()
	y0 := box.Index(1).Float64()
	x1 := box.Index(2).Float64()
	y1 := box.Index(3).Float64()
	w := x1 - x0
	h := y1 - y0
	if w < 0 {
		w = -w
	}
	if h < 0 {
		h = -h
	}
	return w, h
}

// PageAt returns the geometry for the given zero-based page index.
func (g *Geometry) PageAt(index int) (*PageGeometry, error) {
	for i := range g.Pages {
		if g.Pages[i].Index == index {
			return &g.Pages[i], nil
		}
	}
	return nil, fmt.Errorf("page index %d out of range (0..%d)", index, len(g.Pages)-1)
}
