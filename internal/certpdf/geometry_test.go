package certpdf

import (
	"bytes"
	"strconv"
	"testing"
)

// minimalPDF builds a single-page PDF with the given MediaBox, uncompressed,
// enough for pdf.NewReader to parse page geometry.
func minimalPDF(t *testing.T, mediaBox string) []byte {
	t.Helper()

	var objs []string
	objs = append(objs, "1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	objs = append(objs, "2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	objs = append(objs, "3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox "+mediaBox+" /Resources << >> /Contents 4 0 R >>\nendobj\n")
	content := "BT /F1 12 Tf (hello) Tj ET"
	objs = append(objs, "4 0 obj\n<< /Length "+itoa(len(content))+" >>\nstream\n"+content+"\nendstream\nendobj\n")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs)+1)
	for i, o := range objs {
		offsets[i+1] = buf.Len()
		buf.WriteString(o)
	}
	xrefStart := buf.Len()
	buf.WriteString("xref\n0 " + itoa(len(objs)+1) + "\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objs); i++ {
		buf.WriteString(pad10(offsets[i]) + " 00000 n \n")
	}
	buf.WriteString("trailer\n<< /Size " + itoa(len(objs)+1) + " /Root 1 0 R >>\n")
	buf.WriteString("startxref\n" + itoa(xrefStart) + "\n%%EOF")

	return buf.Bytes()
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func pad10(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 10 {
		s = "0" + s
	}
	return s
}

func TestInspect_RejectsNonPDF(t *testing.T) {
	_, err := Inspect([]byte("not a pdf"))
	if err == nil {
		t.Fatal("expected an error for non-PDF bytes")
	}
}

func TestInspect_LandscapePage(t *testing.T) {
	data := minimalPDF(t, "[0 0 792 612]")
	geom, err := Inspect(data)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if geom.PageCount != 1 {
		t.Fatalf("expected 1 page, got %d", geom.PageCount)
	}
	page, err := geom.PageAt(0)
	if err != nil {
		t.Fatalf("PageAt(0) failed: %v", err)
	}
	if page.Orientation != OrientationLandscape {
		t.Fatalf("expected landscape, got %s", page.Orientation)
	}
}

func TestInspect_PortraitPage(t *testing.T) {
	data := minimalPDF(t, "[0 0 612 792]")
	geom, err := Inspect(data)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	page, err := geom.PageAt(0)
	if err != nil {
		t.Fatalf("PageAt(0) failed: %v", err)
	}
	if page.Orientation != OrientationPortrait {
		t.Fatalf("expected portrait, got %s", page.Orientation)
	}
}

func TestGeometry_PageAt_OutOfRange(t *testing.T) {
	data := minimalPDF(t, "[0 0 612 792]")
	geom, err := Inspect(data)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if _, err := geom.PageAt(5); err == nil {
		t.Fatal("expected an out-of-range error")
	}
}
