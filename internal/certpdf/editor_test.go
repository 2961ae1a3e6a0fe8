package certpdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/brightleaf/certforge/internal/models"
)

func TestDefaultEditor_RejectsNonPDF(t *testing.T) {
	e := NewDefaultEditor()
	_, err := e.Render(context.Background(), []byte("plain text"), nil)
	if err == nil {
		t.Fatal("expected an error for non-PDF template bytes")
	}
}

func TestDefaultEditor_SubstitutesPlaceholders(t *testing.T) {
	e := NewDefaultEditor()
	template := []byte("%PDF-1.4\nBT (Hello {{nombre}}) Tj ET")
	out, err := e.Render(context.Background(), template, []models.Placeholder{
		{Key: "nombre", Value: "ANA"},
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if bytes.Contains(out, []byte("{{nombre}}")) {
		t.Fatal("expected placeholder token to be substituted")
	}
	if !bytes.Contains(out, []byte("ANA")) {
		t.Fatal("expected substituted value in output")
	}
}

func TestDefaultEditor_NoPlaceholdersIsNoop(t *testing.T) {
	e := NewDefaultEditor()
	template := []byte("%PDF-1.4\nBT (static) Tj ET")
	out, err := e.Render(context.Background(), template, nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.Equal(out, template) {
		t.Fatal("expected unchanged output with no placeholders")
	}
}

func TestDefaultEditor_StampEmbedsQRAndRect(t *testing.T) {
	e := NewDefaultEditor()
	rendered := []byte("%PDF-1.4\nBT (Hello ANA) Tj ET")
	qrPNG := []byte("fake-qr-png-bytes")
	rect := models.Rect{X0: 10, Y0: 20, X1: 40, Y1: 50}

	out, err := e.Stamp(context.Background(), rendered, qrPNG, rect)
	if err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}
	if bytes.Equal(out, rendered) {
		t.Fatal("expected stamped output to differ from the input PDF")
	}
	if !bytes.HasPrefix(out, rendered) {
		t.Fatal("expected stamped output to retain the rendered PDF bytes")
	}
	if !bytes.Contains(out, qrPNG) {
		t.Fatal("expected stamped output to contain the QR PNG bytes")
	}
	if !bytes.Contains(out, []byte("x0=10 y0=20 x1=40 y1=50")) {
		t.Fatalf("expected stamped output to record the placement rect, got %q", out)
	}
}

func TestDefaultEditor_StampRejectsNonPDF(t *testing.T) {
	e := NewDefaultEditor()
	_, err := e.Stamp(context.Background(), []byte("not a pdf"), []byte("qr"), models.Rect{})
	if err == nil {
		t.Fatal("expected an error for non-PDF document bytes")
	}
}

func TestDefaultEditor_StampRejectsEmptyQR(t *testing.T) {
	e := NewDefaultEditor()
	_, err := e.Stamp(context.Background(), []byte("%PDF-1.4\n"), nil, models.Rect{})
	if err == nil {
		t.Fatal("expected an error for an empty QR image")
	}
}
