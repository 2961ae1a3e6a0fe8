package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// QRSpec is the verification payload embedded in the certificate's QR code.
type QRSpec struct {
	BaseURL    string `json:"base_url"`
	VerifyCode string `json:"verify_code"`
}

// Rect is an explicit placement rectangle in PDF points: (x0,y0)-(x1,y1).
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// QRPlacement describes where the QR code is stamped onto the rendered PDF.
type QRPlacement struct {
	SizeCm      float64
	MarginYCm   float64
	PageIndex   int
	ExplicitRect *Rect // required for portrait pages; when set, used on any page instead of the auto-computed rect
}

// CmToPoints converts centimeters to PDF points: 1cm = 72/2.54 points.
func CmToPoints(cm float64) float64 {
	return cm * 72 / 2.54
}

// decodeOrderedSingleKeyArray parses the wire shape `[{k1:v1},{k2:v2},...]`
// into a flat map, last-occurrence-wins. This is the "ordered sequence of
// single-key objects" shape §6.1 requires for backward compatibility.
func decodeOrderedSingleKeyArray(data []byte) (map[string]string, error) {
	var raw []map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode single-key-object array: %w", err)
	}
	out := make(map[string]string, len(raw))
	for _, entry := range raw {
		for k, v := range entry {
			out[k] = v // last occurrence wins
		}
	}
	return out, nil
}

// encodeOrderedSingleKeyArray re-emits a flat map as an ordered array of
// single-key objects, in the given key order, omitting absent keys.
func encodeOrderedSingleKeyArray(order []string, fields map[string]string) []byte {
	var b strings.Builder
	b.WriteByte('[')
	first := true
	for _, k := range order {
		v, ok := fields[k]
		if !ok {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(v)
		b.WriteByte('{')
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
		b.WriteByte('}')
	}
	b.WriteByte(']')
	return []byte(b.String())
}

// UnmarshalJSON parses the `qr: [ {base_url}, {verify_code} ]` wire shape.
func (q *QRSpec) UnmarshalJSON(data []byte) error {
	fields, err := decodeOrderedSingleKeyArray(data)
	if err != nil {
		return err
	}
	q.BaseURL = fields["base_url"]
	q.VerifyCode = fields["verify_code"]
	return nil
}

// MarshalJSON re-emits the ordered single-key-object wire shape.
func (q QRSpec) MarshalJSON() ([]byte, error) {
	return encodeOrderedSingleKeyArray([]string{"base_url", "verify_code"}, map[string]string{
		"base_url":    q.BaseURL,
		"verify_code": q.VerifyCode,
	}), nil
}

// UnmarshalJSON parses the `qr_pdf: [ {qr_size_cm}, {qr_margin_y_cm},
// {qr_page}, {qr_rect?} ]` wire shape.
func (p *QRPlacement) UnmarshalJSON(data []byte) error {
	fields, err := decodeOrderedSingleKeyArray(data)
	if err != nil {
		return err
	}

	if v, ok := fields["qr_size_cm"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid qr_size_cm %q: %w", v, err)
		}
		p.SizeCm = f
	}
	if v, ok := fields["qr_margin_y_cm"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid qr_margin_y_cm %q: %w", v, err)
		}
		p.MarginYCm = f
	}
	if v, ok := fields["qr_page"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid qr_page %q: %w", v, err)
		}
		p.PageIndex = n
	}
	if v, ok := fields["qr_rect"]; ok && v != "" {
		rect, err := parseRect(v)
		if err != nil {
			return err
		}
		p.ExplicitRect = rect
	}
	return nil
}

// MarshalJSON re-emits the ordered single-key-object wire shape.
func (p QRPlacement) MarshalJSON() ([]byte, error) {
	fields := map[string]string{
		"qr_size_cm":     strconv.FormatFloat(p.SizeCm, 'f', -1, 64),
		"qr_margin_y_cm": strconv.FormatFloat(p.MarginYCm, 'f', -1, 64),
		"qr_page":        strconv.Itoa(p.PageIndex),
	}
	order := []string{"qr_size_cm", "qr_margin_y_cm", "qr_page"}
	if p.ExplicitRect != nil {
		r := p.ExplicitRect
		fields["qr_rect"] = fmt.Sprintf("%s,%s,%s,%s",
			strconv.FormatFloat(r.X0, 'f', -1, 64),
			strconv.FormatFloat(r.Y0, 'f', -1, 64),
			strconv.FormatFloat(r.X1, 'f', -1, 64),
			strconv.FormatFloat(r.Y1, 'f', -1, 64),
		)
		order = append(order, "qr_rect")
	}
	return encodeOrderedSingleKeyArray(order, fields), nil
}

func parseRect(s string) (*Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid qr_rect %q: expected x0,y0,x1,y1", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid qr_rect component %q: %w", p, err)
		}
		vals[i] = f
	}
	return &Rect{X0: vals[0], Y0: vals[1], X1: vals[2], Y1: vals[3]}, nil
}
