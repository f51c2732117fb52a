package render

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-pdf/fpdf"
	"github.com/gogpu/gg"

	"github.com/haasonsaas/canvasd/internal/imagecache"
)

// pdfSurface paints onto a single fpdf page sized to the canvas, one point
// per canvas pixel.
type pdfSurface struct {
	pdf    *fpdf.Fpdf
	width  float64
	height float64
	fonts  map[string]bool
	images map[*imagecache.Entry]string
	alpha  float64
}

func newPDFSurface(width, height int, creator string) *pdfSurface {
	w, h := float64(width), float64(height)
	// "L" would swap the custom size, so the page is always portrait.
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	if creator != "" {
		pdf.SetCreator(creator, true)
	}
	pdf.AddPage()
	return &pdfSurface{
		pdf:    pdf,
		width:  w,
		height: h,
		fonts:  make(map[string]bool),
		images: make(map[*imagecache.Entry]string),
		alpha:  1,
	}
}

func (s *pdfSurface) Fill(c gg.RGBA) {
	s.setFill(c)
	s.pdf.Rect(0, 0, s.width, s.height, "F")
}

func (s *pdfSurface) FillRect(x, y, w, h float64, c gg.RGBA) error {
	s.setFill(c)
	s.pdf.Rect(x, y, w, h, "F")
	return s.pdf.Error()
}

func (s *pdfSurface) StrokeRect(x, y, w, h, lineWidth float64, c gg.RGBA) error {
	r, g, b := rgb255(c)
	s.setAlpha(c.A)
	s.pdf.SetDrawColor(r, g, b)
	s.pdf.SetLineWidth(lineWidth)
	s.pdf.Rect(x, y, w, h, "D")
	return s.pdf.Error()
}

func (s *pdfSurface) FillCircle(cx, cy, radius float64, c gg.RGBA) error {
	s.setFill(c)
	s.pdf.Circle(cx, cy, radius, "F")
	return s.pdf.Error()
}

func (s *pdfSurface) DrawText(str string, x, y float64, font *Font, size float64, c gg.RGBA) error {
	if !s.fonts[font.Key] {
		s.pdf.AddUTF8FontFromBytes(font.Key, "", font.TTF)
		if err := s.pdf.Error(); err != nil {
			return fmt.Errorf("register font %s: %w", font.Key, err)
		}
		s.fonts[font.Key] = true
	}
	r, g, b := rgb255(c)
	s.setAlpha(c.A)
	s.pdf.SetFont(font.Key, "", size)
	s.pdf.SetTextColor(r, g, b)
	s.pdf.Text(x, y, str)
	return s.pdf.Error()
}

func (s *pdfSurface) DrawImage(img *imagecache.Entry, x, y, w, h float64) error {
	name, ok := s.images[img]
	if !ok {
		data, err := img.PNG()
		if err != nil {
			return err
		}
		name = fmt.Sprintf("img-%d", len(s.images))
		s.pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(data))
		if err := s.pdf.Error(); err != nil {
			return fmt.Errorf("register image: %w", err)
		}
		s.images[img] = name
	}
	s.setAlpha(1)
	s.pdf.ImageOptions(name, x, y, w, h, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	return s.pdf.Error()
}

func (s *pdfSurface) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("encode pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *pdfSurface) setFill(c gg.RGBA) {
	r, g, b := rgb255(c)
	s.setAlpha(c.A)
	s.pdf.SetFillColor(r, g, b)
}

// setAlpha switches the graphics state opacity only when it changes.
func (s *pdfSurface) setAlpha(a float64) {
	if a == s.alpha {
		return
	}
	s.pdf.SetAlpha(a, "Normal")
	s.alpha = a
}

func rgb255(c gg.RGBA) (int, int, int) {
	return channel255(c.R), channel255(c.G), channel255(c.B)
}

func channel255(v float64) int {
	return int(math.Round(math.Max(0, math.Min(1, v)) * 255))
}
