package render

import (
	"bytes"
	"fmt"

	"github.com/gogpu/gg"

	"github.com/haasonsaas/canvasd/internal/imagecache"
)

// rasterSurface paints onto a gg context and encodes to PNG.
type rasterSurface struct {
	dc *gg.Context
}

func newRasterSurface(width, height int) *rasterSurface {
	return &rasterSurface{dc: gg.NewContext(width, height)}
}

func (s *rasterSurface) Fill(c gg.RGBA) {
	s.dc.ClearWithColor(c)
}

func (s *rasterSurface) FillRect(x, y, w, h float64, c gg.RGBA) error {
	s.dc.SetColor(c.Color())
	s.dc.DrawRectangle(x, y, w, h)
	return s.dc.Fill()
}

func (s *rasterSurface) StrokeRect(x, y, w, h, lineWidth float64, c gg.RGBA) error {
	s.dc.SetColor(c.Color())
	s.dc.SetLineWidth(lineWidth)
	s.dc.DrawRectangle(x, y, w, h)
	return s.dc.Stroke()
}

func (s *rasterSurface) FillCircle(cx, cy, r float64, c gg.RGBA) error {
	s.dc.SetColor(c.Color())
	s.dc.DrawCircle(cx, cy, r)
	return s.dc.Fill()
}

func (s *rasterSurface) DrawText(str string, x, y float64, font *Font, size float64, c gg.RGBA) error {
	s.dc.SetFont(font.Face(size))
	s.dc.SetColor(c.Color())
	s.dc.DrawString(str, x, y)
	return nil
}

func (s *rasterSurface) DrawImage(img *imagecache.Entry, x, y, w, h float64) error {
	buf := gg.ImageBufFromImage(img.Image)
	if buf == nil {
		return fmt.Errorf("convert %s image", img.Format)
	}
	s.dc.DrawImageEx(buf, gg.DrawImageOptions{
		X:             x,
		Y:             y,
		DstWidth:      w,
		DstHeight:     h,
		Interpolation: gg.InterpBilinear,
		Opacity:       1,
	})
	return nil
}

func (s *rasterSurface) Encode() ([]byte, error) {
	defer s.dc.Close()
	var buf bytes.Buffer
	if err := s.dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
