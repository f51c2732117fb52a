package render

import (
	"github.com/gogpu/gg"

	"github.com/haasonsaas/canvasd/internal/imagecache"
)

// Surface is one output target of the paint phase. Coordinates are canvas
// pixels with the origin at the top-left corner.
type Surface interface {
	Fill(c gg.RGBA)
	FillRect(x, y, w, h float64, c gg.RGBA) error
	StrokeRect(x, y, w, h, lineWidth float64, c gg.RGBA) error
	FillCircle(cx, cy, r float64, c gg.RGBA) error
	// DrawText draws s with its baseline starting at (x, y).
	DrawText(s string, x, y float64, font *Font, size float64, c gg.RGBA) error
	DrawImage(img *imagecache.Entry, x, y, w, h float64) error
	// Encode serializes the surface. The surface is unusable afterwards.
	Encode() ([]byte, error)
}
