package render

import (
	"fmt"

	"github.com/gogpu/gg"

	"github.com/haasonsaas/canvasd/internal/canvas"
	"github.com/haasonsaas/canvasd/internal/imagecache"
)

// Placeholder drawn where an image could not be loaded.
var (
	placeholderFill   = gg.Hex("#ffcccc")
	placeholderStroke = gg.Hex("#ff0000")
)

const (
	placeholderLabel     = "Image Error"
	placeholderLineWidth = 2
	placeholderTextSize  = 14
	placeholderOffsetX   = 10
	placeholderOffsetY   = 20
)

// paint draws doc onto s over a white background. images maps document paths
// to decoded images; a missing path gets the placeholder.
func paint(s Surface, doc canvas.Document, images map[string]*imagecache.Entry, fonts *Fonts) error {
	s.Fill(gg.White)
	for i, el := range doc.Elements {
		if err := paintElement(s, el, images, fonts); err != nil {
			return fmt.Errorf("element %d (%s): %w", i, el.Type, err)
		}
	}
	return nil
}

func paintElement(s Surface, el canvas.Element, images map[string]*imagecache.Entry, fonts *Fonts) error {
	x, y := float64(el.X), float64(el.Y)
	switch el.Type {
	case canvas.KindRectangle:
		c, err := canvas.ParseColor(el.Color)
		if err != nil {
			return err
		}
		return s.FillRect(x, y, float64(el.Width), float64(el.Height), c)
	case canvas.KindCircle:
		c, err := canvas.ParseColor(el.Color)
		if err != nil {
			return err
		}
		return s.FillCircle(x, y, float64(el.Radius), c)
	case canvas.KindText:
		c, err := canvas.ParseColor(el.Color)
		if err != nil {
			return err
		}
		return s.DrawText(el.Text, x, y, fonts.Resolve(el.Font), float64(el.Size), c)
	case canvas.KindImage:
		w, h := float64(el.Width), float64(el.Height)
		if entry, ok := images[el.Path]; ok {
			if err := s.DrawImage(entry, x, y, w, h); err == nil {
				return nil
			}
		}
		return paintPlaceholder(s, x, y, w, h, fonts)
	default:
		return fmt.Errorf("unknown element type %q", el.Type)
	}
}

func paintPlaceholder(s Surface, x, y, w, h float64, fonts *Fonts) error {
	if err := s.FillRect(x, y, w, h, placeholderFill); err != nil {
		return err
	}
	if err := s.StrokeRect(x, y, w, h, placeholderLineWidth, placeholderStroke); err != nil {
		return err
	}
	return s.DrawText(placeholderLabel, x+placeholderOffsetX, y+placeholderOffsetY,
		fonts.Resolve(canvas.DefaultFont), placeholderTextSize, placeholderStroke)
}
