package imagecache

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// FormatSVG is the format name reported for SVG documents.
const FormatSVG = "svg"

// default size of an SVG without a usable viewBox, matching browsers.
const (
	defaultSVGWidth  = 300
	defaultSVGHeight = 150
)

// DefaultMaxPixels caps the decoded size of one image, about 160MiB as RGBA.
const DefaultMaxPixels int64 = 40_000_000

var (
	// ErrUnsupported is returned when bytes are not a decodable image.
	ErrUnsupported = errors.New("imagecache: unsupported image data")
	// ErrTooManyPixels is returned for raster images whose header declares
	// more pixels than the decoder allows.
	ErrTooManyPixels = errors.New("imagecache: image too large")
)

// Decoder decodes images within a pixel budget. Raster headers are checked
// before any pixel data is allocated; SVG documents are rasterized scaled
// down to fit. The zero value uses DefaultMaxPixels.
type Decoder struct {
	MaxPixels int64
}

func (d Decoder) maxPixels() int64 {
	if d.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return d.MaxPixels
}

// Decode decodes with the zero Decoder.
func Decode(data []byte) (image.Image, string, error) {
	return Decoder{}.Decode(data)
}

// DecodeConfig reads the size with the zero Decoder.
func DecodeConfig(data []byte) (image.Config, string, error) {
	return Decoder{}.DecodeConfig(data)
}

// Decode decodes raster formats through the image registry and rasterizes
// SVG documents at their viewBox size, scaled down to fit the budget.
func (d Decoder) Decode(data []byte) (image.Image, string, error) {
	if IsSVG(data) {
		icon, err := readSVG(data)
		if err != nil {
			return nil, "", err
		}
		w, h := svgSize(icon, d.maxPixels())
		return rasterizeSVG(icon, w, h), FormatSVG, nil
	}
	if _, _, err := d.DecodeConfig(data); err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return img, format, nil
}

// DecodeConfig returns the size Decode would produce and the format,
// without decoding pixels. Raster images over the budget fail with
// ErrTooManyPixels.
func (d Decoder) DecodeConfig(data []byte) (image.Config, string, error) {
	if IsSVG(data) {
		icon, err := readSVG(data)
		if err != nil {
			return image.Config{}, "", err
		}
		w, h := svgSize(icon, d.maxPixels())
		return image.Config{Width: w, Height: h, ColorModel: color.RGBAModel}, FormatSVG, nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, "", fmt.Errorf("%w: %s has no size", ErrUnsupported, format)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > d.maxPixels() {
		return image.Config{}, "", fmt.Errorf("%w: %dx%d %s exceeds %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, format, d.maxPixels())
	}
	return cfg, format, nil
}

// IsSVG sniffs for an SVG root element near the start of data.
func IsSVG(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimSpace(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")))
	if !bytes.HasPrefix(head, []byte("<")) {
		return false
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

func readSVG(data []byte) (*oksvg.SvgIcon, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("%w: svg: %v", ErrUnsupported, err)
	}
	return icon, nil
}

// svgSize is the raster size of icon: its viewBox, or the browser default
// without one, scaled down uniformly until it fits within maxPixels.
func svgSize(icon *oksvg.SvgIcon, maxPixels int64) (int, int) {
	vw, vh := icon.ViewBox.W, icon.ViewBox.H
	if !(vw > 0 && vh > 0) || math.IsInf(vw, 0) || math.IsInf(vh, 0) {
		vw, vh = defaultSVGWidth, defaultSVGHeight
	}
	limit := float64(maxPixels)
	if area := vw * vh; area > limit {
		scale := math.Sqrt(limit / area)
		vw, vh = vw*scale, vh*scale
	}
	w, h := math.Max(1, math.Round(vw)), math.Max(1, math.Round(vh))
	// Rounding a very thin box up to one pixel can push it back over.
	if w*h > limit {
		if w >= h {
			w = math.Max(1, math.Floor(limit/h))
		} else {
			h = math.Max(1, math.Floor(limit/w))
		}
	}
	return int(w), int(h)
}

func rasterizeSVG(icon *oksvg.SvgIcon, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.SetTarget(0, 0, float64(w), float64(h))
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
	return img
}
