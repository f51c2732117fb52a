package canvas

import "errors"

// Error kinds surfaced by canvas operations. Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	ErrInvalidDimensions  = errors.New("canvas: width and height must be positive integers")
	ErrInvalidInput       = errors.New("canvas: invalid input")
	ErrInvalidURL         = errors.New("canvas: invalid url")
	ErrFetch              = errors.New("canvas: fetch failed")
	ErrInvalidImageFormat = errors.New("canvas: invalid image format")
	ErrInvalidImageFile   = errors.New("canvas: invalid image file")
	ErrNotInitialized     = errors.New("canvas: not initialized")
	ErrRenderFailed       = errors.New("canvas: render failed")
	ErrNotFound           = errors.New("canvas: not found")
)

// IsClientError reports whether err is caused by bad caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDimensions) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrInvalidImageFormat) ||
		errors.Is(err, ErrInvalidImageFile)
}
