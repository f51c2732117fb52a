package canvas

import "fmt"

// Document is the canvas model: its dimensions and the ordered elements
// painted onto it. A zero-sized document has not been initialized.
type Document struct {
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Elements []Element `json:"elements"`
}

// Initialized reports whether the document has usable dimensions.
func (d Document) Initialized() bool {
	return d.Width > 0 && d.Height > 0
}

// Clone returns a copy that shares no element storage with d.
func (d Document) Clone() Document {
	out := Document{Width: d.Width, Height: d.Height, Elements: make([]Element, len(d.Elements))}
	copy(out.Elements, d.Elements)
	return out
}

// HasImages reports whether any element is an image.
func (d Document) HasImages() bool {
	for _, el := range d.Elements {
		if el.Type == KindImage {
			return true
		}
	}
	return false
}

// ImagePaths lists the distinct image paths referenced by the document.
func (d Document) ImagePaths() []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, el := range d.Elements {
		if el.Type != KindImage {
			continue
		}
		if _, ok := seen[el.Path]; ok {
			continue
		}
		seen[el.Path] = struct{}{}
		paths = append(paths, el.Path)
	}
	return paths
}

// DefaultMaxDimension bounds either side of a canvas when no other limit is
// configured.
const DefaultMaxDimension = 8192

// Validate checks the dimensions against DefaultMaxDimension and every
// element.
func (d Document) Validate() error {
	return d.ValidateWithin(DefaultMaxDimension)
}

// ValidateWithin checks that both sides are positive and at most maxDimension
// (DefaultMaxDimension when not positive), then checks every element.
func (d Document) ValidateWithin(maxDimension int) error {
	if err := checkDimensions(d.Width, d.Height, maxDimension); err != nil {
		return err
	}
	for _, el := range d.Elements {
		if err := el.Normalize().Validate(); err != nil {
			return err
		}
	}
	return nil
}

func checkDimensions(width, height, maxDimension int) error {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidDimensions, width, height)
	}
	if width > maxDimension || height > maxDimension {
		return fmt.Errorf("%w: %dx%d exceeds the %d pixel limit", ErrInvalidDimensions, width, height, maxDimension)
	}
	return nil
}
