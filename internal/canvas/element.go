package canvas

import (
	"fmt"
	"strings"
)

// Kind discriminates the element variants.
type Kind string

const (
	KindRectangle Kind = "rectangle"
	KindCircle    Kind = "circle"
	KindText      Kind = "text"
	KindImage     Kind = "image"
)

// DefaultFont is used when a text element names no font.
const DefaultFont = "Arial"

// Element is one drawable item. Only the fields of its Kind are meaningful;
// the rest stay zero and are omitted from JSON.
type Element struct {
	Type Kind `json:"type"`
	X    int  `json:"x"`
	Y    int  `json:"y"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	Radius int `json:"radius,omitempty"`

	Color string `json:"color,omitempty"`

	Text string `json:"text,omitempty"`
	Font string `json:"font,omitempty"`
	Size int    `json:"size,omitempty"`

	// Path is relative to the uploads root, e.g. "/uploads/cat.png".
	Path        string `json:"path,omitempty"`
	OriginalURL string `json:"originalUrl,omitempty"`
}

func Rectangle(x, y, width, height int, color string) Element {
	return Element{Type: KindRectangle, X: x, Y: y, Width: width, Height: height, Color: color}
}

func Circle(x, y, radius int, color string) Element {
	return Element{Type: KindCircle, X: x, Y: y, Radius: radius, Color: color}
}

func Text(x, y int, text, font string, size int, color string) Element {
	return Element{Type: KindText, X: x, Y: y, Text: text, Font: font, Size: size, Color: color}
}

func Image(x, y, width, height int, path, originalURL string) Element {
	return Element{Type: KindImage, X: x, Y: y, Width: width, Height: height, Path: path, OriginalURL: originalURL}
}

// Normalize fills defaults that an otherwise valid element may omit.
func (e Element) Normalize() Element {
	if e.Type == KindText && strings.TrimSpace(e.Font) == "" {
		e.Font = DefaultFont
	}
	return e
}

// Validate checks the element against the rules of its kind. Every failure
// wraps ErrInvalidInput.
func (e Element) Validate() error {
	switch e.Type {
	case KindRectangle:
		if err := positive("width", e.Width); err != nil {
			return err
		}
		if err := positive("height", e.Height); err != nil {
			return err
		}
		return validColor(e.Color)
	case KindCircle:
		if err := positive("radius", e.Radius); err != nil {
			return err
		}
		return validColor(e.Color)
	case KindText:
		if strings.TrimSpace(e.Text) == "" {
			return fmt.Errorf("%w: text is required", ErrInvalidInput)
		}
		if err := positive("size", e.Size); err != nil {
			return err
		}
		return validColor(e.Color)
	case KindImage:
		if err := positive("width", e.Width); err != nil {
			return err
		}
		if err := positive("height", e.Height); err != nil {
			return err
		}
		if strings.TrimSpace(e.Path) == "" {
			return fmt.Errorf("%w: image path is required", ErrInvalidInput)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown element type %q", ErrInvalidInput, e.Type)
	}
}

func positive(field string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%w: %s must be a positive integer, got %d", ErrInvalidInput, field, v)
	}
	return nil
}

func validColor(s string) error {
	if _, err := ParseColor(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
