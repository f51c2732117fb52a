package canvas

import (
	"errors"
	"testing"
)

func TestElementValidate(t *testing.T) {
	tests := []struct {
		name    string
		element Element
		wantErr bool
	}{
		{"rectangle", Rectangle(10, 10, 50, 50, "red"), false},
		{"rectangle negative origin", Rectangle(-5, -5, 50, 50, "#000"), false},
		{"rectangle zero width", Rectangle(0, 0, 0, 10, "red"), true},
		{"rectangle bad color", Rectangle(0, 0, 10, 10, "blurple"), true},
		{"circle", Circle(50, 50, 25, "blue"), false},
		{"circle zero radius", Circle(50, 50, 0, "blue"), true},
		{"text", Text(10, 20, "hello", "Arial", 16, "black"), false},
		{"text empty", Text(10, 20, "  ", "Arial", 16, "black"), true},
		{"text zero size", Text(10, 20, "hi", "Arial", 0, "black"), true},
		{"image", Image(0, 0, 100, 100, "/uploads/a.png", ""), false},
		{"image no path", Image(0, 0, 100, 100, "", ""), true},
		{"image negative height", Image(0, 0, 100, -1, "/uploads/a.png", ""), true},
		{"unknown type", Element{Type: "triangle"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.element.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("Validate() = %v, want ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v", err)
			}
		})
	}
}

func TestElementNormalizeDefaultsFont(t *testing.T) {
	el := Text(0, 0, "hi", "", 12, "black").Normalize()
	if el.Font != DefaultFont {
		t.Errorf("font = %q, want %q", el.Font, DefaultFont)
	}
	rect := Rectangle(0, 0, 1, 1, "red").Normalize()
	if rect.Font != "" {
		t.Errorf("rectangle gained font %q", rect.Font)
	}
}

func TestDocumentHelpers(t *testing.T) {
	doc := Document{Width: 10, Height: 10, Elements: []Element{
		Rectangle(0, 0, 1, 1, "red"),
		Image(0, 0, 5, 5, "/uploads/a.png", ""),
		Image(1, 1, 5, 5, "/uploads/a.png", ""),
		Image(2, 2, 5, 5, "/uploads/b.png", ""),
	}}

	if !doc.HasImages() {
		t.Error("HasImages() = false")
	}
	paths := doc.ImagePaths()
	if len(paths) != 2 || paths[0] != "/uploads/a.png" || paths[1] != "/uploads/b.png" {
		t.Errorf("ImagePaths() = %v", paths)
	}

	clone := doc.Clone()
	clone.Elements[0].Color = "blue"
	if doc.Elements[0].Color != "red" {
		t.Error("Clone shares element storage")
	}

	if err := (Document{}).Validate(); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("Validate() on empty doc = %v", err)
	}
}

func TestDocumentValidateWithin(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		max  int
		ok   bool
	}{
		{"at limit", Document{Width: 64, Height: 64}, 64, true},
		{"wider than limit", Document{Width: 65, Height: 1}, 64, false},
		{"taller than limit", Document{Width: 1, Height: 65}, 64, false},
		{"default limit", Document{Width: DefaultMaxDimension, Height: DefaultMaxDimension + 1}, 0, false},
		{"negative", Document{Width: -3, Height: 4}, 64, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.ValidateWithin(tt.max)
			if tt.ok && err != nil {
				t.Fatalf("ValidateWithin(%d) = %v", tt.max, err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidDimensions) {
				t.Fatalf("ValidateWithin(%d) = %v, want ErrInvalidDimensions", tt.max, err)
			}
		})
	}

	huge := Document{Width: 100_000, Height: 100_000}
	if err := huge.Validate(); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("Validate() on %dx%d = %v", huge.Width, huge.Height, err)
	}
}
