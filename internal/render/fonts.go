package render

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/text/cases"
)

// Font is a loaded TrueType face usable by both surfaces.
type Font struct {
	// Key is the stable identifier used to register the font with a PDF.
	Key    string
	TTF    []byte
	source *text.FontSource
}

// Face returns a raster face of the given pixel size.
func (f *Font) Face(size float64) text.Face {
	return f.source.Face(size)
}

// Fonts resolves CSS font family names to loaded fonts. Lookups are
// case-insensitive; unknown families fall back to the default font.
type Fonts struct {
	mu       sync.RWMutex
	families map[string]*Font
	fallback *Font
}

// NewFonts returns a registry with the built-in Go fonts mapped to the
// common web families.
func NewFonts() (*Fonts, error) {
	regular, err := newFont("go-regular", goregular.TTF)
	if err != nil {
		return nil, err
	}
	mono, err := newFont("go-mono", gomono.TTF)
	if err != nil {
		return nil, err
	}

	f := &Fonts{
		families: make(map[string]*Font),
		fallback: regular,
	}
	for _, family := range []string{"Arial", "Helvetica", "sans-serif", "Times New Roman", "Times", "Georgia", "serif"} {
		f.set(family, regular)
	}
	for _, family := range []string{"Courier New", "Courier", "monospace"} {
		f.set(family, mono)
	}
	return f, nil
}

// RegisterFile loads a TTF file and maps family to it, replacing any
// existing mapping.
func (f *Fonts) RegisterFile(family, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-configured font path
	if err != nil {
		return fmt.Errorf("read font %s: %w", family, err)
	}
	return f.Register(family, data)
}

// Register maps family to the given TTF bytes.
func (f *Fonts) Register(family string, ttf []byte) error {
	if strings.TrimSpace(family) == "" {
		return fmt.Errorf("font family is required")
	}
	font, err := newFont("custom-"+f.key(family), ttf)
	if err != nil {
		return fmt.Errorf("load font %s: %w", family, err)
	}
	f.set(family, font)
	return nil
}

// Resolve returns the font for family, or the default font.
func (f *Fonts) Resolve(family string) *Font {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if font, ok := f.families[f.key(family)]; ok {
		return font
	}
	return f.fallback
}

// Families lists the registered family keys in sorted order.
func (f *Fonts) Families() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.families))
	for k := range f.families {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (f *Fonts) set(family string, font *Font) {
	f.mu.Lock()
	f.families[f.key(family)] = font
	f.mu.Unlock()
}

// key folds case and collapses whitespace and quotes, so "'Times  New Roman'"
// and "times new roman" match.
func (f *Fonts) key(family string) string {
	// Casers keep state, so each call gets its own.
	family = strings.Trim(strings.TrimSpace(family), `"'`)
	return cases.Fold().String(strings.Join(strings.Fields(family), " "))
}

func newFont(key string, ttf []byte) (*Font, error) {
	source, err := text.NewFontSource(ttf)
	if err != nil {
		return nil, err
	}
	return &Font{Key: strings.ReplaceAll(key, " ", "-"), TTF: ttf, source: source}, nil
}
