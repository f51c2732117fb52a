package canvas

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/gg"
	"golang.org/x/image/colornames"
)

// ParseColor parses a CSS color: #rgb, #rgba, #rrggbb, #rrggbbaa, rgb(),
// rgba(), hsl(), hsla(), a CSS named color or "transparent".
func ParseColor(s string) (gg.RGBA, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return gg.RGBA{}, fmt.Errorf("color is required")
	}
	if raw == "transparent" {
		return gg.Transparent, nil
	}
	if strings.HasPrefix(raw, "#") {
		hex := raw[1:]
		switch len(hex) {
		case 3, 4, 6, 8:
		default:
			return gg.RGBA{}, fmt.Errorf("invalid hex color %q", s)
		}
		if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
			return gg.RGBA{}, fmt.Errorf("invalid hex color %q", s)
		}
		return gg.Hex(hex), nil
	}
	if name, args, ok := splitFunc(raw); ok {
		switch name {
		case "rgb", "rgba":
			return parseRGBFunc(s, args)
		case "hsl", "hsla":
			return parseHSLFunc(s, args)
		}
		return gg.RGBA{}, fmt.Errorf("unsupported color function %q", name)
	}
	if named, ok := colornames.Map[raw]; ok {
		return gg.FromColor(named), nil
	}
	return gg.RGBA{}, fmt.Errorf("unknown color %q", s)
}

// splitFunc splits "name(a, b, c)" or "name(a b c / d)" into name and args.
func splitFunc(s string) (string, []string, bool) {
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return "", nil, false
	}
	name := strings.TrimSpace(s[:open])
	body := s[open+1 : len(s)-1]
	body = strings.NewReplacer(",", " ", "/", " ").Replace(body)
	return name, strings.Fields(body), true
}

func parseRGBFunc(orig string, args []string) (gg.RGBA, error) {
	if len(args) != 3 && len(args) != 4 {
		return gg.RGBA{}, fmt.Errorf("invalid rgb color %q", orig)
	}
	var ch [3]float64
	for i := 0; i < 3; i++ {
		v, err := parseChannel(args[i])
		if err != nil {
			return gg.RGBA{}, fmt.Errorf("invalid rgb color %q", orig)
		}
		ch[i] = v
	}
	alpha := 1.0
	if len(args) == 4 {
		a, err := parseAlpha(args[3])
		if err != nil {
			return gg.RGBA{}, fmt.Errorf("invalid rgb color %q", orig)
		}
		alpha = a
	}
	return gg.RGBA2(ch[0], ch[1], ch[2], alpha), nil
}

func parseHSLFunc(orig string, args []string) (gg.RGBA, error) {
	if len(args) != 3 && len(args) != 4 {
		return gg.RGBA{}, fmt.Errorf("invalid hsl color %q", orig)
	}
	h, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "deg"), 64)
	if err != nil {
		return gg.RGBA{}, fmt.Errorf("invalid hsl color %q", orig)
	}
	sat, err := parsePercent(args[1])
	if err != nil {
		return gg.RGBA{}, fmt.Errorf("invalid hsl color %q", orig)
	}
	light, err := parsePercent(args[2])
	if err != nil {
		return gg.RGBA{}, fmt.Errorf("invalid hsl color %q", orig)
	}
	c := gg.HSL(h, sat, light)
	if len(args) == 4 {
		a, err := parseAlpha(args[3])
		if err != nil {
			return gg.RGBA{}, fmt.Errorf("invalid hsl color %q", orig)
		}
		c.A = a
	}
	return c, nil
}

// parseChannel reads an rgb() channel given as 0-255 or a percentage.
func parseChannel(s string) (float64, error) {
	if strings.HasSuffix(s, "%") {
		return parsePercent(s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return clampUnit(v / 255), nil
}

// parseAlpha reads an alpha given as 0-1 or a percentage.
func parseAlpha(s string) (float64, error) {
	if strings.HasSuffix(s, "%") {
		return parsePercent(s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return clampUnit(v), nil
}

func parsePercent(s string) (float64, error) {
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("expected percentage, got %q", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, err
	}
	return clampUnit(v / 100), nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
