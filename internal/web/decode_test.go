package web

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haasonsaas/canvasd/internal/canvas"
)

func TestCoerceIntegers(t *testing.T) {
	body := coerceIntegers(fields{
		"x":     "12",
		"y":     " -3 ",
		"width": "",
		"size":  "big",
		"color": "42",
	})

	if got := body.Int("x", 0); got != 12 {
		t.Errorf("x = %d, want 12", got)
	}
	if got := body.Int("y", 0); got != -3 {
		t.Errorf("y = %d, want -3", got)
	}
	if body.Has("width") {
		t.Error("empty width should be treated as absent")
	}
	if _, ok := body["size"].(string); !ok {
		t.Error("non-numeric size should be left for validation")
	}
	if got := body.String("color"); got != "42" {
		t.Errorf("color = %q, want untouched string", got)
	}
}

func TestFieldsInt(t *testing.T) {
	body := fields{
		"n":     json.Number("7"),
		"whole": json.Number("10.0"),
		"f":     float64(3),
		"s":     "nope",
		"huge":  json.Number("1e30"),
		"tiny":  json.Number("-1e30"),
	}
	tests := []struct {
		key  string
		def  int
		want int
	}{
		{"n", 0, 7},
		{"whole", 0, 10},
		{"f", 0, 3},
		{"s", 5, 5},
		{"huge", 0, math.MaxInt},
		{"tiny", 0, math.MinInt},
		{"missing", 9, 9},
	}
	for _, tt := range tests {
		if got := body.Int(tt.key, tt.def); got != tt.want {
			t.Errorf("Int(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestDecodeRequest(t *testing.T) {
	t.Run("empty body fails required fields", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/canvas/init", nil)
		_, err := decodeRequest(req, "init")
		if !errors.Is(err, canvas.ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("init leaves range checks to the canvas", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/canvas/init", strings.NewReader(`{"width":0,"height":-3}`))
		req.Header.Set("Content-Type", "application/json")
		body, err := decodeRequest(req, "init")
		if err != nil {
			t.Fatalf("decodeRequest: %v", err)
		}
		manager := canvas.NewManager(nil, nil, nil)
		_, err = manager.Init(context.Background(), body.Int("width", 0), body.Int("height", 0))
		if !errors.Is(err, canvas.ErrInvalidDimensions) {
			t.Fatalf("Init err = %v, want ErrInvalidDimensions", err)
		}
	})

	t.Run("empty body is fine when nothing is required", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/canvas/add/image-upload", nil)
		body, err := decodeRequest(req, "image-upload")
		if err != nil {
			t.Fatalf("decodeRequest: %v", err)
		}
		if len(body) != 0 {
			t.Errorf("body = %v, want empty", body)
		}
	})

	t.Run("json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/canvas/add/circle", strings.NewReader(`{"x":1,"y":2,"radius":3,"color":"red"}`))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		body, err := decodeRequest(req, "circle")
		if err != nil {
			t.Fatalf("decodeRequest: %v", err)
		}
		if body.Int("radius", 0) != 3 || body.String("color") != "red" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("validation names the field", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/canvas/add/circle", strings.NewReader(`{"x":1,"y":2,"radius":0,"color":"red"}`))
		_, err := decodeRequest(req, "circle")
		if err == nil || !strings.Contains(err.Error(), "radius") {
			t.Fatalf("err = %v, want mention of radius", err)
		}
	})

	t.Run("form", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/canvas/add/text", strings.NewReader("x=1&y=2&text=hi&size=14&color=black"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		body, err := decodeRequest(req, "text")
		if err != nil {
			t.Fatalf("decodeRequest: %v", err)
		}
		if body.Int("size", 0) != 14 || body.String("text") != "hi" {
			t.Errorf("body = %v", body)
		}
	})
}
