package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/canvasd/internal/canvas"
)

// maxBodyBytes bounds JSON and urlencoded request bodies.
const maxBodyBytes = 1 << 20

// Request schemas, keyed by operation. Bodies are validated after form
// values for integer fields have been converted to numbers.
var requestSchemas = map[string]string{
	"init": `{
  "type": "object",
  "required": ["width", "height"],
  "properties": {
    "width": { "type": "integer" },
    "height": { "type": "integer" }
  }
}`,
	"rectangle": `{
  "type": "object",
  "required": ["x", "y", "width", "height", "color"],
  "properties": {
    "x": { "type": "integer" },
    "y": { "type": "integer" },
    "width": { "type": "integer", "minimum": 1 },
    "height": { "type": "integer", "minimum": 1 },
    "color": { "type": "string", "minLength": 1 }
  }
}`,
	"circle": `{
  "type": "object",
  "required": ["x", "y", "radius", "color"],
  "properties": {
    "x": { "type": "integer" },
    "y": { "type": "integer" },
    "radius": { "type": "integer", "minimum": 1 },
    "color": { "type": "string", "minLength": 1 }
  }
}`,
	"text": `{
  "type": "object",
  "required": ["x", "y", "text", "size", "color"],
  "properties": {
    "x": { "type": "integer" },
    "y": { "type": "integer" },
    "text": { "type": "string", "minLength": 1 },
    "font": { "type": "string" },
    "size": { "type": "integer", "minimum": 1 },
    "color": { "type": "string", "minLength": 1 }
  }
}`,
	"image-url": `{
  "type": "object",
  "required": ["url"],
  "properties": {
    "x": { "type": "integer" },
    "y": { "type": "integer" },
    "width": { "type": "integer", "minimum": 1 },
    "height": { "type": "integer", "minimum": 1 },
    "url": { "type": "string", "minLength": 1 }
  }
}`,
	"image-upload": `{
  "type": "object",
  "properties": {
    "x": { "type": "integer" },
    "y": { "type": "integer" },
    "width": { "type": "integer", "minimum": 1 },
    "height": { "type": "integer", "minimum": 1 },
    "name": { "type": "string" }
  }
}`,
}

// integerFields are converted from form strings before validation.
var integerFields = []string{"x", "y", "width", "height", "radius", "size"}

type schemaRegistry struct {
	once    sync.Once
	initErr error
	schemas map[string]*jsonschema.Schema
}

var schemas schemaRegistry

func compileSchemas() error {
	schemas.once.Do(func() {
		schemas.schemas = make(map[string]*jsonschema.Schema, len(requestSchemas))
		for name, src := range requestSchemas {
			compiled, err := jsonschema.CompileString("canvas_"+name+".json", src)
			if err != nil {
				schemas.initErr = fmt.Errorf("compile %s schema: %w", name, err)
				return
			}
			schemas.schemas[name] = compiled
		}
	})
	return schemas.initErr
}

// fields is a validated request body.
type fields map[string]any

// decodeRequest reads a JSON, urlencoded or multipart body and validates it
// against the named schema. Multipart forms must already be parsed.
func decodeRequest(r *http.Request, schema string) (fields, error) {
	if err := compileSchemas(); err != nil {
		return nil, err
	}
	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	if err := schemas.schemas[schema].Validate(map[string]any(body)); err != nil {
		return nil, fmt.Errorf("%w: %s", canvas.ErrInvalidInput, describeValidation(err))
	}
	return body, nil
}

func readBody(r *http.Request) (fields, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if r.PostForm == nil {
			r.Body = io.NopCloser(io.LimitReader(r.Body, maxBodyBytes))
			if err := r.ParseForm(); err != nil {
				return nil, fmt.Errorf("%w: malformed form body", canvas.ErrInvalidInput)
			}
		}
		body := fields{}
		for key, values := range r.PostForm {
			if len(values) == 0 {
				continue
			}
			body[key] = values[0]
		}
		return coerceIntegers(body), nil
	default:
		body := fields{}
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				return fields{}, nil
			}
			return nil, fmt.Errorf("%w: malformed JSON body", canvas.ErrInvalidInput)
		}
		if body == nil {
			body = fields{}
		}
		return coerceIntegers(body), nil
	}
}

// coerceIntegers turns integer-looking strings into numbers so the schema
// can type-check them. Empty strings count as absent. Anything else is left
// for the schema to reject.
func coerceIntegers(body fields) fields {
	for _, key := range integerFields {
		s, ok := body[key].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			delete(body, key)
			continue
		}
		if n, err := strconv.Atoi(s); err == nil {
			body[key] = json.Number(strconv.Itoa(n))
		}
	}
	return body
}

// describeValidation reduces a schema error to its first leaf cause.
func describeValidation(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := strings.TrimPrefix(ve.InstanceLocation, "/")
	if field == "" {
		return ve.Message
	}
	return field + ": " + ve.Message
}

// Int returns the integer at key, or def when absent. Values have already
// passed schema validation.
func (f fields) Int(key string, def int) int {
	switch v := f[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if fl, err := v.Float64(); err == nil {
			return clampInt(fl)
		}
	case float64:
		return clampInt(v)
	}
	return def
}

// clampInt converts f, saturating at the int range instead of wrapping.
func clampInt(f float64) int {
	switch {
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= math.MinInt:
		return math.MinInt
	}
	return int(f)
}

// Has reports whether key was supplied.
func (f fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// String returns the string at key, or "".
func (f fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}
