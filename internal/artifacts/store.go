// Package artifacts stores the rendered preview and export files.
package artifacts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/haasonsaas/canvasd/internal/backoff"
)

// Mime types of the rendered artifacts.
const (
	MimePNG = "image/png"
	MimePDF = "application/pdf"
)

// PutOptions describes an object written to a Mirror.
type PutOptions struct {
	MimeType string
	Metadata map[string]string
}

// Mirror receives a copy of every artifact written locally.
type Mirror interface {
	Put(ctx context.Context, name string, data io.Reader, opts PutOptions) (string, error)
}

// mirrorAttempts and mirrorPolicy bound how long a flaky bucket can hold up
// a render.
var (
	mirrorAttempts = 3
	mirrorPolicy   = backoff.Exponential(200*time.Millisecond, 2*time.Second)
)

func putBytes(ctx context.Context, m Mirror, name string, data []byte, mimeType string) (string, error) {
	result, err := backoff.Do(ctx, backoff.Options{
		MaxAttempts: mirrorAttempts,
		Policy:      mirrorPolicy,
		Retryable: func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
	}, func(ctx context.Context, _ int) (string, error) {
		return m.Put(ctx, name, bytes.NewReader(data), PutOptions{MimeType: mimeType})
	})
	return result.Value, err
}
