// Package ocr wraps the external text-recognition engine.
//
// Engines are not safe for concurrent use. Pool gives each worker goroutine
// its own engine and is the entry point the rest of the service uses.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
)

// Language is the fixed recognition locale.
const Language = "eng"

var (
	// ErrEngineUnavailable is returned when no recognition engine can be built
	// on this platform or host.
	ErrEngineUnavailable = errors.New("ocr engine unavailable")
	// ErrPoolClosed is returned for work submitted after Close.
	ErrPoolClosed = errors.New("ocr pool closed")
)

// Engine recognizes text in a preprocessed image.
type Engine interface {
	Recognize(ctx context.Context, img *image.Gray) (string, error)
	Close() error
}

// Factory builds one engine per worker.
type Factory func() (Engine, error)

func encodePNG(img *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
