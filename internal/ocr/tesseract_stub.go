//go:build windows || !cgo

package ocr

import "fmt"

// NewTesseract is not available on Windows - run in the Docker container
func NewTesseract() (Engine, error) {
	return nil, fmt.Errorf("%w: tesseract is not supported on windows", ErrEngineUnavailable)
}
