//go:build cgo && !windows

package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract is an Engine backed by a single gosseract client.
type Tesseract struct {
	client *gosseract.Client
}

// NewTesseract creates a client configured for the fixed locale with
// automatic page segmentation.
func NewTesseract() (Engine, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage(Language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	// Captures are free-form frames, not single text blocks
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	return &Tesseract{client: client}, nil
}

// Recognize runs tesseract over img. The call itself cannot be interrupted;
// ctx is only checked before starting.
func (t *Tesseract) Recognize(ctx context.Context, img *image.Gray) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	if err := t.client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}
	return text, nil
}

// Close releases tesseract resources
func (t *Tesseract) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}
