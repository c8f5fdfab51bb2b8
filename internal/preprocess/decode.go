package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

var (
	// ErrDecode marks uploads that are not a supported image format.
	ErrDecode = errors.New("unsupported or malformed image")
	// ErrInvalidImage marks decoded images with a zero-sized axis.
	ErrInvalidImage = errors.New("invalid image dimensions")
)

// DefaultMaxPixels caps the decoded size of an upload. Small compressed
// files can expand to hundreds of megapixels.
const DefaultMaxPixels = 178956970

// Decode turns raw upload bytes into an image with EXIF orientation applied,
// returning the detected format name (jpeg, png, gif, bmp, tiff, webp).
// Images larger than DefaultMaxPixels are rejected.
func Decode(data []byte) (image.Image, string, error) {
	return DecodeLimit(data, DefaultMaxPixels)
}

// DecodeLimit is Decode with an explicit pixel cap. A cap <= 0 means
// DefaultMaxPixels.
func DecodeLimit(data []byte, maxPixels int) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty upload", ErrDecode)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(maxPixels) {
		return nil, format, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, format, nil
}
