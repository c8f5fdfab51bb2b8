// Package preprocess prepares captured frames for text recognition.
//
// The pipeline is fixed: luminance conversion, an edge-preserving bilateral
// filter, then a global Otsu threshold. Output is a single-channel image with
// the same width and height as the input, containing only 0 and 255.
//
// All functions are pure and deterministic; they may be called concurrently.
package preprocess

import (
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/channel"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/parallel"
)

// BT.601 luma weights.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// Bilateral filter parameters. The diameter covers a 9px circular window;
// both sigmas are in 8-bit intensity / pixel units.
const (
	FilterDiameter = 9
	SigmaColor     = 75.0
	SigmaSpace     = 75.0
)

// Preprocess converts an arbitrary decoded image into a binarized image
// suitable for OCR.
func Preprocess(img image.Image) (*image.Gray, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidImage, b.Dx(), b.Dy())
	}

	gray := Grayscale(img)
	smoothed := Bilateral(gray, FilterDiameter, SigmaColor, SigmaSpace)
	return Binarize(smoothed, OtsuThreshold(smoothed)), nil
}

// Grayscale returns the luminance channel of img anchored at the origin.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		b := g.Bounds()
		out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			copy(out.Pix[y*out.Stride:(y+1)*out.Stride], g.Pix[y*g.Stride:y*g.Stride+b.Dx()])
		}
		return out
	}
	out := channel.Extract(effect.GrayscaleWithWeights(img, lumaR, lumaG, lumaB), channel.Red)
	out.Rect = out.Rect.Sub(out.Rect.Min)
	return out
}

// Bilateral smooths src while keeping strong intensity steps (letter strokes)
// sharp. Each output pixel is a mean of its circular neighbourhood weighted by
// both spatial distance and intensity difference. Borders mirror without
// repeating the edge pixel (gfedcb|abcdefgh|gfedcba).
func Bilateral(src *image.Gray, diameter int, sigmaColor, sigmaSpace float64) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	radius := diameter / 2
	if radius < 1 || sigmaColor <= 0 || sigmaSpace <= 0 {
		for y := 0; y < h; y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		return dst
	}

	type tap struct {
		dx, dy int
		weight float64
	}
	spaceCoeff := -0.5 / (sigmaSpace * sigmaSpace)
	taps := make([]tap, 0, diameter*diameter)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			r2 := dx*dx + dy*dy
			if r2 > radius*radius {
				continue
			}
			taps = append(taps, tap{dx: dx, dy: dy, weight: math.Exp(float64(r2) * spaceCoeff)})
		}
	}

	var colorWeight [256]float64
	colorCoeff := -0.5 / (sigmaColor * sigmaColor)
	for i := range colorWeight {
		colorWeight[i] = math.Exp(float64(i*i) * colorCoeff)
	}

	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < w; x++ {
				center := int(src.Pix[y*src.Stride+x])
				var sum, norm float64
				for _, t := range taps {
					sy := reflect101(y+t.dy, h)
					sx := reflect101(x+t.dx, w)
					v := int(src.Pix[sy*src.Stride+sx])
					d := v - center
					if d < 0 {
						d = -d
					}
					wt := t.weight * colorWeight[d]
					sum += wt * float64(v)
					norm += wt
				}
				dst.Pix[y*dst.Stride+x] = uint8(clamp(int(math.Round(sum/norm)), 0, 255))
			}
		}
	})

	return dst
}

// OtsuThreshold picks the global threshold that maximizes between-class
// variance, which is the same as minimizing intra-class variance. Pixels
// <= the returned value form the background class. A uniform image yields 0.
func OtsuThreshold(img *image.Gray) uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var hist [256]float64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for _, v := range row {
			hist[v]++
		}
	}

	total := float64(w * h)
	var sum float64
	for i, c := range hist {
		sum += float64(i) * c
	}

	var sumB, weightB, best float64
	threshold := 0
	for t := 0; t < 256; t++ {
		weightB += hist[t]
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(t) * hist[t]
		meanB := sumB / weightB
		meanF := (sum - sumB) / weightF
		between := weightB * weightF * (meanB - meanF) * (meanB - meanF)
		if between > best {
			best = between
			threshold = t
		}
	}
	return uint8(threshold)
}

// Binarize maps pixels above threshold to 255 and the rest to 0.
func Binarize(img *image.Gray, threshold uint8) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.Pix[y*img.Stride+x] > threshold {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

// reflect101 maps i into [0, n) by mirroring around the first and last index.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		} else {
			i = 2*(n-1) - i
		}
	}
	return i
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
