// Package imaging turns captured RGB565 samples into the final signature
// bitmap.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrBlank is returned when every painted pixel is black. Such a frame cannot
// be told apart from an aborted draw and is never persisted.
var ErrBlank = errors.New("signature contains no visible pixels")

const (
	DefaultBlurRadius = 0.5
	DefaultScale      = 2
)

// Sample is one pixel reported by the pad.
type Sample struct {
	X     int
	Y     int
	Color uint16
}

// Pipeline holds the tunable parameters of the render stage.
type Pipeline struct {
	// BlurRadius is the standard deviation of the smoothing filter.
	BlurRadius float64
	// Scale is the integer upscale factor applied after smoothing.
	Scale int
}

// NewPipeline returns a Pipeline with the default blur radius and scale.
func NewPipeline() *Pipeline {
	return &Pipeline{BlurRadius: DefaultBlurRadius, Scale: DefaultScale}
}

// Paint draws samples onto a black width x height canvas in order, so a later
// sample at the same coordinate overwrites an earlier one. It reports how many
// pixels ended up non-black.
func Paint(width, height int, samples []Sample) (*image.RGBA, int, error) {
	if width <= 0 || height <= 0 {
		return nil, 0, fmt.Errorf("invalid canvas size %dx%d", width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	black := color.RGBA{A: 0xFF}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, black)
		}
	}

	for _, s := range samples {
		if s.X < 0 || s.X >= width || s.Y < 0 || s.Y >= height {
			return nil, 0, fmt.Errorf("sample (%d,%d) outside %dx%d canvas", s.X, s.Y, width, height)
		}
		img.SetRGBA(s.X, s.Y, Decode565(s.Color))
	}

	lit := 0
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 || img.Pix[i+1] != 0 || img.Pix[i+2] != 0 {
			lit++
		}
	}
	return img, lit, nil
}

// Render paints the samples, rejects all-black results, smooths and upscales.
// It performs no I/O.
func (p *Pipeline) Render(width, height int, samples []Sample) (*image.RGBA, error) {
	img, lit, err := Paint(width, height, samples)
	if err != nil {
		return nil, err
	}
	if lit == 0 {
		return nil, ErrBlank
	}

	scale := p.Scale
	if scale < 1 {
		scale = DefaultScale
	}
	smoothed := GaussianBlur(img, p.BlurRadius)
	return Upscale(smoothed, scale), nil
}
