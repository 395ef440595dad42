package imaging

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Lanczos3 is a windowed-sinc resampling kernel with three lobes.
var Lanczos3 = &draw.Kernel{Support: 3, At: lanczos3}

func lanczos3(t float64) float64 {
	if t < 0 {
		t = -t
	}
	if t < 1e-9 {
		return 1
	}
	if t >= 3 {
		return 0
	}
	pt := math.Pi * t
	return 3 * math.Sin(pt) * math.Sin(pt/3) / (pt * pt)
}

// Upscale resamples src to factor times its width and height with the
// Lanczos3 kernel.
func Upscale(src *image.RGBA, factor int) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	Lanczos3.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
