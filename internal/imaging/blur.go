package imaging

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// gaussianKernel returns normalised 1-D weights for a Gaussian with the given
// standard deviation, covering three deviations either side of the centre.
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	if radius < 1 {
		radius = 1
	}
	dist := distuv.Normal{Mu: 0, Sigma: sigma}

	weights := make([]float64, 2*radius+1)
	var sum float64
	for i := range weights {
		w := dist.Prob(float64(i - radius))
		weights[i] = w
		sum += w
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// GaussianBlur returns a smoothed copy of src using a separable Gaussian
// kernel with standard deviation sigma. Edge pixels are clamped. A
// non-positive sigma returns an unmodified copy.
func GaussianBlur(src *image.RGBA, sigma float64) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	if sigma <= 0 {
		copy(dst.Pix, src.Pix)
		return dst
	}

	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2
	w, h := b.Dx(), b.Dy()

	// horizontal pass into a float buffer, vertical pass into dst
	tmp := make([]float64, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [4]float64
			for k, weight := range kernel {
				sx := clamp(x+k-radius, 0, w-1)
				i := src.PixOffset(b.Min.X+sx, b.Min.Y+y)
				for c := 0; c < 4; c++ {
					acc[c] += weight * float64(src.Pix[i+c])
				}
			}
			copy(tmp[(y*w+x)*4:], acc[:])
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [4]float64
			for k, weight := range kernel {
				sy := clamp(y+k-radius, 0, h-1)
				j := (sy*w + x) * 4
				for c := 0; c < 4; c++ {
					acc[c] += weight * tmp[j+c]
				}
			}
			i := dst.PixOffset(b.Min.X+x, b.Min.Y+y)
			for c := 0; c < 4; c++ {
				dst.Pix[i+c] = uint8(clamp(int(math.Round(acc[c])), 0, 255))
			}
		}
	}
	return dst
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
