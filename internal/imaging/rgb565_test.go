package imaging

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDecode565_SpotValues(t *testing.T) {
	tests := []struct {
		in   uint16
		want color.RGBA
	}{
		{0xF800, color.RGBA{R: 255, A: 255}},
		{0x07E0, color.RGBA{G: 255, A: 255}},
		{0x001F, color.RGBA{B: 255, A: 255}},
		{0x0000, color.RGBA{A: 255}},
		{0xFFFF, color.RGBA{R: 255, G: 255, B: 255, A: 255}},
		{0x0821, color.RGBA{R: 8, G: 4, B: 8, A: 255}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Decode565(tt.in), "Decode565(%#04x)", tt.in)
	}
}

// TestPropertyDecode565Deterministic verifies same input always produces same output.
func TestPropertyDecode565Deterministic(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		c := rapid.Uint16().Draw(t, "color")
		if Decode565(c) != Decode565(c) {
			t.Fatalf("Decode565(%#04x) not deterministic", c)
		}
	})
}

// TestPropertyDecode565MatchesChannelFormula checks every channel against the
// truncating 5-6-5 expansion and that alpha is always opaque.
func TestPropertyDecode565MatchesChannelFormula(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		c := rapid.Uint16().Draw(t, "color")
		got := Decode565(c)

		wantR := int(c>>11) * 255 / 31
		wantG := int((c>>5)&0x3F) * 255 / 63
		wantB := int(c&0x1F) * 255 / 31
		if int(got.R) != wantR || int(got.G) != wantG || int(got.B) != wantB {
			t.Fatalf("Decode565(%#04x) = %v, want (%d,%d,%d)", c, got, wantR, wantG, wantB)
		}
		if got.A != 255 {
			t.Fatalf("Decode565(%#04x) alpha = %d, want 255", c, got.A)
		}
	})
}

// TestPropertyDecode565Black verifies only the zero sample decodes to black.
func TestPropertyDecode565Black(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		c := rapid.Uint16Range(1, 0xFFFF).Draw(t, "color")
		got := Decode565(c)
		if got.R == 0 && got.G == 0 && got.B == 0 {
			t.Fatalf("Decode565(%#04x) decoded to black", c)
		}
	})
}
