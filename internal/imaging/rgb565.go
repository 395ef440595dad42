package imaging

import "image/color"

// Decode565 expands a 16-bit RGB565 sample to 8 bits per channel. Each
// channel is scaled with integer truncation, matching the pad's reference
// conversion exactly.
func Decode565(c uint16) color.RGBA {
	r := uint32(c>>11) & 0x1F
	g := uint32(c>>5) & 0x3F
	b := uint32(c) & 0x1F
	return color.RGBA{
		R: uint8(r * 255 / 31),
		G: uint8(g * 255 / 63),
		B: uint8(b * 255 / 31),
		A: 0xFF,
	}
}
