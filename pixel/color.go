package pixel

import "image/color"

// XRGBModel converts colors to the packed 32-bit XRGB format.
var XRGBModel color.Model = color.ModelFunc(xrgbModel)

// XRGB represents a 32-bit packed color: 8 unused bits followed by 8 bits
// each of red, green and blue. This is the format scanned out by dumb
// buffer framebuffers.
type XRGB uint32

// RGB packs the three 8-bit components into an XRGB value.
func RGB(r, g, b uint8) XRGB {
	return XRGB(uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

func (c XRGB) RGBA() (r, g, b, a uint32) {
	r = uint32(c>>16) & 0xff
	g = uint32(c>>8) & 0xff
	b = uint32(c) & 0xff
	// Duplicate the whole value in the high byte.
	r |= r << 8
	g |= g << 8
	b |= b << 8
	return r, g, b, 0xffff
}

func xrgbModel(c color.Color) color.Color {
	if _, ok := c.(XRGB); ok {
		return c
	}
	r, g, b, _ := c.RGBA()
	return XRGB((r & 0xff00 << 8) | (g & 0xff00) | b>>8)
}
