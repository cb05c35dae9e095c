package pixel

import (
	"image"
	"image/color"
	"image/draw"
)

// Image interface implemented by the image types in this package.
type Image interface {
	draw.Image

	// Clear the image.
	Clear()

	// Fill the image with a single color.
	Fill(color.Color)
}

// XRGBImage is a 32-bit packed XRGB image over a flat pixel slice. The
// slice may be shared with a mapped hardware buffer, Set writes land in
// device memory directly.
type XRGBImage struct {
	// Rect is the image bounding box.
	Rect image.Rectangle

	// Pix are the image pixels, one word per pixel.
	Pix []uint32

	// Stride is the Pix stride (in words) between vertically adjacent
	// pixels. It can exceed the width on hardware with padded pitches.
	Stride int
}

// NewXRGBImage returns a tightly packed image with freshly allocated pixels.
func NewXRGBImage(w, h int) *XRGBImage {
	return &XRGBImage{
		Rect:   image.Rect(0, 0, w, h),
		Pix:    make([]uint32, w*h),
		Stride: w,
	}
}

// WrapXRGB wraps an existing pixel slice, like a surface's mapped buffer.
func WrapXRGB(pix []uint32, w, h, stride int) *XRGBImage {
	return &XRGBImage{
		Rect:   image.Rect(0, 0, w, h),
		Pix:    pix,
		Stride: stride,
	}
}

func (p *XRGBImage) ColorModel() color.Model {
	return XRGBModel
}

func (p *XRGBImage) Bounds() image.Rectangle {
	return p.Rect
}

func (p *XRGBImage) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x - p.Rect.Min.X)
}

func (p *XRGBImage) At(x, y int) color.Color {
	if !(image.Point{x, y}).In(p.Rect) {
		return color.Transparent
	}
	return XRGB(p.Pix[p.PixOffset(x, y)])
}

func (p *XRGBImage) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}).In(p.Rect) {
		return
	}
	p.Pix[p.PixOffset(x, y)] = uint32(xrgbModel(c).(XRGB))
}

func (p *XRGBImage) Clear() {
	for i := range p.Pix {
		p.Pix[i] = 0
	}
}

func (p *XRGBImage) Fill(c color.Color) {
	value := uint32(xrgbModel(c).(XRGB))
	if p.Stride == p.Rect.Dx() {
		for i := range p.Pix {
			p.Pix[i] = value
		}
		return
	}
	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		row := p.Pix[p.PixOffset(p.Rect.Min.X, y):]
		for x := 0; x < p.Rect.Dx(); x++ {
			row[x] = value
		}
	}
}
