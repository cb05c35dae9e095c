// Package pixel implements the packed 32-bit XRGB color and image types
// used by CPU-rendered display surfaces.
//
// The types are compatible with Go's native [color.Color] and
// [image.Image] / [draw.Image] interfaces, so the standard draw routines
// and font rasterizers can render straight into a mapped surface buffer.
package pixel
