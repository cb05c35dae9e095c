// Package surface provides synchronous, CPU-writable pixel surfaces bound
// to native on-screen targets.
//
// A [Context] is created for a display handle, a [Surface] for a window
// handle on that context. After an initial [Surface.Resize] the surface
// hands out a mapped back [Buffer] to draw into, and presenting the buffer
// publishes it to the screen. The same small capability set is implemented
// by every backend; this package implements direct rendering through the
// kernel mode-setting interface (DRM/KMS dumb buffers) and through the
// legacy framebuffer device (fbdev).
package surface

import (
	"os"
)

var debug bool

func init() {
	debug = os.Getenv("SURFACE_DEBUG") != ""
}

// Rect is a damage rectangle passed to [Buffer.PresentWithDamage], in
// buffer coordinates.
type Rect struct {
	X, Y          uint32
	Width, Height uint32
}

// Context owns or borrows the native device handle of a display for the
// lifetime of the backend. All surfaces created from it share the handle;
// the context never closes a descriptor it does not own.
type Context interface {
	// CreateSurface binds a surface to a window handle. The window handle
	// is held to keep the target alive, direct-rendering backends never
	// dereference it for drawing.
	CreateSurface(window WindowHandle) (Surface, error)
}

// Surface is a presentable pixel target.
type Surface interface {
	// Window returns the window handle the surface was created for.
	Window() WindowHandle

	// Resize allocates the surface's buffers for the given size. On
	// direct-rendering backends the dimensions must exactly equal the
	// negotiated display mode; a mismatch is a programming error and
	// panics.
	Resize(width, height uint32) error

	// Buffer returns the current back buffer, mapped for CPU writes.
	// It fails with [ErrNoBuffers] until Resize has been called. The
	// buffer's prior contents are whatever was presented [Buffer.Age]
	// presentations ago, they are not cleared.
	Buffer() (Buffer, error)

	// Fetch reads back the currently displayed pixels. Not every backend
	// supports read-back; those fail with [ErrUnsupported].
	Fetch() ([]uint32, error)

	// Close releases the surface's buffers. It never closes the device
	// descriptor backing the context.
	Close() error
}

// Buffer is a mutable view of a surface's back buffer. It stays valid
// until presented; using a Buffer after presenting it is a programming
// error.
type Buffer interface {
	// Pixels is the flat pixel array, one packed 32-bit XRGB word per
	// pixel, row-major with [Buffer.Stride] words per row, stride*height
	// entries. On tightly packed hardware that is exactly width*height.
	Pixels() []uint32

	// Stride is the distance between vertically adjacent pixels in
	// words. It can exceed the width on hardware with padded pitches.
	Stride() int

	// Age reports how many presentations old the buffer contents are.
	// Double-buffered backends report a constant 2: content belongs to
	// two presentations ago, never assume it is reused.
	Age() uint8

	// Present publishes the whole buffer. The call returns once the
	// request is submitted; it does not wait for the hardware to
	// complete the swap. Draining completion events from the device is
	// the caller's concern.
	Present() error

	// PresentWithDamage publishes the buffer with a hint which regions
	// changed. Backends that cannot do partial updates republish the
	// whole buffer; an empty damage list is equivalent to Present.
	PresentWithDamage(damage []Rect) error
}

// NewContext creates a context for the display behind the handle,
// dispatching on the handle kind. A handle kind no backend understands is
// a programming error reported as *[InitError] wrapping
// [ErrUnsupportedHandle], carrying the handle so the caller can retry
// with another backend.
func NewContext(display DisplayHandle) (Context, error) {
	switch h := display.(type) {
	case DRMDisplay:
		return newKMSContext(h)
	case FBDevDisplay:
		return newFBDevContext(h)
	default:
		return nil, &InitError{Handle: display, Err: ErrUnsupportedHandle}
	}
}
