package surface

import (
	"unsafe"

	"github.com/BeatGlow/surface/internal/drm"
)

// Pixel format of every buffer handed out by this package: 32 bits per
// pixel, 24-bit packed XRGB color depth.
const (
	bufferDepth = 24
	bufferBPP   = 32
)

// sharedBuffer is a dumb buffer paired with the framebuffer registered
// over it.
type sharedBuffer struct {
	// The registered framebuffer handle.
	fb uint32

	// The dumb buffer backing it.
	db *drm.DumbBuffer
}

func newSharedBuffer(dev kmsDevice, width, height uint32) (*sharedBuffer, error) {
	db, err := dev.CreateDumb(width, height, bufferBPP)
	if err != nil {
		return nil, platformErr("failed to create dumb buffer", err)
	}

	fb, err := dev.AddFB(db, bufferDepth, bufferBPP)
	if err != nil {
		_ = dev.DestroyDumb(db.Handle)
		return nil, platformErr("failed to add framebuffer", err)
	}

	return &sharedBuffer{fb: fb, db: db}, nil
}

func (b *sharedBuffer) destroy(dev kmsDevice) {
	_ = dev.RmFB(b.fb)
	_ = dev.DestroyDumb(b.db.Handle)
}

// kmsBuffers is the double-buffered swap chain of a surface: exactly two
// shared buffers, one of which is logically front (last bound or
// presented) at any time.
type kmsBuffers struct {
	bufs [2]*sharedBuffer

	// firstIsFront marks bufs[0] as the front buffer. Resize binds
	// bufs[0] to the CRTC, so it starts out true.
	firstIsFront bool
}

// swap flips the front/back flag and returns the buffer that is not
// front, the one safe to hand out for drawing. After the flip the flag
// marks the handed-out buffer as the next front: it is the one about to
// be presented. Nothing waits for the previous flip to complete; the
// alternation alone keeps writes off the buffer being scanned out,
// provided the caller presents no faster than the display refreshes.
func (b *kmsBuffers) swap() *sharedBuffer {
	b.firstIsFront = !b.firstIsFront
	if b.firstIsFront {
		return b.bufs[0]
	}
	return b.bufs[1]
}

func (b *kmsBuffers) destroy(dev kmsDevice) {
	for _, buf := range b.bufs {
		buf.destroy(dev)
	}
}

// kmsBuffer is the mapped view of a surface's back buffer.
type kmsBuffer struct {
	dev  kmsDevice
	crtc uint32
	fb   uint32

	mapping []byte
	pix     []uint32
	stride  int
}

func newKMSBuffer(dev kmsDevice, crtc uint32, buf *sharedBuffer, mapping []byte, width, height uint32) *kmsBuffer {
	words := unsafe.Slice((*uint32)(unsafe.Pointer(&mapping[0])), len(mapping)/4)
	stride := int(buf.db.Pitch / 4)
	return &kmsBuffer{
		dev:     dev,
		crtc:    crtc,
		fb:      buf.fb,
		mapping: mapping,
		pix:     words[:stride*int(height)],
		stride:  stride,
	}
}

func (b *kmsBuffer) Pixels() []uint32 {
	return b.pix
}

func (b *kmsBuffer) Stride() int {
	return b.stride
}

// Age is constant: double-buffered, no triple-buffer history retained, so
// buffer content always belongs to two presentations ago.
func (b *kmsBuffer) Age() uint8 {
	return 2
}

func (b *kmsBuffer) Present() error {
	return b.PresentWithDamage(nil)
}

// PresentWithDamage submits a page flip of this buffer's framebuffer to
// the CRTC, with a completion event queued on the card descriptor, and
// returns without waiting for the flip. Damage rectangles are accepted for
// interface uniformity; KMS republishes the whole buffer. The mapping is
// released, the buffer must not be used afterwards.
func (b *kmsBuffer) PresentWithDamage(_ []Rect) error {
	flipErr := b.dev.PageFlip(b.crtc, b.fb, drm.PageFlipEvent)

	if b.mapping != nil {
		_ = b.dev.UnmapDumb(b.mapping)
		b.mapping = nil
		b.pix = nil
	}

	if flipErr != nil {
		return platformErr("failed to submit page flip", flipErr)
	}
	return nil
}
