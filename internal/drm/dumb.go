package drm

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/BeatGlow/surface/internal/ioctl"
)

// Page flip flags, from <drm/drm_mode.h>.
const (
	PageFlipEvent = 0x01
	PageFlipAsync = 0x02
)

type (
	modeCreateDumb struct {
		height, width uint32
		bpp           uint32
		flags         uint32

		// filled in by the kernel
		handle uint32
		pitch  uint32
		size   uint64
	}

	modeMapDumb struct {
		handle uint32
		pad    uint32

		// fake offset for the subsequent mmap call
		offset uint64
	}

	modeDestroyDumb struct {
		handle uint32
	}

	modeFBCmd struct {
		fbID          uint32
		width, height uint32
		pitch         uint32
		bpp           uint32
		depth         uint32
		handle        uint32
	}

	modeCRTCPageFlip struct {
		crtcID   uint32
		fbID     uint32
		flags    uint32
		reserved uint32
		userData uint64
	}
)

var (
	// DRM_IOWR(0xAE, struct drm_mode_fb_cmd)
	ioctlModeAddFB = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeFBCmd{})), ioctlBase, 0xAE)

	// DRM_IOWR(0xAF, unsigned int)
	ioctlModeRmFB = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(uint32(0))), ioctlBase, 0xAF)

	// DRM_IOWR(0xB0, struct drm_mode_crtc_page_flip)
	ioctlModePageFlip = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeCRTCPageFlip{})), ioctlBase, 0xB0)

	// DRM_IOWR(0xB2, struct drm_mode_create_dumb)
	ioctlModeCreateDumb = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeCreateDumb{})), ioctlBase, 0xB2)

	// DRM_IOWR(0xB3, struct drm_mode_map_dumb)
	ioctlModeMapDumb = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeMapDumb{})), ioctlBase, 0xB3)

	// DRM_IOWR(0xB4, struct drm_mode_destroy_dumb)
	ioctlModeDestroyDumb = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(modeDestroyDumb{})), ioctlBase, 0xB4)
)

// DumbBuffer is a CPU-mappable block of device memory without hardware
// acceleration.
type DumbBuffer struct {
	Handle uint32
	Pitch  uint32
	Size   uint64

	Width, Height uint32
	BPP           uint32
}

// CreateDumb allocates a dumb buffer on the card.
func (c *Card) CreateDumb(width, height, bpp uint32) (*DumbBuffer, error) {
	arg := modeCreateDumb{
		width:  width,
		height: height,
		bpp:    bpp,
	}
	if err := ioctl.Do(c.fd, ioctlModeCreateDumb, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	return &DumbBuffer{
		Handle: arg.handle,
		Pitch:  arg.pitch,
		Size:   arg.size,
		Width:  width,
		Height: height,
		BPP:    bpp,
	}, nil
}

// MapDumb maps a dumb buffer into the process address space. The returned
// slice must be released with [Card.UnmapDumb].
func (c *Card) MapDumb(db *DumbBuffer) ([]byte, error) {
	arg := modeMapDumb{handle: db.Handle}
	if err := ioctl.Do(c.fd, ioctlModeMapDumb, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	return unix.Mmap(int(c.fd), int64(arg.offset), int(db.Size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// UnmapDumb releases a mapping returned by MapDumb.
func (c *Card) UnmapDumb(mapping []byte) error {
	return unix.Munmap(mapping)
}

// DestroyDumb releases a dumb buffer.
func (c *Card) DestroyDumb(handle uint32) error {
	arg := modeDestroyDumb{handle: handle}
	return ioctl.Do(c.fd, ioctlModeDestroyDumb, unsafe.Pointer(&arg))
}

// AddFB registers a framebuffer over a dumb buffer with the given color
// depth and bits per pixel.
func (c *Card) AddFB(db *DumbBuffer, depth, bpp uint32) (uint32, error) {
	arg := modeFBCmd{
		width:  db.Width,
		height: db.Height,
		pitch:  db.Pitch,
		bpp:    bpp,
		depth:  depth,
		handle: db.Handle,
	}
	if err := ioctl.Do(c.fd, ioctlModeAddFB, unsafe.Pointer(&arg)); err != nil {
		return 0, err
	}
	return arg.fbID, nil
}

// RmFB unregisters a framebuffer.
func (c *Card) RmFB(fbID uint32) error {
	return ioctl.Do(c.fd, ioctlModeRmFB, unsafe.Pointer(&fbID))
}

// PageFlip requests the CRTC to scan out the given framebuffer at the next
// vertical blank. With PageFlipEvent set, a completion event is queued on
// the card descriptor once the flip happened. The call itself does not wait
// for the flip.
func (c *Card) PageFlip(crtcID, fbID, flags uint32) error {
	arg := modeCRTCPageFlip{
		crtcID: crtcID,
		fbID:   fbID,
		flags:  flags,
	}
	return ioctl.Do(c.fd, ioctlModePageFlip, unsafe.Pointer(&arg))
}
