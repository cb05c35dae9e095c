// Package drm wraps the kernel mode-setting (KMS) control interface of a
// DRM card. It covers the subset needed for dumb-buffer rendering: resource
// enumeration, connector/encoder/CRTC/plane queries, dumb buffer management,
// framebuffer registration, mode-setting, page flips and event decoding.
//
// A Card borrows a file descriptor, it never closes or duplicates it.
// Closing the descriptor is the responsibility of whoever opened it.
package drm

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/BeatGlow/surface/internal/ioctl"
)

// ioctl base for DRM commands, from <drm/drm.h>.
const ioctlBase = 'd'

// Device capabilities, from <drm/drm.h>.
const (
	CapDumbBuffer         = 0x1
	CapDumbPreferredDepth = 0x3
	CapAsyncPageFlip      = 0x7
)

// Client capabilities.
const (
	ClientCapStereo3D        = 1
	ClientCapUniversalPlanes = 2
	ClientCapAtomic          = 3
)

type capability struct {
	id  uint64
	val uint64
}

type setClientCap struct {
	capability uint64
	value      uint64
}

var (
	// DRM_IOWR(0x0C, struct drm_get_cap)
	ioctlGetCap = ioctl.Encode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(capability{})), ioctlBase, 0x0C)

	// DRM_IOW(0x0D, struct drm_set_client_cap)
	ioctlSetClientCap = ioctl.Encode(ioctl.Write,
		uint16(unsafe.Sizeof(setClientCap{})), ioctlBase, 0x0D)
)

// Card is a DRM control device, addressed by a borrowed file descriptor.
type Card struct {
	fd uintptr
}

// New wraps the borrowed file descriptor of an open DRM card.
func New(fd uintptr) *Card {
	return &Card{fd: fd}
}

// FD returns the borrowed descriptor.
func (c *Card) FD() uintptr {
	return c.fd
}

// Cap queries a device capability.
func (c *Card) Cap(id uint64) (uint64, error) {
	arg := capability{id: id}
	if err := ioctl.Do(c.fd, ioctlGetCap, unsafe.Pointer(&arg)); err != nil {
		return 0, err
	}
	return arg.val, nil
}

// HasDumbBuffer reports whether the card supports dumb buffers.
func (c *Card) HasDumbBuffer() bool {
	val, err := c.Cap(CapDumbBuffer)
	return err == nil && val != 0
}

// SetClientCap enables a client capability, like universal plane
// enumeration.
func (c *Card) SetClientCap(id, value uint64) error {
	arg := setClientCap{capability: id, value: value}
	return ioctl.Do(c.fd, ioctlSetClientCap, unsafe.Pointer(&arg))
}

// Probe scans /dev/dri/card0 through card9 and returns the first card that
// supports dumb buffers and has a connected connector. The returned file is
// owned by the caller.
func Probe() (*os.File, error) {
	for i := 0; i < 10; i++ {
		f, err := os.OpenFile(fmt.Sprintf("/dev/dri/card%d", i), os.O_RDWR, 0)
		if err != nil {
			// Card numbering may not start at zero.
			continue
		}

		card := New(f.Fd())
		if !card.HasDumbBuffer() {
			_ = f.Close()
			continue
		}

		res, err := card.Resources()
		if err != nil {
			_ = f.Close()
			continue
		}

		for _, id := range res.Connectors {
			conn, err := card.Connector(id)
			if err == nil && conn.Connected() {
				return f, nil
			}
		}
		_ = f.Close()
	}

	return nil, fmt.Errorf("drm: no usable card found in /dev/dri")
}
