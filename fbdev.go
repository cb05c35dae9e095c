package surface

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/BeatGlow/surface/internal/ioctl"
)

// From <linux/fb.h>
const (
	fbioGetVScreenInfo = 0x4600
	fbioGetFScreenInfo = 0x4602
)

// fbBitfield describes the bit layout of one color component.
type fbBitfield struct {
	Offset   uint32 // Beginning of bitfield
	Length   uint32 // Length of bitfield
	MsbRight uint32 // != 0 : Most significant bit is right
}

// fbFixScreenInfo holds the device independent fixed information about a
// frame buffer device.
type fbFixScreenInfo struct {
	ID         [16]byte  // Identification string eg "TT Builtin"
	SmemStart  uintptr   // Start of frame buffer mem
	SmemLen    uint32    // Length of frame buffer mem
	Type       uint32    // FB_TYPE_
	TypeAux    uint32    // Interleave for interleaved Planes
	Visual     uint32    // FB_VISUAL_
	Xpanstep   uint16    // Zero if no hardware panning
	Ypanstep   uint16    // Zero if no hardware panning
	Ywrapstep  uint16    // Zero if no hardware ywrap
	LineLength uint32    // Length of a line in bytes
	MmioStart  uintptr   // Start of Memory Mapped I/O (physical address)
	MmioLen    uint32    // Length of Memory Mapped I/O
	Accel      uint32    // Type of acceleration available
	Reserved   [3]uint16 // Reserved for future compatibility
}

// fbVarScreenInfo holds the device independent changeable information
// about a frame buffer device and a specific video mode.
type fbVarScreenInfo struct {
	Xres                    uint32
	Yres                    uint32
	XresVirtual             uint32
	YresVirtual             uint32
	Xoffset                 uint32
	Yoffset                 uint32
	BitsPerPixel            uint32
	Grayscale               uint32
	Red, Green, Blue, Alpha fbBitfield
	Nonstd                  uint32
	Activate                uint32
	Height                  uint32
	Width                   uint32
	AccelFlags              uint32
	Pixclock                uint32
	LeftMargin              uint32
	RightMargin             uint32
	UpperMargin             uint32
	LowerMargin             uint32
	HsyncLen                uint32
	VsyncLen                uint32
	Sync                    uint32
	Vmode                   uint32
	Rotate                  uint32
	Colorspace              uint32
	Reserved                [4]uint32
}

// isXRGB32 reports whether the mode scans out 32-bit packed XRGB.
func (v *fbVarScreenInfo) isXRGB32() bool {
	return v.BitsPerPixel == 32 &&
		v.Red.Offset == 16 && v.Red.Length == 8 &&
		v.Green.Offset == 8 && v.Green.Length == 8 &&
		v.Blue.Offset == 0 && v.Blue.Length == 8
}

// fbdevContext drives a Linux framebuffer device (fbdev) through a
// borrowed file descriptor.
type fbdevContext struct {
	fd      uintptr
	display DisplayHandle
}

func newFBDevContext(display FBDevDisplay) (*fbdevContext, error) {
	// Probe the descriptor so a handle that is not an fbdev fails here,
	// not on first use.
	var fix fbFixScreenInfo
	if err := ioctl.Do(display.FD, fbioGetFScreenInfo, unsafe.Pointer(&fix)); err != nil {
		return nil, &InitError{
			Handle: display,
			Err:    platformErr("descriptor is not a framebuffer device", err),
		}
	}

	return &fbdevContext{
		fd:      display.FD,
		display: display,
	}, nil
}

// CreateSurface binds the device's single screen. The current video mode
// must scan out 32-bit packed XRGB; fbdev exposes no mode negotiation
// beyond what is already configured.
func (c *fbdevContext) CreateSurface(window WindowHandle) (Surface, error) {
	var fix fbFixScreenInfo
	if err := ioctl.Do(c.fd, fbioGetFScreenInfo, unsafe.Pointer(&fix)); err != nil {
		return nil, &InitError{Handle: window, Err: platformErr("failed to get fixed screen info", err)}
	}

	var info fbVarScreenInfo
	if err := ioctl.Do(c.fd, fbioGetVScreenInfo, unsafe.Pointer(&info)); err != nil {
		return nil, &InitError{Handle: window, Err: platformErr("failed to get variable screen info", err)}
	}

	if !info.isXRGB32() {
		return nil, &InitError{
			Handle: window,
			Err:    platformErr(fmt.Sprintf("unsupported color layout (%d bpp)", info.BitsPerPixel), nil),
		}
	}

	return &fbdevSurface{
		fd:     c.fd,
		fix:    fix,
		info:   info,
		window: window,
	}, nil
}

// fbdevSurface renders to the device's mapped scan-out memory through a
// pair of shadow buffers, so the buffer-access contract matches the KMS
// backend: acquire alternates between two buffers whose contents are two
// presentations old.
type fbdevSurface struct {
	fd   uintptr
	fix  fbFixScreenInfo
	info fbVarScreenInfo

	// Device scan-out memory, mapped on the first Resize.
	mem []byte

	// The shadow pair, nil before the first Resize.
	shadows      [2][]uint32
	firstIsFront bool

	window WindowHandle
}

func (s *fbdevSurface) Window() WindowHandle {
	return s.window
}

// Resize allocates the shadow buffers and maps the device memory. The
// screen dimensions are fixed by the configured video mode; a mismatch is
// a programming error.
func (s *fbdevSurface) Resize(width, height uint32) error {
	if width != s.info.Xres || height != s.info.Yres {
		panic(fmt.Sprintf("surface: Resize(%d, %d) does not match the framebuffer mode %dx%d",
			width, height, s.info.Xres, s.info.Yres))
	}

	if s.mem == nil {
		mem, err := unix.Mmap(int(s.fd), 0, int(s.fix.SmemLen),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return platformErr("failed to map framebuffer memory", err)
		}
		s.mem = mem
	}

	s.shadows[0] = make([]uint32, width*height)
	s.shadows[1] = make([]uint32, width*height)
	s.firstIsFront = true

	return nil
}

func (s *fbdevSurface) Buffer() (Buffer, error) {
	if s.shadows[0] == nil {
		return nil, ErrNoBuffers
	}

	s.firstIsFront = !s.firstIsFront
	back := s.shadows[1]
	if s.firstIsFront {
		back = s.shadows[0]
	}

	return &fbdevBuffer{surface: s, pix: back}, nil
}

// Fetch reads back the pixels currently on screen from the mapped device
// memory.
func (s *fbdevSurface) Fetch() ([]uint32, error) {
	if s.mem == nil {
		return nil, ErrNoBuffers
	}

	var (
		words  = unsafe.Slice((*uint32)(unsafe.Pointer(&s.mem[0])), len(s.mem)/4)
		stride = int(s.fix.LineLength / 4)
		width  = int(s.info.Xres)
		pix    = make([]uint32, int(s.info.Yres)*width)
	)
	for y := 0; y < int(s.info.Yres); y++ {
		copy(pix[y*width:(y+1)*width], words[y*stride:y*stride+width])
	}
	return pix, nil
}

func (s *fbdevSurface) Close() error {
	s.shadows[0], s.shadows[1] = nil, nil
	if s.mem != nil {
		mem := s.mem
		s.mem = nil
		return unix.Munmap(mem)
	}
	return nil
}

// fbdevBuffer is a shadow buffer view; presenting copies it into the
// mapped scan-out memory.
type fbdevBuffer struct {
	surface *fbdevSurface
	pix     []uint32
}

func (b *fbdevBuffer) Pixels() []uint32 {
	return b.pix
}

func (b *fbdevBuffer) Stride() int {
	return int(b.surface.info.Xres)
}

// Age matches the KMS contract: two buffers, contents belong to two
// presentations ago.
func (b *fbdevBuffer) Age() uint8 {
	return 2
}

func (b *fbdevBuffer) Present() error {
	return b.PresentWithDamage(nil)
}

// PresentWithDamage copies the damaged rows into device memory, honoring
// the device pitch. A nil damage list publishes the whole buffer. fbdev
// has no flip queue, the copy is the presentation.
func (b *fbdevBuffer) PresentWithDamage(damage []Rect) error {
	s := b.surface
	if s.mem == nil {
		return ErrNoBuffers
	}

	var (
		words  = unsafe.Slice((*uint32)(unsafe.Pointer(&s.mem[0])), len(s.mem)/4)
		stride = int(s.fix.LineLength / 4)
		width  = int(s.info.Xres)
		height = int(s.info.Yres)
	)

	if len(damage) == 0 {
		damage = []Rect{{Width: uint32(width), Height: uint32(height)}}
	}
	for _, d := range damage {
		// Damage rectangles are caller data, clamp them to the screen.
		x0, x1 := int(d.X), int(d.X)+int(d.Width)
		if x1 > width {
			x1 = width
		}
		y1 := int(d.Y) + int(d.Height)
		if y1 > height {
			y1 = height
		}
		if x0 >= x1 {
			continue
		}
		for y := int(d.Y); y < y1; y++ {
			copy(words[y*stride+x0:y*stride+x1], b.pix[y*width+x0:y*width+x1])
		}
	}

	return nil
}
