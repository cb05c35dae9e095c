package surface

import (
	"fmt"
	"log"

	"github.com/BeatGlow/surface/internal/drm"
)

// kmsDevice is the slice of the DRM control interface the KMS backend
// issues against the card descriptor. *drm.Card implements it; tests use
// an in-memory fake.
type kmsDevice interface {
	HasDumbBuffer() bool
	Resources() (*drm.Resources, error)
	Connector(id uint32) (*drm.Connector, error)
	Encoder(id uint32) (*drm.Encoder, error)
	CRTC(id uint32) (*drm.CRTC, error)
	CreateDumb(width, height, bpp uint32) (*drm.DumbBuffer, error)
	MapDumb(db *drm.DumbBuffer) ([]byte, error)
	UnmapDumb(mapping []byte) error
	DestroyDumb(handle uint32) error
	AddFB(db *drm.DumbBuffer, depth, bpp uint32) (uint32, error)
	RmFB(fbID uint32) error
	SetCRTC(crtcID, fbID, x, y uint32, connectors []uint32, mode *drm.Mode) error
	PageFlip(crtcID, fbID, flags uint32) error
}

// kmsContext drives a DRM card through a borrowed file descriptor. The
// descriptor is shared by every surface created from the context and is
// never closed or duplicated here; it must stay open for as long as the
// context or any of its surfaces is in use.
type kmsContext struct {
	dev     kmsDevice
	display DisplayHandle
}

func newKMSContext(display DRMDisplay) (*kmsContext, error) {
	card := drm.New(display.FD)
	if !card.HasDumbBuffer() {
		return nil, &InitError{
			Handle: display,
			Err:    platformErr("DRM card does not support dumb buffers", nil),
		}
	}

	return &kmsContext{
		dev:     card,
		display: display,
	}, nil
}

// CreateSurface negotiates an output configuration for a new surface:
// the first connected connector, its preferred mode and a CRTC reachable
// through one of the connector's encoders. The result is fixed for the
// surface's lifetime.
//
// For an introduction to the DRM/KMS api, refer to drm-kms(7).
func (c *kmsContext) CreateSurface(window WindowHandle) (Surface, error) {
	res, err := c.dev.Resources()
	if err != nil {
		return nil, &InitError{Handle: window, Err: platformErr("could not load card resources", err)}
	}

	conn, err := findConnector(c.dev, res)
	if err != nil {
		return nil, &InitError{Handle: window, Err: err}
	}

	// The first mode is always the preferred, highest-resolution one, as
	// stated by drm-kms(7).
	if len(conn.Modes) == 0 {
		return nil, &InitError{Handle: window, Err: platformErr("no modes found on connector", nil)}
	}
	mode := conn.Modes[0]

	crtc, err := findCRTC(c.dev, res, conn)
	if err != nil {
		return nil, &InitError{Handle: window, Err: err}
	}

	if debug {
		w, h := mode.Size()
		log.Printf("surface: KMS connector %d, CRTC %d, mode %s (%dx%d)", conn.ID, crtc.ID, mode.String(), w, h)
	}

	return &kmsSurface{
		dev:    c.dev,
		crtc:   crtc,
		conn:   conn,
		mode:   mode,
		window: window,
	}, nil
}

// findConnector selects the display connector to render on: the first one
// in enumeration order that has a display attached. Connectors are queried
// fresh from the card, their state is never cached across surfaces.
func findConnector(dev kmsDevice, res *drm.Resources) (*drm.Connector, error) {
	var connected []*drm.Connector
	for _, id := range res.Connectors {
		conn, err := dev.Connector(id)
		if err != nil {
			continue
		}
		if conn.Connected() {
			connected = append(connected, conn)
		}
	}

	if len(connected) == 0 {
		log.Printf("surface: no DRM connector found, did you plug a display in?")
		return nil, platformErr("no connected DRM connector found", nil)
	}
	if len(connected) > 1 {
		log.Printf("surface: more than one connected DRM connector found, using the first one")
	}

	return connected[0], nil
}

// findCRTC selects a CRTC that can drive the connector: walk the
// connector's encoders in order and take the first CRTC in the
// intersection of the encoder's possible-CRTC mask and the card's CRTC
// list.
func findCRTC(dev kmsDevice, res *drm.Resources, conn *drm.Connector) (*drm.CRTC, error) {
	for _, id := range conn.Encoders {
		enc, err := dev.Encoder(id)
		if err != nil {
			return nil, platformErr("failed to get encoder", err)
		}

		if crtcs := res.FilterCRTCs(enc.PossibleCRTCs); len(crtcs) > 0 {
			crtc, err := dev.CRTC(crtcs[0])
			if err != nil {
				return nil, platformErr("failed to get CRTC", err)
			}
			return crtc, nil
		}
	}

	return nil, platformErr("no compatible CRTC found", nil)
}

// kmsSurface renders to a CRTC through a pair of dumb buffers.
type kmsSurface struct {
	dev kmsDevice

	// The negotiated output configuration, fixed at creation.
	crtc *drm.CRTC
	conn *drm.Connector
	mode drm.Mode

	// The swap chain, nil before the first Resize.
	buffers *kmsBuffers

	// Window handle that we are keeping around.
	window WindowHandle
}

func (s *kmsSurface) Window() WindowHandle {
	return s.window
}

// Resize allocates the double-buffered swap chain and performs the initial
// mode-set, so something valid is on screen before the first draw. The
// display timing is fixed once negotiated: the requested size must equal
// the mode exactly.
func (s *kmsSurface) Resize(width, height uint32) error {
	w, h := s.mode.Size()
	if width != w || height != h {
		panic(fmt.Sprintf("surface: Resize(%d, %d) does not match the negotiated mode %dx%d", width, height, w, h))
	}

	buf1, err := newSharedBuffer(s.dev, width, height)
	if err != nil {
		return err
	}
	buf2, err := newSharedBuffer(s.dev, width, height)
	if err != nil {
		buf1.destroy(s.dev)
		return err
	}

	if s.buffers != nil {
		s.buffers.destroy(s.dev)
	}
	s.buffers = &kmsBuffers{
		bufs:         [2]*sharedBuffer{buf1, buf2},
		firstIsFront: true,
	}

	if err := s.dev.SetCRTC(s.crtc.ID, buf1.fb, 0, 0, []uint32{s.conn.ID}, &s.mode); err != nil {
		return platformErr("failed to set CRTC mode", err)
	}

	return nil
}

// Buffer maps the back buffer for CPU writes and flips the front/back
// flag. Contents are not cleared, they belong to the presentation two
// cycles ago.
func (s *kmsSurface) Buffer() (Buffer, error) {
	if s.buffers == nil {
		return nil, ErrNoBuffers
	}

	back := s.buffers.swap()

	mapping, err := s.dev.MapDumb(back.db)
	if err != nil {
		return nil, platformErr("failed to map dumb buffer", err)
	}

	w, h := s.mode.Size()
	return newKMSBuffer(s.dev, s.crtc.ID, back, mapping, w, h), nil
}

// Fetch would read back the displayed pixels; the KMS backend does not
// support read-back.
func (s *kmsSurface) Fetch() ([]uint32, error) {
	return nil, ErrUnsupported
}

// Close releases the swap chain. The card descriptor stays open, it
// belongs to the caller.
func (s *kmsSurface) Close() error {
	if s.buffers != nil {
		s.buffers.destroy(s.dev)
		s.buffers = nil
	}
	return nil
}
