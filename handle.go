package surface

// DisplayHandle identifies a native display device. It is a tagged
// variant: each backend understands exactly one kind and rejects the
// others at context construction.
type DisplayHandle interface {
	isDisplayHandle()
}

// WindowHandle identifies a native window, or for direct-rendering
// backends the scan-out target standing in for one.
type WindowHandle interface {
	isWindowHandle()
}

// DRMDisplay is the borrowed file descriptor of an open DRM card, like
// /dev/dri/card0. The descriptor must stay open for as long as the
// context or any surface created from it lives; the backend never closes
// or duplicates it.
type DRMDisplay struct {
	FD uintptr
}

func (DRMDisplay) isDisplayHandle() {}

// DRMWindow is the plane handle a KMS surface is created for. The handle
// is held to keep the selection alive, legacy mode-setting drives the
// CRTC directly and never dereferences it.
type DRMWindow struct {
	Plane uint32
}

func (DRMWindow) isWindowHandle() {}

// FBDevDisplay is the borrowed file descriptor of an open framebuffer
// device, like /dev/fb0. The same borrowing rules as for [DRMDisplay]
// apply.
type FBDevDisplay struct {
	FD uintptr
}

func (FBDevDisplay) isDisplayHandle() {}

// FBDevWindow is the window handle of an fbdev surface. The device scans
// out a single fixed screen, so there is nothing to select.
type FBDevWindow struct{}

func (FBDevWindow) isWindowHandle() {}
