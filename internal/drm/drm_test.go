package drm

import (
	"fmt"
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeatGlow/surface/internal/ioctl"
)

// The encoded commands must match the values from <drm/drm.h>, the kernel
// rejects anything else.
func TestCommandEncoding(t *testing.T) {
	for _, test := range []struct {
		name string
		cmd  ioctl.Command
		want uintptr
	}{
		{"DRM_IOCTL_GET_CAP", ioctlGetCap, 0xC010640C},
		{"DRM_IOCTL_SET_CLIENT_CAP", ioctlSetClientCap, 0x4010640D},
		{"DRM_IOCTL_MODE_GETRESOURCES", ioctlModeResources, 0xC04064A0},
		{"DRM_IOCTL_MODE_GETCRTC", ioctlModeGetCRTC, 0xC06864A1},
		{"DRM_IOCTL_MODE_SETCRTC", ioctlModeSetCRTC, 0xC06864A2},
		{"DRM_IOCTL_MODE_GETENCODER", ioctlModeGetEncoder, 0xC01464A6},
		{"DRM_IOCTL_MODE_GETCONNECTOR", ioctlModeGetConnector, 0xC05064A7},
		{"DRM_IOCTL_MODE_GETPROPERTY", ioctlModeGetProperty, 0xC04064AA},
		{"DRM_IOCTL_MODE_ADDFB", ioctlModeAddFB, 0xC01C64AE},
		{"DRM_IOCTL_MODE_RMFB", ioctlModeRmFB, 0xC00464AF},
		{"DRM_IOCTL_MODE_PAGE_FLIP", ioctlModePageFlip, 0xC01864B0},
		{"DRM_IOCTL_MODE_CREATE_DUMB", ioctlModeCreateDumb, 0xC02064B2},
		{"DRM_IOCTL_MODE_MAP_DUMB", ioctlModeMapDumb, 0xC01064B3},
		{"DRM_IOCTL_MODE_DESTROY_DUMB", ioctlModeDestroyDumb, 0xC00464B4},
		{"DRM_IOCTL_MODE_GETPLANERESOURCES", ioctlModeGetPlaneResources, 0xC01064B5},
		{"DRM_IOCTL_MODE_GETPLANE", ioctlModeGetPlane, 0xC02064B6},
		{"DRM_IOCTL_MODE_OBJ_GETPROPERTIES", ioctlModeObjGetProperties, 0xC02064B9},
	} {
		if uintptr(test.cmd) != test.want {
			t.Errorf("%s encoded as %#08x, expected %#08x", test.name, uintptr(test.cmd), test.want)
		}
	}
}

func TestFilterCRTCs(t *testing.T) {
	res := &Resources{CRTCs: []uint32{11, 22, 33, 44}}

	assert.Nil(t, res.FilterCRTCs(0))
	assert.Equal(t, []uint32{11}, res.FilterCRTCs(0b0001))
	assert.Equal(t, []uint32{22, 44}, res.FilterCRTCs(0b1010))
	assert.Equal(t, []uint32{11, 22, 33, 44}, res.FilterCRTCs(^uint32(0)))
}

func TestMode(t *testing.T) {
	mode := Mode{Hdisplay: 1920, Vdisplay: 1080, Vrefresh: 60}
	copy(mode.Name[:], "1920x1080")

	w, h := mode.Size()
	assert.Equal(t, uint32(1920), w)
	assert.Equal(t, uint32(1080), h)
	assert.Equal(t, "1920x1080", mode.String())
}

func TestShrink(t *testing.T) {
	modes := []Mode{{Hdisplay: 1920}, {Hdisplay: 1280}}

	// A display unplugged between the two fill calls shrinks the count.
	assert.Len(t, shrink(modes, 1), 1)

	// One plugged in grows it, but the kernel only filled what was
	// allocated.
	assert.Len(t, shrink(modes, 5), 2)
	assert.Len(t, shrink(modes, 2), 2)
	assert.Empty(t, shrink(modes, 0))
}

// fakePlaneSource is an in-memory plane topology for the primary-plane
// selection.
type fakePlaneSource struct {
	order  []uint32
	planes map[uint32]*Plane
	props  map[uint32]*Properties // per plane handle
	defs   map[uint32]*Property   // per property handle
}

func (f *fakePlaneSource) Planes() ([]uint32, error) {
	return f.order, nil
}

func (f *fakePlaneSource) Plane(id uint32) (*Plane, error) {
	if plane, ok := f.planes[id]; ok {
		return plane, nil
	}
	return nil, fmt.Errorf("no such plane %d", id)
}

func (f *fakePlaneSource) Property(id uint32) (*Property, error) {
	if prop, ok := f.defs[id]; ok {
		return prop, nil
	}
	return nil, fmt.Errorf("no such property %d", id)
}

func (f *fakePlaneSource) ObjectProperties(objID, _ uint32) (*Properties, error) {
	if props, ok := f.props[objID]; ok {
		return props, nil
	}
	return nil, fmt.Errorf("no properties on object %d", objID)
}

func TestPrimaryPlane(t *testing.T) {
	res := &Resources{CRTCs: []uint32{30, 31}}

	t.Run("prefers the primary plane", func(t *testing.T) {
		dev := &fakePlaneSource{
			order: []uint32{1, 2, 3},
			planes: map[uint32]*Plane{
				1: {ID: 1, PossibleCRTCs: 0b10}, // other CRTC
				2: {ID: 2, PossibleCRTCs: 0b01}, // overlay
				3: {ID: 3, PossibleCRTCs: 0b01}, // primary
			},
			props: map[uint32]*Properties{
				2: {ObjectID: 2, IDs: []uint32{7}, Values: []uint64{PlaneTypeOverlay}},
				3: {ObjectID: 3, IDs: []uint32{7}, Values: []uint64{PlaneTypePrimary}},
			},
			defs: map[uint32]*Property{
				7: {ID: 7, Name: "type"},
			},
		}

		plane, err := primaryPlane(dev, res, 30)
		require.NoError(t, err)
		assert.Equal(t, uint32(3), plane)
	})

	t.Run("falls back to the first compatible plane", func(t *testing.T) {
		// No plane advertises a "type" property at all.
		dev := &fakePlaneSource{
			order: []uint32{1, 2, 3},
			planes: map[uint32]*Plane{
				1: {ID: 1, PossibleCRTCs: 0b10},
				2: {ID: 2, PossibleCRTCs: 0b01},
				3: {ID: 3, PossibleCRTCs: 0b01},
			},
		}

		plane, err := primaryPlane(dev, res, 30)
		require.NoError(t, err)
		assert.Equal(t, uint32(2), plane)
	})

	t.Run("no compatible plane", func(t *testing.T) {
		dev := &fakePlaneSource{
			order: []uint32{1},
			planes: map[uint32]*Plane{
				1: {ID: 1, PossibleCRTCs: 0b01},
			},
		}

		_, err := primaryPlane(dev, res, 31)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no plane compatible with CRTC 31")
	})
}

func TestConnectorConnected(t *testing.T) {
	assert.True(t, (&Connector{Connection: Connected}).Connected())
	assert.False(t, (&Connector{Connection: Disconnected}).Connected())
	assert.False(t, (&Connector{Connection: UnknownConnection}).Connected())
}

// The kernel writes drm_event_vblank records to the card descriptor; feed
// the same bytes through a pipe and check the decoder.
func TestReadEvents(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	events := []eventVBlank{
		{
			base:     eventHeader{typ: EventFlipComplete, length: uint32(unsafe.Sizeof(eventVBlank{}))},
			userData: 42,
			sequence: 7,
			crtcID:   30,
		},
		{
			base:     eventHeader{typ: EventVBlank, length: uint32(unsafe.Sizeof(eventVBlank{}))},
			sequence: 8,
		},
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&events[0])), len(events)*int(unsafe.Sizeof(eventVBlank{})))
	_, err = w.Write(raw)
	require.NoError(t, err)

	card := New(r.Fd())

	pending, err := card.WaitEvent(1000)
	require.NoError(t, err)
	assert.True(t, pending)

	decoded, err := card.ReadEvents()
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	assert.Equal(t, uint32(EventFlipComplete), decoded[0].Type)
	assert.Equal(t, uint64(42), decoded[0].UserData)
	assert.Equal(t, uint32(7), decoded[0].Sequence)
	assert.Equal(t, uint32(30), decoded[0].CRTC)

	assert.Equal(t, uint32(EventVBlank), decoded[1].Type)
	assert.Equal(t, uint32(8), decoded[1].Sequence)
}

func TestWaitEventTimeout(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	pending, err := New(r.Fd()).WaitEvent(0)
	require.NoError(t, err)
	assert.False(t, pending)
}
