package surface

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFBDevSurface builds an fbdev surface over plain memory instead of a
// mapped device, the presentation path only cares about the byte slice.
func testFBDevSurface(width, height, stride uint32) *fbdevSurface {
	s := &fbdevSurface{
		mem: make([]byte, stride*height*4),
		fix: fbFixScreenInfo{
			SmemLen:    stride * height * 4,
			LineLength: stride * 4,
		},
		info: fbVarScreenInfo{
			Xres:         width,
			Yres:         height,
			BitsPerPixel: 32,
		},
		window: FBDevWindow{},
	}
	s.shadows[0] = make([]uint32, width*height)
	s.shadows[1] = make([]uint32, width*height)
	s.firstIsFront = true
	return s
}

func (s *fbdevSurface) memWords() []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&s.mem[0])), len(s.mem)/4)
}

func TestFBDevBufferBeforeResize(t *testing.T) {
	s := &fbdevSurface{info: fbVarScreenInfo{Xres: 640, Yres: 480}}
	_, err := s.Buffer()
	assert.True(t, errors.Is(err, ErrNoBuffers))
}

func TestFBDevResizeMismatchPanics(t *testing.T) {
	s := &fbdevSurface{info: fbVarScreenInfo{Xres: 640, Yres: 480}}
	assert.Panics(t, func() {
		_ = s.Resize(800, 600)
	})
}

func TestFBDevPresent(t *testing.T) {
	s := testFBDevSurface(8, 4, 8)

	buf, err := s.Buffer()
	require.NoError(t, err)
	require.Len(t, buf.Pixels(), 8*4)
	assert.Equal(t, uint8(2), buf.Age())

	for i := range buf.Pixels() {
		buf.Pixels()[i] = uint32(i)
	}
	require.NoError(t, buf.Present())

	mem := s.memWords()
	for i := 0; i < 8*4; i++ {
		assert.Equal(t, uint32(i), mem[i])
	}
}

func TestFBDevPresentPaddedPitch(t *testing.T) {
	// Device rows are 12 words wide for an 8 pixel image; the copy must
	// honor the pitch.
	s := testFBDevSurface(8, 4, 12)

	buf, err := s.Buffer()
	require.NoError(t, err)
	for i := range buf.Pixels() {
		buf.Pixels()[i] = 0xffffffff
	}
	require.NoError(t, buf.Present())

	mem := s.memWords()
	assert.Equal(t, uint32(0xffffffff), mem[1*12+7]) // last pixel of row 1
	assert.Equal(t, uint32(0), mem[1*12+8])          // padding untouched
}

func TestFBDevPresentWithDamage(t *testing.T) {
	s := testFBDevSurface(8, 4, 8)

	buf, err := s.Buffer()
	require.NoError(t, err)
	for i := range buf.Pixels() {
		buf.Pixels()[i] = 0x11111111
	}
	require.NoError(t, buf.PresentWithDamage([]Rect{{X: 2, Y: 1, Width: 4, Height: 2}}))

	mem := s.memWords()
	assert.Equal(t, uint32(0), mem[0])            // outside damage
	assert.Equal(t, uint32(0x11111111), mem[8+2]) // inside damage
	assert.Equal(t, uint32(0), mem[8+6])          // right of damage
	assert.Equal(t, uint32(0), mem[3*8+2])        // below damage
}

func TestFBDevPresentWithDamageClamped(t *testing.T) {
	s := testFBDevSurface(8, 4, 8)

	buf, err := s.Buffer()
	require.NoError(t, err)
	for i := range buf.Pixels() {
		buf.Pixels()[i] = 0x22222222
	}

	// Rectangles partially or entirely off screen are clamped, never
	// copied out of range.
	require.NoError(t, buf.PresentWithDamage([]Rect{
		{X: 20, Y: 1, Width: 4, Height: 2},  // right of the screen
		{X: 0, Y: 10, Width: 4, Height: 2},  // below the screen
		{X: 6, Y: 3, Width: 90, Height: 90}, // overlaps the corner
	}))

	mem := s.memWords()
	assert.Equal(t, uint32(0), mem[1*8+0])          // off-screen rects copy nothing
	assert.Equal(t, uint32(0x22222222), mem[3*8+6]) // clamped corner rect lands
	assert.Equal(t, uint32(0), mem[3*8+5])          // left of the corner rect
}

func TestFBDevAlternationAndFetch(t *testing.T) {
	s := testFBDevSurface(4, 4, 4)

	buf1, err := s.Buffer()
	require.NoError(t, err)
	buf1.Pixels()[0] = 0xdeadbeef
	require.NoError(t, buf1.Present())

	buf2, err := s.Buffer()
	require.NoError(t, err)
	assert.NotEqual(t, uint32(0xdeadbeef), buf2.Pixels()[0])

	// Fetch reads what is on screen, which is the first presentation.
	pix, err := s.Fetch()
	require.NoError(t, err)
	require.Len(t, pix, 4*4)
	assert.Equal(t, uint32(0xdeadbeef), pix[0])

	// Period-2 alternation.
	require.NoError(t, buf2.Present())
	buf3, err := s.Buffer()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), buf3.Pixels()[0])
}

func TestFBDevXRGBLayout(t *testing.T) {
	info := fbVarScreenInfo{
		BitsPerPixel: 32,
		Red:          fbBitfield{Offset: 16, Length: 8},
		Green:        fbBitfield{Offset: 8, Length: 8},
		Blue:         fbBitfield{Offset: 0, Length: 8},
	}
	assert.True(t, info.isXRGB32())

	bgr := info
	bgr.Red, bgr.Blue = bgr.Blue, bgr.Red
	assert.False(t, bgr.isXRGB32())

	rgb16 := info
	rgb16.BitsPerPixel = 16
	assert.False(t, rgb16.isXRGB32())
}
