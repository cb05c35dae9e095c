package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/BeatGlow/surface"
	"github.com/BeatGlow/surface/internal/drm"
	"github.com/BeatGlow/surface/pixel"
)

func main() {
	widthFlag := flag.Int("width", 0, "Surface width (default: negotiated mode)")
	heightFlag := flag.Int("height", 0, "Surface height (default: negotiated mode)")
	cardFlag := flag.String("card", "", "DRM card device (default: probe /dev/dri)")
	fbFlag := flag.String("fb", "/dev/fb0", "Framebuffer device")
	blPinFlag := flag.String("bl", "", "Backlight GPIO pin")
	fontFlag := flag.String("font", "", "TrueType font for the frame counter overlay")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <kms|fbdev>\n", os.Args[0])
		os.Exit(1)
	}

	if _, err := host.Init(); err != nil {
		fatal(err)
	}

	if *blPinFlag != "" {
		pin := gpioreg.ByName(*blPinFlag)
		if pin == nil {
			fatal(fmt.Errorf("no GPIO pin named %q", *blPinFlag))
		}
		if err := pin.Out(gpio.High); err != nil {
			fatal(err)
		}
		fmt.Printf("using backlight: %s\n", pin)
	}

	var face font.Face
	if *fontFlag != "" {
		data, err := os.ReadFile(*fontFlag)
		if err != nil {
			fatal(err)
		}
		f, err := truetype.Parse(data)
		if err != nil {
			fatal(err)
		}
		face = truetype.NewFace(f, &truetype.Options{Size: 24})
		defer face.Close()
	}

	var (
		width, height = *widthFlag, *heightFlag
		display       surface.DisplayHandle
		window        surface.WindowHandle
		card          *drm.Card
		err           error
	)
	switch backend := flag.Arg(0); backend {
	case "kms":
		var dev *os.File
		if *cardFlag != "" {
			dev, err = os.OpenFile(*cardFlag, os.O_RDWR, 0)
		} else {
			dev, err = drm.Probe()
		}
		if err != nil {
			fatal(err)
		}
		defer dev.Close()
		fmt.Printf("using card: %s\n", dev.Name())

		card = drm.New(dev.Fd())
		var plane uint32
		if width, height, plane, err = negotiate(card); err != nil {
			fatal(err)
		}
		if *widthFlag != 0 {
			width = *widthFlag
		}
		if *heightFlag != 0 {
			height = *heightFlag
		}

		display = surface.DRMDisplay{FD: dev.Fd()}
		window = surface.DRMWindow{Plane: plane}

	case "fbdev":
		if width == 0 || height == 0 {
			fatal(fmt.Errorf("the fbdev backend requires -width and -height"))
		}
		dev, err := os.OpenFile(*fbFlag, os.O_RDWR, 0)
		if err != nil {
			fatal(err)
		}
		defer dev.Close()
		fmt.Printf("using framebuffer: %s\n", dev.Name())

		display = surface.FBDevDisplay{FD: dev.Fd()}
		window = surface.FBDevWindow{}

	default:
		fatal(fmt.Errorf("unsupported backend %q", backend))
	}

	ctx, err := surface.NewContext(display)
	if err != nil {
		fatal(err)
	}
	out, err := ctx.CreateSurface(window)
	if err != nil {
		fatal(err)
	}
	defer out.Close()

	if err = out.Resize(uint32(width), uint32(height)); err != nil {
		fatal(err)
	}
	fmt.Printf("using surface: %dx%d\n", width, height)

	var (
		offset int
		ticker = time.NewTicker(50 * time.Millisecond)
	)
	defer ticker.Stop()

	fmt.Println("hit control-c to stop...")
	for {
		buf, err := out.Buffer()
		if err != nil {
			fatal(err)
		}

		img := pixel.WrapXRGB(buf.Pixels(), width, height, buf.Stride())
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.Set(x, y, color.RGBA{
					R: uint8(x + y + offset),
					G: uint8(x - y + offset),
					B: uint8(x + y - offset),
					A: 0xff,
				})
			}
		}

		if face != nil {
			drawer := &font.Drawer{
				Dst:  img,
				Src:  image.NewUniform(color.White),
				Face: face,
				Dot:  fixed.P(8, 32),
			}
			drawer.DrawString(fmt.Sprintf("frame %d", offset))
		}

		if err = buf.Present(); err != nil {
			fatal(err)
		}
		if card != nil {
			if err = waitFlip(card); err != nil {
				fatal(err)
			}
		}

		offset++
		<-ticker.C
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "fatal: "+err.Error())
	os.Exit(1)
}

// negotiate mirrors the surface's output selection to learn the mode size
// and to pick the primary plane for the window handle: first connected
// connector, its preferred mode, the first CRTC reachable through the
// connector's encoders.
func negotiate(card *drm.Card) (width, height int, plane uint32, err error) {
	if err = card.SetClientCap(drm.ClientCapUniversalPlanes, 1); err != nil {
		// Old kernels scan out fine without universal planes, the window
		// handle just falls back to plane 0.
		fmt.Println("universal planes not supported, using plane 0")
		err = nil
	}

	res, err := card.Resources()
	if err != nil {
		return
	}

	var conn *drm.Connector
	for _, id := range res.Connectors {
		c, cerr := card.Connector(id)
		if cerr == nil && c.Connected() {
			conn = c
			break
		}
	}
	if conn == nil {
		err = fmt.Errorf("no connected DRM connector found")
		return
	}
	if len(conn.Modes) == 0 {
		err = fmt.Errorf("no modes found on connector %d", conn.ID)
		return
	}

	mode := conn.Modes[0]
	w, h := mode.Size()
	width, height = int(w), int(h)
	fmt.Printf("using connector %d, mode %s\n", conn.ID, mode.String())

	var crtcID uint32
	for _, id := range conn.Encoders {
		enc, eerr := card.Encoder(id)
		if eerr != nil {
			continue
		}
		if crtcs := res.FilterCRTCs(enc.PossibleCRTCs); len(crtcs) > 0 {
			crtcID = crtcs[0]
			break
		}
	}
	if crtcID == 0 {
		err = fmt.Errorf("no compatible CRTC found")
		return
	}

	if plane, err = card.PrimaryPlane(res, crtcID); err != nil {
		fmt.Printf("no primary plane found (%s), using plane 0\n", err)
		plane, err = 0, nil
	}
	return
}

// waitFlip blocks until the card reports the submitted page flip as
// complete, so the loop never outpaces the display.
func waitFlip(card *drm.Card) error {
	for {
		pending, err := card.WaitEvent(1000)
		if err != nil {
			return err
		}
		if !pending {
			// Some drivers signal flips only on the next vblank; give the
			// loop a chance instead of spinning forever.
			return nil
		}

		events, err := card.ReadEvents()
		if err != nil {
			return err
		}
		for _, ev := range events {
			if ev.Type == drm.EventFlipComplete {
				return nil
			}
		}
	}
}
