package drm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event types, from <drm/drm.h>.
const (
	EventVBlank       = 0x01
	EventFlipComplete = 0x02
	EventCRTCSequence = 0x03
)

type eventHeader struct {
	typ    uint32
	length uint32
}

type eventVBlank struct {
	base     eventHeader
	userData uint64
	sec      uint32
	usec     uint32
	sequence uint32
	crtcID   uint32
}

// Event is a decoded entry from the card's event stream. Page flip
// completion and vblank events share the same payload layout.
type Event struct {
	Type     uint32
	UserData uint64
	Sec      uint32
	Usec     uint32
	Sequence uint32
	CRTC     uint32
}

// WaitEvent blocks until the card descriptor becomes readable or the
// timeout expires. A negative timeout blocks indefinitely. It reports
// whether events are pending.
func (c *Card) WaitEvent(timeoutMs int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("drm: poll failed: %w", err)
		}
		return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
	}
}

// ReadEvents drains the pending events from the card descriptor. It
// performs a single read, call WaitEvent first to avoid blocking.
func (c *Card) ReadEvents() ([]Event, error) {
	buf := make([]byte, 1024)
	n, err := unix.Read(int(c.fd), buf)
	if err != nil {
		return nil, fmt.Errorf("drm: reading events failed: %w", err)
	}

	var (
		events     []Event
		headerSize = int(unsafe.Sizeof(eventHeader{}))
	)
	for off := 0; off+headerSize <= n; {
		header := (*eventHeader)(unsafe.Pointer(&buf[off]))
		if header.length == 0 || off+int(header.length) > n {
			return events, fmt.Errorf("drm: truncated event stream")
		}

		switch header.typ {
		case EventVBlank, EventFlipComplete, EventCRTCSequence:
			if int(header.length) >= int(unsafe.Sizeof(eventVBlank{})) {
				ev := (*eventVBlank)(unsafe.Pointer(&buf[off]))
				events = append(events, Event{
					Type:     header.typ,
					UserData: ev.userData,
					Sec:      ev.sec,
					Usec:     ev.usec,
					Sequence: ev.sequence,
					CRTC:     ev.crtcID,
				})
			}
		default:
			// Driver specific event, skip it.
		}

		off += int(header.length)
	}

	return events, nil
}
