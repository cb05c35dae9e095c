package ioctl

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mode is the IOCTL data direction.
type Mode uint8

// Modes
const (
	None Mode = iota
	Write
	Read
)

// Command to be sent over ioctl.
type Command uintptr

func (c Command) String() string {
	var (
		mode = Mode(c >> 30 & 0x03)
		size = c >> 16 & 0x3fff
		base = c >> 8 & 0xff
		nr   = c & 0xff
		str  string
	)
	if mode&Write > 0 {
		str += " write"
	}
	if mode&Read > 0 {
		str += " read"
	}
	return fmt.Sprintf("ioctl%s (%d bytes) '%c' %#02x", str, size, rune(base), uintptr(nr))
}

// Encode an ioctl command from direction, argument size, type base and number.
func Encode(mode Mode, size uint16, base, nr uintptr) Command {
	return Command(mode)<<30 | Command(size)<<16 | Command(base)<<8 | Command(nr)
}

// Do executes the ioctl call with a pointer argument.
func Do(fd uintptr, command Command, ptr unsafe.Pointer) error {
	return Call(fd, uintptr(command), uintptr(ptr))
}

// Call does a plain ioctl system call. EINTR and EAGAIN are retried, the
// kernel may interrupt slow mode-setting calls.
func Call(fd, command, arg uintptr) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, command, arg)
		switch errno {
		case 0:
			return nil
		case unix.EINTR, unix.EAGAIN:
			continue
		default:
			return fmt.Errorf("%s failed: %w", Command(command), errno)
		}
	}
}
