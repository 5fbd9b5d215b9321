package process

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PipeCapacity returns the kernel buffer size of the pipe behind f.
func PipeCapacity(f *os.File) (int, error) {
	sc, err := f.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("pipe capacity: %w", err)
	}

	var size int
	var opErr error
	if err := sc.Control(func(fd uintptr) {
		size, opErr = unix.FcntlInt(fd, unix.F_GETPIPE_SZ, 0)
	}); err != nil {
		return 0, fmt.Errorf("pipe capacity: %w", err)
	}
	if opErr != nil {
		return 0, fmt.Errorf("pipe capacity: F_GETPIPE_SZ: %w", opErr)
	}
	return size, nil
}
