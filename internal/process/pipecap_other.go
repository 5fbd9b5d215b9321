//go:build !linux

package process

import (
	"errors"
	"os"
)

// PipeCapacity is only measurable on Linux.
func PipeCapacity(f *os.File) (int, error) {
	return 0, errors.ErrUnsupported
}
