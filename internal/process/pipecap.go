package process

import "os"

// FallbackPipeCapacity is the usual Linux default, used when the real size
// cannot be measured.
const FallbackPipeCapacity = 64 * 1024

// DefaultPipeCapacity measures the capacity of a freshly created pipe.
// It returns FallbackPipeCapacity when that is not possible.
func DefaultPipeCapacity() int {
	r, w, err := os.Pipe()
	if err != nil {
		return FallbackPipeCapacity
	}
	defer r.Close()
	defer w.Close()

	size, err := PipeCapacity(r)
	if err != nil || size <= 0 {
		return FallbackPipeCapacity
	}
	return size
}
