package process

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
)

// ReadEnd is the parent's side of a child output pipe.
//
// Close is idempotent: once the first call has run, later calls return the
// same result. A read end already closed because the stream ended is not an
// error to close again.
type ReadEnd struct {
	file   *os.File
	name   string
	closed atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

func newReadEnd(f *os.File, name string) *ReadEnd {
	return &ReadEnd{file: f, name: name}
}

// Read reads from the pipe. After Close it returns an error matching
// os.ErrClosed.
func (r *ReadEnd) Read(p []byte) (int, error) {
	return r.file.Read(p)
}

// Close releases the descriptor. Closing an in-progress Read unblocks it.
func (r *ReadEnd) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		if err := r.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			r.closeErr = err
		}
	})
	return r.closeErr
}

// Closed reports whether Close has been called.
func (r *ReadEnd) Closed() bool {
	return r.closed.Load()
}

// Name returns "stdout" or "stderr".
func (r *ReadEnd) Name() string {
	return r.name
}

// Capacity returns the kernel buffer size of the pipe.
func (r *ReadEnd) Capacity() (int, error) {
	return PipeCapacity(r.file)
}
