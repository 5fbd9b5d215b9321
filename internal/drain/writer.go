package drain

import (
	"io"
	"sync"
)

// WriterSink forwards each stream to an io.Writer. Writes are serialised so
// the same writer may be passed for both streams.
type WriterSink struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
	err    error
}

// NewWriterSink forwards stdout chunks to stdout and stderr chunks to
// stderr. A nil writer drops that stream.
func NewWriterSink(stdout, stderr io.Writer) *WriterSink {
	return &WriterSink{stdout: stdout, stderr: stderr}
}

// Consume writes the chunk. After the first write error the sink stops
// writing and keeps the error for Err; draining continues regardless.
func (w *WriterSink) Consume(c Chunk) {
	out := w.stdout
	if c.Stream == Stderr {
		out = w.stderr
	}
	if out == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	if _, err := out.Write(c.Data); err != nil {
		w.err = err
	}
}

// Err returns the first write error, if any.
func (w *WriterSink) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
