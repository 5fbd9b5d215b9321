package drain

import (
	"bytes"
	"sync"
)

// Capture accumulates each stream into its own buffer. The two buffers are
// guarded separately so the stdout and stderr drainers never contend.
type Capture struct {
	stdout streamBuffer
	stderr streamBuffer
}

type streamBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewCapture returns an empty Capture.
func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) buffer(s Stream) *streamBuffer {
	if s == Stderr {
		return &c.stderr
	}
	return &c.stdout
}

// Consume appends the chunk to its stream's buffer.
func (c *Capture) Consume(ch Chunk) {
	b := c.buffer(ch.Stream)
	b.mu.Lock()
	b.buf.Write(ch.Data)
	b.mu.Unlock()
}

// Bytes returns a copy of everything captured for s.
func (c *Capture) Bytes(s Stream) []byte {
	b := c.buffer(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

// String returns the captured output for s as text.
func (c *Capture) String(s Stream) string {
	return string(c.Bytes(s))
}

// Len returns the number of bytes captured for s.
func (c *Capture) Len(s Stream) int {
	b := c.buffer(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
