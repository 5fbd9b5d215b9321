package drain

import (
	"fmt"
	"sync"

	"github.com/armon/circbuf"
)

// DefaultTailBytes is the per-stream tail size used in reports.
const DefaultTailBytes = 4 * 1024

// Tail keeps the last N bytes of each stream. Memory stays bounded no matter
// how much the child writes.
type Tail struct {
	mu     sync.Mutex
	stdout *circbuf.Buffer
	stderr *circbuf.Buffer
}

// NewTail creates a Tail holding up to size bytes per stream.
func NewTail(size int64) (*Tail, error) {
	out, err := circbuf.NewBuffer(size)
	if err != nil {
		return nil, fmt.Errorf("tail buffer: %w", err)
	}
	errBuf, err := circbuf.NewBuffer(size)
	if err != nil {
		return nil, fmt.Errorf("tail buffer: %w", err)
	}
	return &Tail{stdout: out, stderr: errBuf}, nil
}

func (t *Tail) buffer(s Stream) *circbuf.Buffer {
	if s == Stderr {
		return t.stderr
	}
	return t.stdout
}

// Consume writes the chunk into its stream's ring.
func (t *Tail) Consume(c Chunk) {
	t.mu.Lock()
	_, _ = t.buffer(c.Stream).Write(c.Data)
	t.mu.Unlock()
}

// Bytes returns a copy of the retained tail for s.
func (t *Tail) Bytes(s Stream) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.buffer(s).Bytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// TotalWritten returns every byte seen for s, retained or not.
func (t *Tail) TotalWritten(s Stream) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buffer(s).TotalWritten()
}

// Truncated reports whether older output for s was discarded.
func (t *Tail) Truncated(s Stream) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.buffer(s)
	return b.TotalWritten() > b.Size()
}
