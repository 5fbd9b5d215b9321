package drain

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
)

// Transcript records chunks from both streams in arrival order under one
// mutex. Interleaving across streams is whatever order the drainers got the
// lock in; order within a stream is preserved.
type Transcript struct {
	mu     sync.Mutex
	chunks []Chunk
	ended  map[Stream]bool
}

// NewTranscript returns an empty Transcript.
func NewTranscript() *Transcript {
	return &Transcript{ended: make(map[Stream]bool)}
}

// Consume appends the chunk.
func (t *Transcript) Consume(c Chunk) {
	t.mu.Lock()
	t.chunks = append(t.chunks, c)
	t.mu.Unlock()
}

// EndStream marks s as finished.
func (t *Transcript) EndStream(s Stream) {
	t.mu.Lock()
	t.ended[s] = true
	t.mu.Unlock()
}

// Ended reports whether s reached end-of-stream.
func (t *Transcript) Ended(s Stream) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended[s]
}

// Chunks returns a copy of the recorded chunks.
func (t *Transcript) Chunks() []Chunk {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Chunk, len(t.chunks))
	copy(out, t.chunks)
	return out
}

// Bytes concatenates the chunks recorded for s.
func (t *Transcript) Bytes(s Stream) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var buf bytes.Buffer
	for _, c := range t.chunks {
		if c.Stream == s {
			buf.Write(c.Data)
		}
	}
	return buf.Bytes()
}

// String renders the transcript with one stream tag per chunk.
func (t *Transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sb strings.Builder
	for _, c := range t.chunks {
		fmt.Fprintf(&sb, "[%s #%d] %q\n", c.Stream, c.Seq, c.Data)
	}
	return sb.String()
}
