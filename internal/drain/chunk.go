// Package drain reads child output pipes to end-of-stream.
//
// Each pipe gets its own Drainer running a blocking pull loop on a dedicated
// goroutine. Data is delivered to a Sink as immutable Chunks in the order it
// was read. Two drainers never share a lock; sinks that receive from both
// streams serialise internally.
package drain

// Stream identifies which child output a chunk came from.
type Stream uint8

const (
	Stdout Stream = iota + 1
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// Chunk is one read's worth of output. Data is owned by the chunk and must
// not be modified by sinks.
type Chunk struct {
	Stream Stream
	Seq    int64 // 0-based, per stream
	Data   []byte
}

// Sink receives chunks. Consume is called from the drainer goroutine of the
// chunk's stream and must not block for long: a slow sink slows the drainer,
// and a slow drainer lets the child's pipe fill up.
type Sink interface {
	Consume(c Chunk)
}

// StreamEnder is implemented by sinks that want to know when a stream has
// reached end-of-stream.
type StreamEnder interface {
	EndStream(s Stream)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(c Chunk)

// Consume calls f(c).
func (f SinkFunc) Consume(c Chunk) { f(c) }

// Discard drops every chunk.
var Discard Sink = SinkFunc(func(Chunk) {})

// Multi fans chunks out to several sinks in order.
type Multi []Sink

// Consume forwards c to every sink.
func (m Multi) Consume(c Chunk) {
	for _, s := range m {
		s.Consume(c)
	}
}

// EndStream forwards to every sink that implements StreamEnder.
func (m Multi) EndStream(s Stream) {
	for _, sink := range m {
		if e, ok := sink.(StreamEnder); ok {
			e.EndStream(s)
		}
	}
}
