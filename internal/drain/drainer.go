package drain

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the read size used per pull.
const DefaultBufferSize = 32 * 1024

var (
	// ErrDrain matches every *DrainError via errors.Is.
	ErrDrain = errors.New("drain failed")

	// ErrOutputAbandoned is recorded when a stream was closed by the
	// parent before reaching end-of-stream.
	ErrOutputAbandoned = errors.New("output abandoned before end-of-stream")
)

// DrainError reports a failed read on one stream. It never affects the
// other stream.
type DrainError struct {
	Stream Stream
	Err    error
}

func (e *DrainError) Error() string {
	return fmt.Sprintf("drain %s: %v", e.Stream, e.Err)
}

func (e *DrainError) Unwrap() error { return e.Err }

// Is reports ErrDrain as a match.
func (e *DrainError) Is(target error) bool { return target == ErrDrain }

// Option configures a Drainer.
type Option func(*Drainer)

// WithBufferSize sets the maximum bytes per read.
func WithBufferSize(n int) Option {
	return func(d *Drainer) {
		if n > 0 {
			d.bufSize = n
		}
	}
}

// WithLogger enables per-chunk debug tracing.
func WithLogger(l *slog.Logger) Option {
	return func(d *Drainer) {
		if l != nil {
			d.logger = l
		}
	}
}

// Drainer reads one pipe until end-of-stream.
type Drainer struct {
	stream  Stream
	src     io.ReadCloser
	sink    Sink
	bufSize int
	logger  *slog.Logger

	done     chan struct{}
	err      error
	started  time.Time
	finished time.Time

	bytes  atomic.Int64
	chunks atomic.Int64
}

// NewDrainer creates a drainer for src. Run starts it.
func NewDrainer(stream Stream, src io.ReadCloser, sink Sink, opts ...Option) *Drainer {
	if sink == nil {
		sink = Discard
	}
	d := &Drainer{
		stream:  stream,
		src:     src,
		sink:    sink,
		bufSize: DefaultBufferSize,
		logger:  slog.New(slog.DiscardHandler),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run pulls from the source until end-of-stream or a read error, then closes
// the source and signals Done. EOF and a locally closed source are normal
// completion. Any other error is returned as *DrainError.
//
// Run must be called exactly once, normally on its own goroutine.
func (d *Drainer) Run() error {
	defer close(d.done)

	d.started = time.Now()
	err := d.pull()
	d.finished = time.Now()

	if cerr := d.src.Close(); cerr != nil {
		d.logger.Debug("drain_close_error", "stream", d.stream.String(), "error", cerr)
	}
	if e, ok := d.sink.(StreamEnder); ok {
		e.EndStream(d.stream)
	}

	d.logger.Debug("drain_finished",
		"stream", d.stream.String(),
		"bytes", d.bytes.Load(),
		"chunks", d.chunks.Load(),
		"elapsed", d.finished.Sub(d.started).String(),
		"error", err,
	)

	d.err = err
	return err
}

func (d *Drainer) pull() error {
	buf := make([]byte, d.bufSize)
	for {
		n, err := d.src.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			seq := d.chunks.Add(1) - 1
			d.bytes.Add(int64(n))

			d.logger.Debug("chunk_received",
				"stream", d.stream.String(),
				"seq", seq,
				"bytes", n,
			)
			d.sink.Consume(Chunk{Stream: d.stream, Seq: seq, Data: data})
		}

		if err != nil {
			// A write end closed by the child (or its exit) shows up as EOF.
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return &DrainError{Stream: d.stream, Err: err}
		}
	}
}

// Done is closed when Run returns.
func (d *Drainer) Done() <-chan struct{} {
	return d.done
}

// Err returns Run's result. Only meaningful after Done is closed.
func (d *Drainer) Err() error {
	return d.err
}

// Stream returns which output this drainer reads.
func (d *Drainer) Stream() Stream {
	return d.stream
}

// Stats returns bytes and chunks delivered so far.
func (d *Drainer) Stats() (bytes, chunks int64) {
	return d.bytes.Load(), d.chunks.Load()
}

// FinishedAt returns when the stream ended. Zero until Done is closed.
func (d *Drainer) FinishedAt() time.Time {
	select {
	case <-d.done:
		return d.finished
	default:
		return time.Time{}
	}
}
