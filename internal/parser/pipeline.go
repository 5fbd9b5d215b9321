// Package parser provides lossy line pipelines for observing child output.
//
// Observers such as trace logging must never slow down a drainer: if a
// drainer blocks, the child blocks on a full pipe. The pipeline therefore
// drops lines instead of waiting for a slow parser.
//
//	Layer 1 (Feed):   drainer-side, non-blocking, drops when the channel is full
//	Layer 2 (Parser): consumes from the channel at its own pace
//	Layer 3 (Stats):  read/dropped/parsed counters for health reporting
package parser

import (
	"sync"
	"sync/atomic"
)

// LineParser consumes complete lines of child output.
type LineParser interface {
	ParseLine(line string)
}

// Pipeline is a bounded, lossy line channel between a producer and a
// LineParser.
type Pipeline struct {
	label      string // e.g. "stdout", "stderr"
	bufferSize int

	lineChan  chan string
	closeOnce sync.Once

	linesRead    atomic.Int64
	linesDropped atomic.Int64
	linesParsed  atomic.Int64

	dropThreshold float64
}

// NewPipeline creates a lossy pipeline.
//
// Parameters:
//   - label: stream name for identification
//   - bufferSize: channel capacity in lines
//   - dropThreshold: fraction (0.0-1.0) above which the pipeline is degraded
func NewPipeline(label string, bufferSize int, dropThreshold float64) *Pipeline {
	if bufferSize < 1 {
		bufferSize = 1000
	}
	if dropThreshold <= 0 {
		dropThreshold = 0.01
	}

	return &Pipeline{
		label:         label,
		bufferSize:    bufferSize,
		lineChan:      make(chan string, bufferSize),
		dropThreshold: dropThreshold,
	}
}

// FeedLine queues a line. Returns false if it was dropped because the
// channel was full. Never blocks.
func (p *Pipeline) FeedLine(line string) bool {
	p.linesRead.Add(1)

	select {
	case p.lineChan <- line:
		return true
	default:
		p.linesDropped.Add(1)
		return false
	}
}

// CloseChannel signals the parser that no more lines will arrive.
// Idempotent. The producer must call it exactly once when its source ends,
// otherwise RunParser never returns.
func (p *Pipeline) CloseChannel() {
	p.closeOnce.Do(func() {
		close(p.lineChan)
	})
}

// RunParser consumes lines until CloseChannel. Run it on its own goroutine.
func (p *Pipeline) RunParser(parser LineParser) {
	for line := range p.lineChan {
		parser.ParseLine(line)
		p.linesParsed.Add(1)
	}
}

// Stats returns lines fed, dropped and parsed.
func (p *Pipeline) Stats() (read, dropped, parsed int64) {
	return p.linesRead.Load(), p.linesDropped.Load(), p.linesParsed.Load()
}

// DropRate returns dropped/read, or 0 before any line was fed.
func (p *Pipeline) DropRate() float64 {
	read := p.linesRead.Load()
	if read == 0 {
		return 0
	}
	return float64(p.linesDropped.Load()) / float64(read)
}

// IsDegraded reports a drop rate above the configured threshold.
func (p *Pipeline) IsDegraded() bool {
	return p.DropRate() > p.dropThreshold
}

// Label returns the stream label.
func (p *Pipeline) Label() string {
	return p.label
}

// NoopParser discards lines.
type NoopParser struct{}

// ParseLine does nothing.
func (NoopParser) ParseLine(string) {}

// ParserFunc adapts a function to LineParser.
type ParserFunc func(line string)

// ParseLine calls f(line).
func (f ParserFunc) ParseLine(line string) { f(line) }
