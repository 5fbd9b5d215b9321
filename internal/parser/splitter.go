package parser

import "bytes"

// DefaultMaxLineLength bounds a buffered partial line. Longer lines are
// emitted in pieces of this size.
const DefaultMaxLineLength = 64 * 1024

// Splitter turns arbitrary byte chunks into lines for a Pipeline.
//
// A line may span any number of chunks; the trailing partial line is held
// until its newline arrives or Flush is called. Splitter is not safe for
// concurrent use; give each stream its own.
type Splitter struct {
	pipeline *Pipeline
	partial  []byte
	maxLine  int

	bytesSeen int64
}

// NewSplitter creates a Splitter feeding p.
func NewSplitter(p *Pipeline, maxLine int) *Splitter {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &Splitter{pipeline: p, maxLine: maxLine}
}

// Write splits b into lines. It never fails and never blocks on the parser.
func (s *Splitter) Write(b []byte) (int, error) {
	s.bytesSeen += int64(len(b))
	rest := b

	for len(rest) > 0 {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			s.partial = append(s.partial, rest...)
			for len(s.partial) > s.maxLine {
				s.pipeline.FeedLine(string(s.partial[:s.maxLine]))
				s.partial = append(s.partial[:0], s.partial[s.maxLine:]...)
			}
			break
		}

		line := rest[:i]
		if len(s.partial) > 0 {
			s.partial = append(s.partial, line...)
			line = s.partial
		}
		s.emit(bytes.TrimSuffix(line, []byte{'\r'}))
		s.partial = s.partial[:0]
		rest = rest[i+1:]
	}
	return len(b), nil
}

// Flush emits any partial line and closes the pipeline channel.
func (s *Splitter) Flush() {
	if len(s.partial) > 0 {
		s.emit(s.partial)
		s.partial = s.partial[:0]
	}
	s.pipeline.CloseChannel()
}

// BytesSeen returns the total bytes written.
func (s *Splitter) BytesSeen() int64 {
	return s.bytesSeen
}

// emit feeds line, cut into maxLine pieces.
func (s *Splitter) emit(line []byte) {
	for len(line) > s.maxLine {
		s.pipeline.FeedLine(string(line[:s.maxLine]))
		line = line[s.maxLine:]
	}
	s.pipeline.FeedLine(string(line))
}
