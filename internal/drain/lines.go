package drain

import (
	"sync"

	"github.com/randomizedcoder/go-pipe-drain/internal/parser"
)

// LineSink splits each stream into lines and hands them to a parser through
// a lossy pipeline. A slow parser loses lines; it never slows the drainer.
//
// Each stream's splitter is touched only by that stream's drainer, so no
// lock is needed on the hot path.
type LineSink struct {
	splitters map[Stream]*parser.Splitter
	pipelines map[Stream]*parser.Pipeline
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewLineSink starts one parser goroutine per stream. newParser is called
// once per stream. Call Wait (or Close) after all streams have ended.
func NewLineSink(newParser func(Stream) parser.LineParser, bufferSize int, streams ...Stream) *LineSink {
	ls := &LineSink{
		splitters: make(map[Stream]*parser.Splitter, len(streams)),
		pipelines: make(map[Stream]*parser.Pipeline, len(streams)),
	}
	for _, s := range streams {
		p := parser.NewPipeline(s.String(), bufferSize, 0)
		ls.pipelines[s] = p
		ls.splitters[s] = parser.NewSplitter(p, 0)

		lp := newParser(s)
		ls.wg.Add(1)
		go func() {
			defer ls.wg.Done()
			p.RunParser(lp)
		}()
	}
	return ls
}

// Consume feeds the chunk to its stream's splitter.
func (ls *LineSink) Consume(c Chunk) {
	if sp, ok := ls.splitters[c.Stream]; ok {
		sp.Write(c.Data)
	}
}

// EndStream ends stream s. The pipeline is closed by Splitter.Flush, which
// is the only place LineSink closes one; flushing twice is harmless.
func (ls *LineSink) EndStream(s Stream) {
	if sp, ok := ls.splitters[s]; ok {
		sp.Flush()
	}
}

// Wait blocks until every parser goroutine has returned.
func (ls *LineSink) Wait() {
	ls.wg.Wait()
}

// Close ends any stream that has not ended yet, keeping its trailing
// partial line, and waits for the parsers. Only call it once no drainer is
// still writing.
func (ls *LineSink) Close() {
	ls.closeOnce.Do(func() {
		for s := range ls.splitters {
			ls.EndStream(s)
		}
	})
	ls.wg.Wait()
}

// Stats returns the pipeline counters for s.
func (ls *LineSink) Stats(s Stream) (read, dropped, parsed int64) {
	p, ok := ls.pipelines[s]
	if !ok {
		return 0, 0, 0
	}
	return p.Stats()
}
