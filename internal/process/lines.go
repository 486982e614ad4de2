package process

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

const readBufferSize = 64 * 1024

// LineReader splits a process output stream into lines and delivers them
// on a channel. Run must be called exactly once, usually in its own
// goroutine; the channel is closed when the stream ends.
type LineReader struct {
	reader io.Reader
	lines  chan string
	quit   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error

	linesRead atomic.Int64
	bytesRead atomic.Int64
}

// NewLineReader creates a LineReader for r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		reader: r,
		lines:  make(chan string, 64),
		quit:   make(chan struct{}),
	}
}

// Lines returns the channel of lines, without their line terminators.
func (l *LineReader) Lines() <-chan string {
	return l.lines
}

// Run reads until EOF or a read error and then closes the lines channel.
// Lines of any length are delivered whole. A final line without a
// terminator is delivered too.
func (l *LineReader) Run() {
	defer close(l.lines)

	br := bufio.NewReaderSize(l.reader, readBufferSize)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			l.bytesRead.Add(int64(len(line)))
			l.linesRead.Add(1)
			select {
			case l.lines <- trimEOL(line):
			case <-l.quit:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.mu.Lock()
				l.err = err
				l.mu.Unlock()
			}
			return
		}
	}
}

// trimEOL strips one trailing "\n" or "\r\n".
func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// Stop abandons delivery: a Run blocked on a slow consumer returns
// without sending further lines. The underlying reader is not closed.
func (l *LineReader) Stop() {
	l.once.Do(func() { close(l.quit) })
}

// Err returns the read error that ended Run, or nil on a clean EOF.
// Only meaningful once the lines channel is closed.
func (l *LineReader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Stats returns the number of bytes and lines read so far.
func (l *LineReader) Stats() (bytesRead, linesRead int64) {
	return l.bytesRead.Load(), l.linesRead.Load()
}
