package indexer

import (
	"bytes"
	"log/slog"
	"sync"
)

// maxLineSize bounds a buffered line without a newline
const maxLineSize = 64 * 1024

// lineLogger is an io.Writer that logs every complete line at WARN.
type lineLogger struct {
	mu     sync.Mutex
	source string
	buf    bytes.Buffer
}

func newLineLogger(source string) *lineLogger {
	return &lineLogger{source: source}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Write(p)
	for {
		idx := bytes.IndexByte(l.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := l.buf.Next(idx + 1)
		l.emit(line[:idx])
	}
	if l.buf.Len() > maxLineSize {
		l.emit(l.buf.Bytes())
		l.buf.Reset()
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.buf.Len() > 0 {
		l.emit(l.buf.Bytes())
		l.buf.Reset()
	}
}

func (l *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	slog.Warn(string(line), "source", l.source)
}
