// Package logwriter turns command output into structured log lines
package logwriter

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog"
)

// Writer logs every complete line written to it as one log event
type Writer struct {
	mu     sync.Mutex
	logger zerolog.Logger
	level  zerolog.Level
	buf    bytes.Buffer
	lines  []string
	keep   int
}

// New creates a writer logging at level with the stream name attached
func New(logger zerolog.Logger, level zerolog.Level, stream string) *Writer {
	return &Writer{
		logger: logger.With().Str("stream", stream).Logger(),
		level:  level,
		keep:   20,
	}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// incomplete line, put it back for the next write
			w.buf.Reset()
			w.buf.Write(line)
			break
		}
		w.emit(string(bytes.TrimRight(line, "\r\n")))
	}

	return len(p), nil
}

// Flush logs what is left of an unterminated last line
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return
	}
	w.emit(w.buf.String())
	w.buf.Reset()
}

// Tail returns the last lines seen, useful to attach to an error
func (w *Writer) Tail() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]string(nil), w.lines...)
}

func (w *Writer) emit(line string) {
	if line == "" {
		return
	}

	w.logger.WithLevel(w.level).Msg(line)

	w.lines = append(w.lines, line)
	if len(w.lines) > w.keep {
		w.lines = w.lines[len(w.lines)-w.keep:]
	}
}
