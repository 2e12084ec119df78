// Package output moves trainer output from the child's pipe to its
// consumers: the raw artifact on disk, the parser, and optionally the
// operator's terminal.
package output

import (
	"bufio"
	"io"
	"os"
	"sync"
)

// ReadLines reads r until EOF and calls fn with each line exactly as
// received, including its terminator. A final line without a newline is
// delivered too. There is no line length limit.
//
// A non-nil error from fn stops the loop and is returned.
func ReadLines(r io.Reader, fn func(raw string) error) error {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			if ferr := fn(line); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Mirror is the append-only raw output artifact. Bytes are written verbatim
// so operators keep a record that does not depend on the parser.
type Mirror struct {
	mu    sync.Mutex
	f     *os.File
	lines int
	bytes int64
}

// OpenMirror opens path for appending, creating it if needed.
func OpenMirror(path string) (*Mirror, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &Mirror{f: f}, nil
}

// WriteLine appends raw unchanged.
func (m *Mirror) WriteLine(raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return os.ErrClosed
	}
	n, err := m.f.WriteString(raw)
	m.bytes += int64(n)
	if err != nil {
		return err
	}
	m.lines++
	return nil
}

// Write implements io.Writer for supervisor notes such as the exit banner.
func (m *Mirror) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return 0, os.ErrClosed
	}
	n, err := m.f.Write(p)
	m.bytes += int64(n)
	return n, err
}

// Lines returns how many lines have been mirrored.
func (m *Mirror) Lines() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines
}

// Size returns the bytes written through this Mirror.
func (m *Mirror) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytes
}

// Close syncs and closes the file. Safe to call twice.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	m.f.Sync() //nolint:errcheck // Close reports the error that matters
	err := m.f.Close()
	m.f = nil
	return err
}

// Echo writes formatted trainer lines to a terminal.
type Echo struct {
	mu        sync.Mutex
	w         io.Writer
	formatter Formatter
	lines     int
}

// NewEcho creates an Echo. A nil formatter passes lines through.
func NewEcho(w io.Writer, f Formatter) *Echo {
	if f == nil {
		f = NewPassthroughFormatter()
	}
	return &Echo{w: w, formatter: f}
}

// WriteLine formats raw and writes it followed by a newline.
func (e *Echo) WriteLine(raw string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines++
	line := trimEOL(raw)
	_, err := io.WriteString(e.w, e.formatter.ProcessLine(line)+"\n")
	return err
}

// Lines returns the number of lines echoed.
func (e *Echo) Lines() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lines
}

// Summary writes the formatter's closing message, if any.
func (e *Echo) Summary(exitCode int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.formatter.Summary(exitCode); s != "" {
		io.WriteString(e.w, s+"\n") //nolint:errcheck // terminal output is best effort
	}
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// Tail returns the last n lines of the file at path without terminators.
// A missing file yields no lines and no error.
func Tail(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	start := 0
	err = ReadLines(f, func(raw string) error {
		line := trimEOL(raw)
		if len(ring) < n {
			ring = append(ring, line)
			return nil
		}
		ring[start] = line
		start = (start + 1) % n
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ring))
	out = append(out, ring[start:]...)
	return append(out, ring[:start]...), nil
}
