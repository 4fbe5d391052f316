// Package transport frames newline-delimited JSON messages over a byte
// stream. It is deliberately dumb: one line in, one line out, no protocol
// knowledge. The proxy works over stdio, pipes, or any net.Conn.
package transport

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// maxFrameSize bounds a single frame; agent messages can carry large
// embedded content blocks.
const maxFrameSize = 1024 * 1024

// Stream reads and writes newline-delimited frames. Reads are owned by a
// single goroutine; writes are serialized internally because the router
// and the timer flusher both forward through the same stream.
type Stream struct {
	scanner *bufio.Scanner
	w       io.Writer
	wmu     sync.Mutex
}

// New creates a Stream over the given reader/writer pair
func New(r io.Reader, w io.Writer) *Stream {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, maxFrameSize)
	scanner.Buffer(buf, maxFrameSize)

	return &Stream{
		scanner: scanner,
		w:       w,
	}
}

// Read returns the next frame, without its trailing newline. Empty lines
// are skipped. Returns io.EOF when the underlying stream ends.
func (s *Stream) Read() ([]byte, error) {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// Scanner reuses its buffer between calls
		frame := make([]byte, len(line))
		copy(frame, line)
		return frame, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	return nil, io.EOF
}

// Write sends one frame, appending the newline delimiter. Safe for
// concurrent use.
func (s *Stream) Write(frame []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if _, err := s.w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("failed to write frame delimiter: %w", err)
	}
	return nil
}
