package mcpserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxLineBytes bounds a single inbound frame. Larger frames fail the read
// rather than grow the buffer without limit.
const maxLineBytes = 4 * 1024 * 1024

// framer reads and writes newline-delimited JSON frames. Reads are owned by
// the dispatch loop; writes are serialized so a frame is never interleaved
// with another.
type framer struct {
	scanner *bufio.Scanner

	mu  sync.Mutex
	out io.Writer
}

func newFramer(in io.Reader, out io.Writer) *framer {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &framer{scanner: scanner, out: out}
}

// next returns the next non-empty frame, or io.EOF when the input closes.
func (f *framer) next() ([]byte, error) {
	for f.scanner.Scan() {
		line := bytes.TrimSpace(f.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer across Scan calls.
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := f.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	return nil, io.EOF
}

// write marshals msg and emits it as one frame.
func (f *framer) write(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}
