// Package stdout is the reference transport: newline-delimited JSON written
// straight to an io.Writer, normally os.Stdout.
package stdout

import (
	"fmt"
	"io"
	"sync"
)

// Sink writes every published payload as one NDJSON line. Writes are
// serialized: the publisher is single-threaded today, but a Sink used
// directly by more than one producer must still not interleave lines.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

// New returns a Sink writing to w.
func New(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Publish writes payload followed by a newline.
func (s *Sink) Publish(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, payload)
}
