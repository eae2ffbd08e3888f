package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// DevSink prints records to a writer and keeps the written batches around so
// tests can observe them. It is the sink behind the "dev" transport.
type DevSink struct {
	lane Lane

	mu      sync.Mutex
	out     io.Writer
	written [][]byte
}

// NewDev returns a dev sink writing to stdout.
func NewDev(lane Lane) *DevSink {
	return &DevSink{lane: lane, out: os.Stdout}
}

// SetOutput redirects the sink, for tests.
func (s *DevSink) SetOutput(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = w
}

func (s *DevSink) Write(_ context.Context, records [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		copied := make([]byte, len(rec))
		copy(copied, rec)
		s.written = append(s.written, copied)
		fmt.Fprintf(s.out, "[%s] %s\n", s.lane, rec)
	}
	return nil
}

func (s *DevSink) Close() error { return nil }

// Written returns every record written so far.
func (s *DevSink) Written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.written))
	copy(out, s.written)
	return out
}
