package sinks

import (
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/datenstrom/datenstrom/internal/metrics"
)

const (
	// failureWindow is the interval over which sink write failures are
	// counted before the counter resets.
	failureWindow = 60 * time.Second
	// maxFailuresPerWindow is the number of failures in one window after
	// which the process stops accepting work. Losing records silently is
	// worse than restarting.
	maxFailuresPerWindow = 10
)

// failureCounter tracks sink write failures per interval and asks the
// process to shut down when a transport is persistently broken.
type failureCounter struct {
	transport string

	mu          sync.Mutex
	clk         clock.Clock
	windowStart time.Time
	failures    int
	bail        func()
}

func newFailureCounter(transport string, clk clock.Clock) *failureCounter {
	if clk == nil {
		clk = clock.New()
	}
	return &failureCounter{
		transport:   transport,
		clk:         clk,
		windowStart: clk.Now(),
		bail: func() {
			// Interrupt ourselves so the service winds down through its
			// normal signal path.
			_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
		},
	}
}

// record counts one failed write. Crossing the per-window threshold triggers
// the bail hook.
func (c *failureCounter) record(err error) {
	metrics.SinkErrors.WithLabelValues(c.transport).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	if now.Sub(c.windowStart) >= failureWindow {
		c.windowStart = now
		c.failures = 0
	}
	c.failures++
	slog.Warn("sink write failed",
		"transport", c.transport,
		"failures_in_window", c.failures,
		"error", err)

	if c.failures > maxFailuresPerWindow {
		slog.Error("sink failure threshold exceeded, shutting down",
			"transport", c.transport,
			"failures_in_window", c.failures)
		c.bail()
	}
}
