// Package worker runs the batch consume loop shared by the queue services.
//
// The loop reads one batch from its source, hands every record to the
// handler, writes the outputs and the failures to their lanes and then
// acknowledges the whole batch. Failed records become error payloads rather
// than poison pills; a record is never silently dropped.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/datenstrom/datenstrom/internal/fault"
	"github.com/datenstrom/datenstrom/internal/metrics"
	"github.com/datenstrom/datenstrom/internal/payload"
	"github.com/datenstrom/datenstrom/internal/sinks"
	"github.com/datenstrom/datenstrom/internal/sources"
)

// Handler turns one source record into zero or more output records. A
// returned error routes the record to the errors lane with the error text as
// the reason.
type Handler interface {
	Handle(ctx context.Context, record []byte) ([][]byte, error)
	// Domain extracts the collector domain from a record for error
	// reporting. Best effort; "" when the record is too broken to tell.
	Domain(record []byte) string
}

// Loop is one lane's consume loop.
type Loop struct {
	Lane    sinks.Lane
	Source  sources.Source
	Handler Handler
	Output  sinks.Sink
	Errors  sinks.Sink
	Clock   clock.Clock
}

// Run consumes batches until the context is cancelled. Transient source
// errors are logged and retried; only cancellation ends the loop.
func (l *Loop) Run(ctx context.Context) error {
	clk := l.Clock
	if clk == nil {
		clk = clock.New()
	}
	slog.Info("worker loop started", "lane", l.Lane)

	for {
		if ctx.Err() != nil {
			slog.Info("worker loop stopped", "lane", l.Lane)
			return nil
		}
		batch, err := l.Source.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				slog.Info("worker loop stopped", "lane", l.Lane)
				return nil
			}
			slog.Warn("source read failed", "lane", l.Lane, "error", err)
			clk.Sleep(time.Second)
			continue
		}
		if len(batch) == 0 {
			continue
		}
		l.processBatch(ctx, batch, clk)
	}
}

func (l *Loop) processBatch(ctx context.Context, batch []*sources.Message, clk clock.Clock) {
	start := clk.Now()

	var outputs, failures [][]byte
	for _, msg := range batch {
		out, err := l.Handler.Handle(ctx, msg.Data())
		if err != nil {
			failures = append(failures, l.errorRecord(msg.Data(), err))
			continue
		}
		outputs = append(outputs, out...)
	}

	// Sink failures are counted inside the sinks and trip the shutdown
	// threshold there; the batch is still acknowledged so one bad write
	// does not wedge the partition.
	if len(outputs) > 0 {
		if err := l.Output.Write(ctx, outputs); err != nil {
			slog.Error("writing outputs failed", "lane", l.Lane, "records", len(outputs), "error", err)
		}
	}
	if len(failures) > 0 {
		if err := l.Errors.Write(ctx, failures); err != nil {
			slog.Error("writing error payloads failed", "lane", l.Lane, "records", len(failures), "error", err)
		}
	}

	for _, msg := range batch {
		msg.Ack()
	}

	elapsed := clk.Now().Sub(start)
	metrics.BatchesProcessed.WithLabelValues(string(l.Lane)).Inc()
	metrics.BatchDuration.Observe(elapsed.Seconds())
	slog.Info("batch processed",
		"lane", l.Lane,
		"messages", len(batch),
		"outputs", len(outputs),
		"failures", len(failures),
		"duration", elapsed)
}

func (l *Loop) errorRecord(record []byte, err error) []byte {
	kind := fault.KindOf(err)
	if kind == "" {
		kind = fault.Fatal
	}
	metrics.ErrorPayloads.WithLabelValues(string(kind)).Inc()

	ep := payload.NewErrorPayload(l.Handler.Domain(record), err.Error(), record)
	b, marshalErr := json.Marshal(ep)
	if marshalErr != nil {
		// Payload bytes that cannot be embedded still deserve a record.
		ep.Payload = nil
		b, _ = json.Marshal(ep)
	}
	return b
}
