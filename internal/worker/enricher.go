package worker

import (
	"context"

	"github.com/benbjohnson/clock"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/metrics"
	"github.com/datenstrom/datenstrom/internal/payload"
	"github.com/datenstrom/datenstrom/internal/processor"
	"github.com/datenstrom/datenstrom/internal/sinks"
	"github.com/datenstrom/datenstrom/internal/sources"
)

// Enricher is the raw-lane handler: it decodes collector payload frames,
// expands them into atomic events and emits one JSON record per event.
type Enricher struct {
	cfg       *config.Config
	processor *processor.RawProcessor
}

func NewEnricher(cfg *config.Config, clk clock.Clock) (*Enricher, error) {
	proc, err := processor.New(cfg, clk)
	if err != nil {
		return nil, err
	}
	return &Enricher{cfg: cfg, processor: proc}, nil
}

func (e *Enricher) Handle(_ context.Context, record []byte) ([][]byte, error) {
	raw, err := payload.Deserialize(record, e.cfg.RecordFormat)
	if err != nil {
		return nil, err
	}
	events, err := e.processor.Process(raw)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(events))
	for _, event := range events {
		b, err := event.ToJSON()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	metrics.EventsEmitted.Add(float64(len(out)))
	return out, nil
}

func (e *Enricher) Domain(record []byte) string {
	raw, err := payload.Deserialize(record, e.cfg.RecordFormat)
	if err != nil {
		return ""
	}
	return raw.Hostname
}

// NewEnricherLoop wires the enricher service: raw source in, events and
// errors sinks out. The returned close function releases the transports.
func NewEnricherLoop(ctx context.Context, cfg *config.Config, clk clock.Clock) (*Loop, func(), error) {
	enricher, err := NewEnricher(cfg, clk)
	if err != nil {
		return nil, nil, err
	}
	source, err := sources.New(ctx, cfg, sinks.LaneRaw)
	if err != nil {
		return nil, nil, err
	}
	events, err := sinks.New(ctx, cfg, sinks.LaneEvents, clk)
	if err != nil {
		source.Close()
		return nil, nil, err
	}
	errorsSink, err := sinks.New(ctx, cfg, sinks.LaneErrors, clk)
	if err != nil {
		source.Close()
		events.Close()
		return nil, nil, err
	}

	loop := &Loop{
		Lane:    sinks.LaneRaw,
		Source:  source,
		Handler: enricher,
		Output:  events,
		Errors:  errorsSink,
		Clock:   clk,
	}
	closeAll := func() {
		source.Close()
		events.Close()
		errorsSink.Close()
	}
	return loop, closeAll, nil
}
