// Package sinks writes pipeline records to the configured transport.
//
// Every transport serves three lanes: raw collector payloads, atomic events
// and error payloads. A sink instance is bound to one lane at construction;
// the lane decides the destination topic, queue or stream and whether the
// record bytes need a transport-specific encoding.
package sinks

import (
	"context"

	"github.com/benbjohnson/clock"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
)

// Lane names one of the three record streams.
type Lane string

const (
	LaneRaw    Lane = "raw"
	LaneEvents Lane = "events"
	LaneErrors Lane = "errors"
)

// Valid reports whether l is one of the known lanes.
func (l Lane) Valid() bool {
	switch l {
	case LaneRaw, LaneEvents, LaneErrors:
		return true
	}
	return false
}

// Sink writes a batch of records to one lane.
type Sink interface {
	Write(ctx context.Context, records [][]byte) error
	Close() error
}

// New builds the sink for the given lane. The events lane honours the
// atomic_event_transport override; all other lanes use the base transport.
func New(ctx context.Context, cfg *config.Config, lane Lane, clk clock.Clock) (Sink, error) {
	if !lane.Valid() {
		return nil, fault.Errorf(fault.Fatal, "unknown sink lane %q", lane)
	}
	transport := cfg.Transport
	if lane == LaneEvents {
		transport = cfg.EventsTransport()
	}

	switch transport {
	case "dev":
		return NewDev(lane), nil
	case "kafka":
		return newKafkaSink(cfg, lane, clk)
	case "sqs":
		return newSQSSink(ctx, cfg, lane, clk)
	case "firehose":
		return newFirehoseSink(ctx, cfg, lane, clk)
	case "pubsub":
		return newPubsubSink(ctx, cfg, lane, clk)
	default:
		return nil, fault.Errorf(fault.Fatal, "unknown transport %q", transport)
	}
}
