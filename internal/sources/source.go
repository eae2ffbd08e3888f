// Package sources reads pipeline records from the configured transport.
//
// A source is bound to one lane and hands out batches of messages. Every
// message must be acknowledged after processing; how an ack translates to
// the transport (offset commit, queue delete, lease ack) is the source's
// business.
package sources

import (
	"context"
	"sync/atomic"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
	"github.com/datenstrom/datenstrom/internal/sinks"
)

// batchSize bounds one Read batch across all transports.
const batchSize = 10

// Message is one record leased from a source.
type Message struct {
	data  []byte
	acked atomic.Bool
	ack   func()
}

// NewMessage wraps record bytes with an ack callback. The callback runs at
// most once.
func NewMessage(data []byte, ack func()) *Message {
	return &Message{data: data, ack: ack}
}

// Data returns the record bytes.
func (m *Message) Data() []byte { return m.data }

// Ack marks the message processed.
func (m *Message) Ack() {
	if m.acked.CompareAndSwap(false, true) && m.ack != nil {
		m.ack()
	}
}

// Acked reports whether Ack has been called.
func (m *Message) Acked() bool { return m.acked.Load() }

// Source reads message batches from one lane.
type Source interface {
	// Read blocks until at least one message arrives or the context is
	// cancelled. An empty batch with a nil error is a valid outcome.
	Read(ctx context.Context) ([]*Message, error)
	Close() error
}

// New builds the source for the given lane.
func New(ctx context.Context, cfg *config.Config, lane sinks.Lane) (Source, error) {
	if !lane.Valid() {
		return nil, fault.Errorf(fault.Fatal, "unknown source lane %q", lane)
	}
	switch cfg.Transport {
	case "dev":
		return NewDev(), nil
	case "kafka":
		return newKafkaSource(cfg, lane)
	case "sqs":
		return newSQSSource(ctx, cfg, lane)
	case "pubsub":
		return newPubsubSource(ctx, cfg, lane)
	default:
		return nil, fault.Errorf(fault.Fatal, "unknown transport %q", cfg.Transport)
	}
}
