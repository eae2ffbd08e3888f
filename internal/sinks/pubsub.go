package sinks

import (
	"context"

	"cloud.google.com/go/pubsub"
	"github.com/benbjohnson/clock"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
)

// pubsubSink publishes records to one Pub/Sub topic and waits for every
// server ack before reporting the batch written.
type pubsubSink struct {
	client  *pubsub.Client
	topic   *pubsub.Topic
	counter *failureCounter
}

// PubsubTopicID resolves the configured topic for a lane.
func PubsubTopicID(cfg *config.Config, lane Lane) (string, error) {
	var id string
	switch lane {
	case LaneRaw:
		id = cfg.PubsubTopicRaw
	case LaneEvents:
		id = cfg.PubsubTopicEvents
	case LaneErrors:
		id = cfg.PubsubTopicErrors
	}
	if id == "" {
		return "", fault.Errorf(fault.Fatal, "no pubsub topic configured for lane %q", lane)
	}
	return id, nil
}

func newPubsubSink(ctx context.Context, cfg *config.Config, lane Lane, clk clock.Clock) (*pubsubSink, error) {
	id, err := PubsubTopicID(cfg, lane)
	if err != nil {
		return nil, err
	}
	if cfg.PubsubProject == "" {
		return nil, fault.New(fault.Fatal, "no pubsub project configured")
	}
	client, err := pubsub.NewClient(ctx, cfg.PubsubProject)
	if err != nil {
		return nil, fault.Wrap(fault.Fatal, err, "creating pubsub client")
	}
	return &pubsubSink{
		client:  client,
		topic:   client.Topic(id),
		counter: newFailureCounter("pubsub", clk),
	}, nil
}

func (s *pubsubSink) Write(ctx context.Context, records [][]byte) error {
	results := make([]*pubsub.PublishResult, len(records))
	for i, rec := range records {
		results[i] = s.topic.Publish(ctx, &pubsub.Message{Data: rec})
	}
	for _, res := range results {
		if _, err := res.Get(ctx); err != nil {
			s.counter.record(err)
			return fault.Wrap(fault.Transient, err, "publishing to "+s.topic.ID())
		}
	}
	return nil
}

func (s *pubsubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}
