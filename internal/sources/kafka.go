package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
	"github.com/datenstrom/datenstrom/internal/sinks"
)

// kafkaSource consumes one topic with manual commits. Offsets for a batch
// are committed on the next Read, after every message in the batch has been
// acknowledged; an unacked message at that point is a worker bug and the
// process stops rather than silently losing the record.
type kafkaSource struct {
	client *kgo.Client
	topic  string

	pending []*kgo.Record
	batch   []*Message
}

func newKafkaSource(cfg *config.Config, lane sinks.Lane) (*kafkaSource, error) {
	var topic string
	switch lane {
	case sinks.LaneRaw:
		topic = cfg.KafkaTopicRaw
	case sinks.LaneEvents:
		topic = cfg.KafkaTopicEvents
	case sinks.LaneErrors:
		topic = cfg.KafkaTopicErrors
	}
	if topic == "" {
		return nil, fault.Errorf(fault.Fatal, "no kafka topic configured for lane %q", lane)
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(cfg.KafkaBrokers, ",")...),
		kgo.ConsumerGroup("datenstrom-"+string(lane)),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxWait(time.Second),
	)
	if err != nil {
		return nil, fault.Wrap(fault.Fatal, err, "creating kafka consumer")
	}
	return &kafkaSource{client: client, topic: topic}, nil
}

func (s *kafkaSource) Read(ctx context.Context) ([]*Message, error) {
	if err := s.commitPending(ctx); err != nil {
		return nil, err
	}

	fetches := s.client.PollRecords(ctx, batchSize)
	if fetches.IsClientClosed() {
		return nil, context.Canceled
	}
	if errs := fetches.Errors(); len(errs) > 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fault.Wrap(fault.Transient, errs[0].Err, "fetching from "+s.topic)
	}

	records := fetches.Records()
	batch := make([]*Message, len(records))
	for i, rec := range records {
		batch[i] = NewMessage(rec.Value, nil)
	}
	s.pending = records
	s.batch = batch
	return batch, nil
}

// commitPending commits the previous batch. Every message must be acked
// first; reading on without committing would redeliver, committing without
// acks would lose data.
func (s *kafkaSource) commitPending(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	for i, msg := range s.batch {
		if !msg.Acked() {
			panic(fmt.Sprintf("kafka source: unacknowledged message at offset %d before commit",
				s.pending[i].Offset))
		}
	}
	if err := s.client.CommitRecords(ctx, s.pending...); err != nil {
		return fault.Wrap(fault.Transient, err, "committing offsets for "+s.topic)
	}
	s.pending = nil
	s.batch = nil
	return nil
}

func (s *kafkaSource) Close() error {
	// Commit what we can before leaving the group.
	if len(s.pending) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		acked := make([]*kgo.Record, 0, len(s.pending))
		for i, msg := range s.batch {
			if msg.Acked() {
				acked = append(acked, s.pending[i])
			}
		}
		if len(acked) > 0 {
			_ = s.client.CommitRecords(ctx, acked...)
		}
	}
	s.client.Close()
	return nil
}
