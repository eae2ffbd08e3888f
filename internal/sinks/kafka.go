package sinks

import (
	"context"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
)

// kafkaSink produces records to one Kafka topic with synchronous acks.
type kafkaSink struct {
	client  *kgo.Client
	topic   string
	counter *failureCounter
}

func kafkaTopic(cfg *config.Config, lane Lane) (string, error) {
	var topic string
	switch lane {
	case LaneRaw:
		topic = cfg.KafkaTopicRaw
	case LaneEvents:
		topic = cfg.KafkaTopicEvents
	case LaneErrors:
		topic = cfg.KafkaTopicErrors
	}
	if topic == "" {
		return "", fault.Errorf(fault.Fatal, "no kafka topic configured for lane %q", lane)
	}
	return topic, nil
}

func newKafkaSink(cfg *config.Config, lane Lane, clk clock.Clock) (*kafkaSink, error) {
	topic, err := kafkaTopic(cfg, lane)
	if err != nil {
		return nil, err
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(cfg.KafkaBrokers, ",")...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fault.Wrap(fault.Fatal, err, "creating kafka producer")
	}
	return &kafkaSink{
		client:  client,
		topic:   topic,
		counter: newFailureCounter("kafka", clk),
	}, nil
}

func (s *kafkaSink) Write(ctx context.Context, records [][]byte) error {
	if len(records) == 0 {
		return nil
	}
	batch := make([]*kgo.Record, len(records))
	for i, rec := range records {
		batch[i] = &kgo.Record{Topic: s.topic, Value: rec}
	}
	if err := s.client.ProduceSync(ctx, batch...).FirstErr(); err != nil {
		s.counter.record(err)
		return fault.Wrap(fault.Transient, err, "producing to "+s.topic)
	}
	return nil
}

func (s *kafkaSink) Close() error {
	s.client.Close()
	return nil
}
