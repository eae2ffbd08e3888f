package sources

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
	"github.com/datenstrom/datenstrom/internal/sinks"
)

// pubsubSource pulls from one subscription. Receive runs in the background
// and feeds a channel; Read drains the channel into bounded batches so the
// worker loop keeps its batch-at-a-time shape.
type pubsubSource struct {
	client *pubsub.Client
	sub    *pubsub.Subscription

	ch     chan *pubsub.Message
	cancel context.CancelFunc

	mu         sync.Mutex
	receiveErr error
	started    bool
}

func newPubsubSource(ctx context.Context, cfg *config.Config, lane sinks.Lane) (*pubsubSource, error) {
	topicID, err := sinks.PubsubTopicID(cfg, lane)
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
	subID := topicID + "-sub"
	if cfg.PubsubSubscriptionPrefix != "" {
		subID = cfg.PubsubSubscriptionPrefix + topicID
	}
	return &pubsubSource{
		client: client,
		sub:    client.Subscription(subID),
		ch:     make(chan *pubsub.Message, batchSize),
	}, nil
}

func (s *pubsubSource) start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	receiveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go func() {
		err := s.sub.Receive(receiveCtx, func(_ context.Context, msg *pubsub.Message) {
			select {
			case s.ch <- msg:
			case <-receiveCtx.Done():
				msg.Nack()
			}
		})
		s.mu.Lock()
		s.receiveErr = err
		s.mu.Unlock()
		close(s.ch)
	}()
}

func (s *pubsubSource) Read(ctx context.Context) ([]*Message, error) {
	s.start(ctx)

	var batch []*Message
	wrap := func(msg *pubsub.Message) *Message {
		return NewMessage(msg.Data, msg.Ack)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-s.ch:
		if !ok {
			return nil, s.err()
		}
		batch = append(batch, wrap(msg))
	case <-time.After(time.Second):
		return nil, nil
	}
	for len(batch) < batchSize {
		select {
		case msg, ok := <-s.ch:
			if !ok {
				return batch, nil
			}
			batch = append(batch, wrap(msg))
		default:
			return batch, nil
		}
	}
	return batch, nil
}

func (s *pubsubSource) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.receiveErr != nil {
		return fault.Wrap(fault.Transient, s.receiveErr, "pubsub receive stopped")
	}
	return nil
}

func (s *pubsubSource) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return s.client.Close()
}
