package sources

import (
	"context"
	"time"
)

// DevSource serves messages from an in-memory channel. Local runs and tests
// push records in with Push.
type DevSource struct {
	ch chan []byte
}

func NewDev() *DevSource {
	return &DevSource{ch: make(chan []byte, 1024)}
}

// Push queues one record.
func (s *DevSource) Push(data []byte) {
	s.ch <- data
}

func (s *DevSource) Read(ctx context.Context) ([]*Message, error) {
	var batch []*Message
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-s.ch:
		batch = append(batch, NewMessage(data, nil))
	case <-time.After(time.Second):
		return nil, nil
	}
	for len(batch) < batchSize {
		select {
		case data := <-s.ch:
			batch = append(batch, NewMessage(data, nil))
		default:
			return batch, nil
		}
	}
	return batch, nil
}

func (s *DevSource) Close() error { return nil }
