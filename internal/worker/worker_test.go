package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
	"github.com/datenstrom/datenstrom/internal/payload"
	"github.com/datenstrom/datenstrom/internal/schema"
	"github.com/datenstrom/datenstrom/internal/sinks"
	"github.com/datenstrom/datenstrom/internal/sources"
)

type stubHandler struct{}

func (stubHandler) Handle(_ context.Context, record []byte) ([][]byte, error) {
	if string(record) == "bad" {
		return nil, fault.New(fault.MalformedInput, "unusable record")
	}
	return [][]byte{append([]byte("out:"), record...)}, nil
}

func (stubHandler) Domain([]byte) string { return "example.com" }

type stubSource struct {
	batches [][]*sources.Message
}

func (s *stubSource) Read(ctx context.Context) ([]*sources.Message, error) {
	if len(s.batches) == 0 {
		return nil, context.Canceled
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

func (s *stubSource) Close() error { return nil }

func TestLoopRoutesOutputsAndFailures(t *testing.T) {
	output := sinks.NewDev(sinks.LaneEvents)
	errorsSink := sinks.NewDev(sinks.LaneErrors)
	acked := 0
	batch := []*sources.Message{
		sources.NewMessage([]byte("good"), func() { acked++ }),
		sources.NewMessage([]byte("bad"), func() { acked++ }),
		sources.NewMessage([]byte("fine"), func() { acked++ }),
	}
	loop := &Loop{
		Lane:    sinks.LaneRaw,
		Source:  &stubSource{batches: [][]*sources.Message{batch}},
		Handler: stubHandler{},
		Output:  output,
		Errors:  errorsSink,
	}
	require.NoError(t, loop.Run(context.Background()))

	written := output.Written()
	require.Len(t, written, 2)
	assert.Equal(t, "out:good", string(written[0]))
	assert.Equal(t, "out:fine", string(written[1]))

	failures := errorsSink.Written()
	require.Len(t, failures, 1)
	var ep payload.ErrorPayload
	require.NoError(t, json.Unmarshal(failures[0], &ep))
	assert.Equal(t, "example.com", ep.CollectorDomain)
	assert.Contains(t, ep.Reason, "unusable record")
	assert.Equal(t, "bad", string(ep.Payload))
	assert.False(t, ep.Tstamp.IsZero())

	assert.Equal(t, 3, acked, "every message must be acknowledged")
}

func TestLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loop := &Loop{
		Lane:    sinks.LaneRaw,
		Source:  sources.NewDev(),
		Handler: stubHandler{},
		Output:  sinks.NewDev(sinks.LaneEvents),
		Errors:  sinks.NewDev(sinks.LaneErrors),
	}
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop on cancellation")
	}
}

func enricherConfig() *config.Config {
	cfg := config.Default()
	cfg.Transport = "dev"
	cfg.RecordFormat = payload.FormatThrift
	return cfg
}

func TestEnricherHandleEmitsEvents(t *testing.T) {
	enricher, err := NewEnricher(enricherConfig(), clock.New())
	require.NoError(t, err)

	raw := &payload.CollectorPayload{
		IPAddress: "203.0.113.9",
		Timestamp: 1700000000000,
		Encoding:  "UTF-8",
		Collector: "datenstrom-go-test",
		UserAgent: "curl/8.0",
		Hostname:  "events.example.com",
		Querystring: "e=pv&url=https%3A%2F%2Fexample.com%2Fpricing&page=Pricing" +
			"&tv=go-0.1.0&p=web&eid=5f0f2a6a-6e5c-4c1e-9b3a-0c6f1f2d3e4b",
	}
	frame, err := payload.Serialize(raw, payload.FormatThrift)
	require.NoError(t, err)

	out, err := enricher.Handle(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, out, 1)

	var event schema.AtomicEvent
	require.NoError(t, json.Unmarshal(out[0], &event))
	assert.Equal(t, "5f0f2a6a-6e5c-4c1e-9b3a-0c6f1f2d3e4b", event.EventID)
	assert.Equal(t, "page_view", event.EventName)
	assert.Equal(t, "https://example.com/pricing", event.Event.Data["page_url"])

	assert.Equal(t, "events.example.com", enricher.Domain(frame))
}

func TestEnricherHandleRejectsGarbageFrame(t *testing.T) {
	enricher, err := NewEnricher(enricherConfig(), clock.New())
	require.NoError(t, err)

	_, err = enricher.Handle(context.Background(), []byte("not a thrift frame"))
	require.Error(t, err)
	assert.Equal(t, fault.DecodeError, fault.KindOf(err))
	assert.Empty(t, enricher.Domain([]byte("not a thrift frame")))
}

func TestLoopErrorRecordWithoutFaultKind(t *testing.T) {
	loop := &Loop{Lane: sinks.LaneRaw, Handler: stubHandler{}}
	rec := loop.errorRecord([]byte("payload"), errors.New("plain failure"))

	var ep payload.ErrorPayload
	require.NoError(t, json.Unmarshal(rec, &ep))
	assert.Equal(t, "plain failure", ep.Reason)
	assert.Equal(t, "payload", string(ep.Payload))
}
