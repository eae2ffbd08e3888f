package sinks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/firehose/types"
	"github.com/benbjohnson/clock"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
)

// firehoseBatchSize is the PutRecordBatch entry limit.
const firehoseBatchSize = 500

// firehoseSink delivers records to a Kinesis Firehose stream. JSON lanes are
// newline-terminated so the delivery files are valid JSON lines.
type firehoseSink struct {
	client  *firehose.Client
	stream  string
	lane    Lane
	counter *failureCounter
}

func newFirehoseSink(ctx context.Context, cfg *config.Config, lane Lane, clk clock.Clock) (*firehoseSink, error) {
	if cfg.FirehoseStreamName == "" {
		return nil, fault.New(fault.Fatal, "no firehose stream configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.Fatal, err, "loading aws configuration")
	}
	return &firehoseSink{
		client:  firehose.NewFromConfig(awsCfg),
		stream:  cfg.FirehoseStreamName,
		lane:    lane,
		counter: newFailureCounter("firehose", clk),
	}, nil
}

func (s *firehoseSink) data(rec []byte) []byte {
	if s.lane == LaneRaw {
		return rec
	}
	return append(rec, '\n')
}

func (s *firehoseSink) Write(ctx context.Context, records [][]byte) error {
	for start := 0; start < len(records); start += firehoseBatchSize {
		end := min(start+firehoseBatchSize, len(records))
		batch := make([]types.Record, 0, end-start)
		for _, rec := range records[start:end] {
			batch = append(batch, types.Record{Data: s.data(rec)})
		}
		out, err := s.client.PutRecordBatch(ctx, &firehose.PutRecordBatchInput{
			DeliveryStreamName: aws.String(s.stream),
			Records:            batch,
		})
		if err != nil {
			s.counter.record(err)
			return fault.Wrap(fault.Transient, err, "putting firehose batch")
		}
		if failed := aws.ToInt32(out.FailedPutCount); failed > 0 {
			err := fault.Errorf(fault.Transient, "%d of %d firehose records failed", failed, len(batch))
			s.counter.record(err)
			return err
		}
	}
	return nil
}

func (s *firehoseSink) Close() error { return nil }
