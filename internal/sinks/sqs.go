package sinks

import (
	"context"
	"encoding/base64"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/benbjohnson/clock"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
)

// sqsBatchSize is the SendMessageBatch entry limit.
const sqsBatchSize = 10

// sqsSink writes records to one SQS queue. Raw frames are binary and SQS
// bodies are text, so the raw lane is base64-encoded on the wire; the JSON
// lanes go through as-is.
type sqsSink struct {
	client   *sqs.Client
	queueURL string
	lane     Lane
	counter  *failureCounter
}

// SQSQueueName resolves the configured queue name for a lane.
func SQSQueueName(cfg *config.Config, lane Lane) (string, error) {
	var name string
	switch lane {
	case LaneRaw:
		name = cfg.SQSQueueRaw
	case LaneEvents:
		name = cfg.SQSQueueEvents
	case LaneErrors:
		name = cfg.SQSQueueErrors
	}
	if name == "" {
		return "", fault.Errorf(fault.Fatal, "no sqs queue configured for lane %q", lane)
	}
	return name, nil
}

func newSQSSink(ctx context.Context, cfg *config.Config, lane Lane, clk clock.Clock) (*sqsSink, error) {
	name, err := SQSQueueName(cfg, lane)
	if err != nil {
		return nil, err
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.Fatal, err, "loading aws configuration")
	}
	client := sqs.NewFromConfig(awsCfg)
	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return nil, fault.Wrap(fault.Fatal, err, "resolving sqs queue "+name)
	}
	return &sqsSink{
		client:   client,
		queueURL: aws.ToString(out.QueueUrl),
		lane:     lane,
		counter:  newFailureCounter("sqs", clk),
	}, nil
}

func (s *sqsSink) body(rec []byte) string {
	if s.lane == LaneRaw {
		return base64.StdEncoding.EncodeToString(rec)
	}
	return string(rec)
}

func (s *sqsSink) Write(ctx context.Context, records [][]byte) error {
	for start := 0; start < len(records); start += sqsBatchSize {
		end := min(start+sqsBatchSize, len(records))
		entries := make([]types.SendMessageBatchRequestEntry, 0, end-start)
		for i, rec := range records[start:end] {
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(strconv.Itoa(i)),
				MessageBody: aws.String(s.body(rec)),
			})
		}
		out, err := s.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(s.queueURL),
			Entries:  entries,
		})
		if err != nil {
			s.counter.record(err)
			return fault.Wrap(fault.Transient, err, "sending sqs batch")
		}
		if len(out.Failed) > 0 {
			err := fault.Errorf(fault.Transient, "%d of %d sqs entries failed: %s",
				len(out.Failed), len(entries), aws.ToString(out.Failed[0].Message))
			s.counter.record(err)
			return err
		}
	}
	return nil
}

func (s *sqsSink) Close() error { return nil }
