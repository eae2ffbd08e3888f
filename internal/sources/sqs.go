package sources

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
	"github.com/datenstrom/datenstrom/internal/sinks"
)

// sqsSource leases messages from one SQS queue; an ack deletes the message.
// The raw lane carries base64 on the wire (see the sqs sink) and is decoded
// here.
type sqsSource struct {
	client   *sqs.Client
	queueURL string
	lane     sinks.Lane
}

func newSQSSource(ctx context.Context, cfg *config.Config, lane sinks.Lane) (*sqsSource, error) {
	name, err := sinks.SQSQueueName(cfg, lane)
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
	return &sqsSource{
		client:   client,
		queueURL: aws.ToString(out.QueueUrl),
		lane:     lane,
	}, nil
}

func (s *sqsSource) Read(ctx context.Context) ([]*Message, error) {
	out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: batchSize,
		WaitTimeSeconds:     1,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fault.Wrap(fault.Transient, err, "receiving from sqs")
	}

	batch := make([]*Message, 0, len(out.Messages))
	for _, msg := range out.Messages {
		data := []byte(aws.ToString(msg.Body))
		if s.lane == sinks.LaneRaw {
			decoded, err := base64.StdEncoding.DecodeString(aws.ToString(msg.Body))
			if err != nil {
				// Keep the undecodable body so the worker routes it to the
				// errors lane instead of dropping it here.
				slog.Warn("sqs raw message is not base64", "error", err)
			} else {
				data = decoded
			}
		}
		receipt := msg.ReceiptHandle
		batch = append(batch, NewMessage(data, func() {
			_, err := s.client.DeleteMessage(context.Background(), &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(s.queueURL),
				ReceiptHandle: receipt,
			})
			if err != nil {
				slog.Warn("deleting sqs message failed", "error", err)
			}
		}))
	}
	return batch, nil
}

func (s *sqsSource) Close() error { return nil }
