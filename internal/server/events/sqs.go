package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// sqsAPI is the subset of the SQS client used here; a seam for tests.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSOptions configures the queue publisher.
type SQSOptions struct {
	QueueURL     string
	Region       string
	RootUser     string
	RootPassword string
	BaseEndpoint string
}

// SQSPublisher delivers events to an SQS-compatible queue for asynchronous
// consumers (metadata indexers, plugin hosts).
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

// NewSQSPublisher builds a queue client with static credentials and an
// optional custom endpoint.
func NewSQSPublisher(ctx context.Context, opts SQSOptions) (*SQSPublisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.RootUser,
			opts.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		}
	})

	return &SQSPublisher{client: client, queueURL: opts.QueueURL}, nil
}

func (p *SQSPublisher) PublishChange(ctx context.Context, event ChangeRecorded) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.queueURL,
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
