package messaging

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
)

// SQSAPI is the subset of the SQS client the publisher needs.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends the same protobuf payload as KafkaPublisher, base64
// encoded in the message body. FIFO queues group messages by order id.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
}

func NewSQSPublisher(client SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func LoadAWSConfig(ctx context.Context, region string) (sdkaws.Config, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return cfg, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

func (p *SQSPublisher) Publish(ctx context.Context, event domain.OrderCreationEvent) error {
	value, err := EncodeOrderCreationEvent(event)
	if err != nil {
		return err
	}

	orderID := strconv.FormatInt(event.EventOrderID(), 10)
	messageID := uuid.NewString()
	input := &sqs.SendMessageInput{
		QueueUrl:    sdkaws.String(p.queueURL),
		MessageBody: sdkaws.String(base64.StdEncoding.EncodeToString(value)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"order_id":      stringAttribute(orderID),
			"event_type":    stringAttribute(eventType(event)),
			messageIDHeader: stringAttribute(messageID),
		},
	}
	if strings.HasSuffix(p.queueURL, ".fifo") {
		input.MessageGroupId = sdkaws.String(orderID)
		input.MessageDeduplicationId = sdkaws.String(messageID)
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func stringAttribute(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{
		DataType:    sdkaws.String("String"),
		StringValue: sdkaws.String(v),
	}
}

func eventType(event domain.OrderCreationEvent) string {
	switch event.(type) {
	case domain.OrderCreated:
		return "order_created"
	case domain.OrderProcessingStarted:
		return "order_processing_started"
	default:
		return "unknown"
	}
}
