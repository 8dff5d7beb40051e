package ingest

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// SQSAPI is the part of *sqs.Client the consumer uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSConsumer long-polls a queue of snapshots. A message is deleted once it
// is stored or found invalid; any other failure leaves it for redelivery
// after the visibility timeout.
type SQSConsumer struct {
	client     SQSAPI
	queueURL   string
	handler    *Handler
	log        *zap.Logger
	retryDelay time.Duration
}

func NewSQSConsumer(client SQSAPI, queueURL string, handler *Handler, log *zap.Logger) *SQSConsumer {
	return &SQSConsumer{
		client:     client,
		queueURL:   queueURL,
		handler:    handler,
		log:        log,
		retryDelay: 5 * time.Second,
	}
}

func (c *SQSConsumer) Start(ctx context.Context) {
	c.log.Info("SQS consumer listening", zap.String("queue", c.queueURL))
	for {
		select {
		case <-ctx.Done():
			c.log.Info("SQS consumer stopped")
			return
		default:
		}

		result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   60,
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.log.Warn("SQS receive failed", zap.Error(err))
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
			}
			continue
		}

		for _, message := range result.Messages {
			c.process(ctx, aws.ToString(message.MessageId), message.Body, message.ReceiptHandle)
		}
	}
}

func (c *SQSConsumer) process(ctx context.Context, id string, body, receiptHandle *string) {
	if body == nil {
		c.log.Warn("SQS message without body, deleting", zap.String("message_id", id))
		c.delete(ctx, receiptHandle)
		return
	}

	res, err := c.handler.Handle(ctx, []byte(*body))
	switch {
	case err == nil:
		c.log.Debug("SQS snapshot stored", zap.String("message_id", id), zap.Int("lot_id", res.LotID))
		c.delete(ctx, receiptHandle)
	case Permanent(err):
		c.log.Warn("SQS snapshot rejected, deleting", zap.String("message_id", id), zap.Error(err))
		c.delete(ctx, receiptHandle)
	default:
		c.log.Error("SQS snapshot failed, left for redelivery", zap.String("message_id", id), zap.Error(err))
	}
}

func (c *SQSConsumer) delete(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		c.log.Warn("SQS message without receipt handle, cannot delete")
		return
	}
	if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	}); err != nil {
		c.log.Warn("SQS delete failed", zap.Error(Error.Wrap(err)))
	}
}
