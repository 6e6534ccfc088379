// Package queue consumes payment events from AWS SQS and feeds them into
// the reconciliation service.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/infra/observability"
)

// EventHandler processes one payment event. Implemented by the pledge
// service.
type EventHandler interface {
	HandlePaymentEvent(ctx context.Context, event domain.PaymentEvent) error
}

// Config holds SQS consumer settings.
type Config struct {
	QueueURL  string
	Region    string
	AccessKey string
	SecretKey string
}

// Consumer long-polls an SQS queue for payment events.
type Consumer struct {
	client   *sqs.Client
	queueURL string
	handler  EventHandler
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewConsumer builds the SQS client. Static credentials are used when
// provided; otherwise the default AWS credential chain applies.
func NewConsumer(ctx context.Context, cfg Config, handler EventHandler, logger *zap.Logger, metrics *observability.Metrics) (*Consumer, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "sqs", Err: err}
	}

	return &Consumer{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		handler:  handler,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Run polls until the context is cancelled. A message is deleted from the
// queue only after its event was handled successfully; failed messages
// reappear after the visibility timeout.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("sqs consumer started", zap.String("queue", c.queueURL))

	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info("sqs consumer stopped")
			return err
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("receive messages", zap.Error(err))
			c.metrics.IncrExternalError("sqs")

			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, msg := range out.Messages {
			c.process(ctx, aws.ToString(msg.Body), aws.ToString(msg.MessageId), msg.ReceiptHandle)
		}
	}
}

func (c *Consumer) process(ctx context.Context, body, messageID string, receiptHandle *string) {
	var event domain.PaymentEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		c.logger.Warn("malformed payment event, dropping",
			zap.String("message_id", messageID),
			zap.Error(err))
		// Malformed messages never become valid; delete instead of retrying.
		c.metrics.IncrEventConsumed("malformed")
		c.delete(ctx, messageID, receiptHandle)
		return
	}

	if err := c.handler.HandlePaymentEvent(ctx, event); err != nil {
		c.logger.Error("handle payment event",
			zap.String("message_id", messageID),
			zap.String("payment_id", event.PaymentID),
			zap.Error(err))
		c.metrics.IncrEventConsumed("error")
		return
	}

	c.metrics.IncrEventConsumed("ok")
	c.delete(ctx, messageID, receiptHandle)
}

func (c *Consumer) delete(ctx context.Context, messageID string, receiptHandle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		c.logger.Error("delete message", zap.String("message_id", messageID), zap.Error(err))
		c.metrics.IncrExternalError("sqs")
	}
}
