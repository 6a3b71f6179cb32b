package awscloud

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Lllllllleong/unbundler/internal/models"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
)

// SQS limits for a single ReceiveMessage call.
const (
	MaxReceiveMessages = 10
	MaxWaitSeconds     = 20
)

// Queue is a work-item source backed by an SQS queue. A delivered message
// stays hidden for the visibility timeout; Release makes it visible again
// immediately and Acknowledge deletes it.
type Queue struct {
	client            sqsiface.SQSAPI
	url               string
	visibilityTimeout int64
}

// NewQueue resolves the queue URL for name.
func NewQueue(ctx context.Context, sess *session.Session, name string, visibilityTimeout int) (*Queue, error) {
	return NewQueueWithClient(ctx, sqs.New(sess), name, visibilityTimeout)
}

func NewQueueWithClient(ctx context.Context, client sqsiface.SQSAPI, name string, visibilityTimeout int) (*Queue, error) {
	if name == "" {
		return nil, fmt.Errorf("queue name must be provided")
	}
	out, err := client.GetQueueUrlWithContext(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve queue %s: %w", name, err)
	}
	return &Queue{
		client:            client,
		url:               aws.StringValue(out.QueueUrl),
		visibilityTimeout: int64(visibilityTimeout),
	}, nil
}

func (q *Queue) URL() string { return q.url }

// Poll long-polls for up to maxItems messages, waiting at most waitSeconds.
func (q *Queue) Poll(ctx context.Context, maxItems, waitSeconds int) ([]models.WorkItem, error) {
	if maxItems < 1 || maxItems > MaxReceiveMessages {
		return nil, fmt.Errorf("maxItems must be between 1 and %d, got %d", MaxReceiveMessages, maxItems)
	}
	if waitSeconds < 0 || waitSeconds > MaxWaitSeconds {
		return nil, fmt.Errorf("waitSeconds must be between 0 and %d, got %d", MaxWaitSeconds, waitSeconds)
	}
	out, err := q.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: aws.Int64(int64(maxItems)),
		WaitTimeSeconds:     aws.Int64(int64(waitSeconds)),
		VisibilityTimeout:   aws.Int64(q.visibilityTimeout),
		AttributeNames:      []*string{aws.String(sqs.MessageSystemAttributeNameApproximateReceiveCount)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}
	items := make([]models.WorkItem, 0, len(out.Messages))
	for _, m := range out.Messages {
		items = append(items, models.WorkItem{
			MessageID:    aws.StringValue(m.MessageId),
			Body:         aws.StringValue(m.Body),
			Handle:       aws.StringValue(m.ReceiptHandle),
			ReceiveCount: receiveCount(m),
		})
	}
	return items, nil
}

// Acknowledge deletes the message permanently.
func (q *Queue) Acknowledge(ctx context.Context, item models.WorkItem) error {
	_, err := q.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(item.Handle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", item.MessageID, err)
	}
	return nil
}

// Release makes the message immediately eligible for redelivery.
func (q *Queue) Release(ctx context.Context, item models.WorkItem) error {
	_, err := q.client.ChangeMessageVisibilityWithContext(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.url),
		ReceiptHandle:     aws.String(item.Handle),
		VisibilityTimeout: aws.Int64(0),
	})
	if err != nil {
		return fmt.Errorf("failed to release message %s: %w", item.MessageID, err)
	}
	return nil
}

// Quarantine forwards the body of a work item that can never succeed to a
// separate queue, tagging it with the failure reason.
func (q *Queue) Quarantine(ctx context.Context, item models.WorkItem, reason string) error {
	attrs := map[string]*sqs.MessageAttributeValue{}
	for name, value := range map[string]string{"quarantineReason": reason, "sourceMessageId": item.MessageID} {
		// SQS rejects empty attribute values.
		if value == "" {
			continue
		}
		attrs[name] = &sqs.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(value),
		}
	}
	_, err := q.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(q.url),
		MessageBody:       aws.String(item.Body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to quarantine message %s: %w", item.MessageID, err)
	}
	return nil
}

func receiveCount(m *sqs.Message) int {
	raw, ok := m.Attributes[sqs.MessageSystemAttributeNameApproximateReceiveCount]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(aws.StringValue(raw))
	if err != nil {
		return 0
	}
	return n
}
