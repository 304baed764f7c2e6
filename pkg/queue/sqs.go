package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/chris/sessioned-bank-transactions/pkg/models"
)

// SQSAPI is the subset of the SQS client used by the queue adapter.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// DynamoDBAPI is the subset of the DynamoDB client used for session leases
// and active-session tracking.
type DynamoDBAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// SQSQueue implements Queue on an SQS FIFO queue plus a DynamoDB session
// table.
//
// The FIFO queue supplies the ordering and duplicate-detection half of the
// contract: MessageGroupId = account number keeps per-account delivery
// sequential, MessageDeduplicationId = message id gives broker-side dedup
// over a rolling window, and the queue's redrive policy moves a message to
// the dead-letter queue once its receive count passes the configured
// maximum.
//
// The broker has no native session-listing call, so the session table
// carries one item per account: a pending-message counter maintained on
// send/settle (backing ListActiveSessions) and a lease that makes
// AcceptSession exclusive, with an expiry so a crashed consumer's session
// can be taken over.
type SQSQueue struct {
	SQS          SQSAPI
	DB           DynamoDBAPI
	QueueURL     string
	DeadLetterURL string
	SessionTable string
	// LeaseTTL bounds how long a crashed consumer can hold a session.
	LeaseTTL time.Duration
	// ReceiveWait is the long-poll duration for a single receive call.
	ReceiveWait time.Duration

	now func() time.Time
}

// NewSQSQueue creates an SQSQueue with default lease and polling settings.
func NewSQSQueue(sqsClient SQSAPI, dbClient DynamoDBAPI, queueURL, deadLetterURL, sessionTable string) *SQSQueue {
	return &SQSQueue{
		SQS:           sqsClient,
		DB:            dbClient,
		QueueURL:      queueURL,
		DeadLetterURL: deadLetterURL,
		SessionTable:  sessionTable,
		LeaseTTL:      2 * time.Minute,
		ReceiveWait:   5 * time.Second,
		now:           time.Now,
	}
}

// Make sure we conform to the interface
var _ Queue = (*SQSQueue)(nil)

// Send enqueues the message onto its account's session and bumps the
// account's pending counter so the scheduler can discover it.
func (q *SQSQueue) Send(ctx context.Context, msg *models.AccountMessage) (string, error) {
	body, err := models.EncodeMessage(msg)
	if err != nil {
		return "", err
	}

	_, err = q.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(q.QueueURL),
		MessageBody:            aws.String(string(body)),
		MessageGroupId:         aws.String(msg.SessionId()),
		MessageDeduplicationId: aws.String(msg.MessageId),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Kind)),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send message for account %s: %w", msg.AccountNumber, err)
	}

	if err := q.adjustPending(ctx, msg.AccountNumber, 1); err != nil {
		// The message is already queued; tracking is advisory and the
		// counter self-corrects when the message is settled.
		return msg.MessageId, fmt.Errorf("message %s sent but session tracking failed: %w", msg.MessageId, err)
	}

	return msg.MessageId, nil
}

// Depth returns the approximate number of undelivered messages on the queue.
func (q *SQSQueue) Depth(ctx context.Context) (int, error) {
	out, err := q.SQS.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.QueueURL),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read queue attributes: %w", err)
	}

	raw := out.Attributes[string(sqstypes.QueueAttributeNameApproximateNumberOfMessages)]
	depth, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("unexpected queue depth value %q: %w", raw, err)
	}
	return depth, nil
}
