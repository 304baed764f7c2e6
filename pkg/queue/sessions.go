package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
)

// AcceptSession acquires the exclusive lease for one account's session via a
// conditional write: the lease item must be absent or expired. A failed
// condition means another consumer holds the session, which callers treat as
// "skip", not as a failure.
func (q *SQSQueue) AcceptSession(ctx context.Context, accountNumber string) (SessionReceiver, error) {
	owner := uuid.NewString()
	now := q.now()
	expires := now.Add(q.LeaseTTL)

	_, err := q.DB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(q.SessionTable),
		Key: map[string]types.AttributeValue{
			"account_number": &types.AttributeValueMemberS{Value: accountNumber},
		},
		UpdateExpression:    aws.String("SET lease_owner = :owner, lease_expires = :expires"),
		ConditionExpression: aws.String("attribute_not_exists(lease_owner) OR lease_expires < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner":   &types.AttributeValueMemberS{Value: owner},
			":expires": &types.AttributeValueMemberN{Value: strconv.FormatInt(expires.Unix(), 10)},
			":now":     &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return nil, ErrSessionBusy
		}
		return nil, fmt.Errorf("failed to acquire session lease for account %s: %w", accountNumber, err)
	}

	return &sessionReceiver{queue: q, accountNumber: accountNumber, owner: owner}, nil
}

// ListActiveSessions scans the session table for accounts whose pending
// counter is positive. Each call is a fresh snapshot; the scheduler never
// holds on to the result across ticks.
func (q *SQSQueue) ListActiveSessions(ctx context.Context) ([]string, error) {
	var accounts []string
	var startKey map[string]types.AttributeValue

	for {
		out, err := q.DB.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(q.SessionTable),
			FilterExpression:     aws.String("pending > :zero"),
			ProjectionExpression: aws.String("account_number"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":zero": &types.AttributeValueMemberN{Value: "0"},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list active sessions: %w", err)
		}

		for _, item := range out.Items {
			var row struct {
				AccountNumber string `dynamodbav:"account_number"`
			}
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				return nil, fmt.Errorf("failed to unmarshal session row: %w", err)
			}
			accounts = append(accounts, row.AccountNumber)
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return accounts, nil
}

// adjustPending adds delta to the account's pending-message counter.
func (q *SQSQueue) adjustPending(ctx context.Context, accountNumber string, delta int) error {
	_, err := q.DB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(q.SessionTable),
		Key: map[string]types.AttributeValue{
			"account_number": &types.AttributeValueMemberS{Value: accountNumber},
		},
		UpdateExpression: aws.String("ADD pending :delta"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":delta": &types.AttributeValueMemberN{Value: strconv.Itoa(delta)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to adjust pending counter for account %s: %w", accountNumber, err)
	}
	return nil
}

// sessionReceiver drains one account's backlog under the lease taken by
// AcceptSession.
type sessionReceiver struct {
	queue         *SQSQueue
	accountNumber string
	owner         string
}

var _ SessionReceiver = (*sessionReceiver)(nil)

// Receive long-polls the queue and returns this session's messages in
// delivery order. A FIFO receive can surface other groups' messages; those
// are released immediately (visibility reset to zero) so their own sessions
// can pick them up without waiting out the visibility timeout.
func (r *sessionReceiver) Receive(ctx context.Context, max int) ([]Delivery, error) {
	if max > 10 {
		max = 10 // SQS receive batch ceiling
	}

	out, err := r.queue.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(r.queue.QueueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(r.queue.ReceiveWait.Seconds()),
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameMessageGroupId,
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages for account %s: %w", r.accountNumber, err)
	}

	var deliveries []Delivery
	for _, m := range out.Messages {
		group := m.Attributes[string(sqstypes.MessageSystemAttributeNameMessageGroupId)]
		if group != r.accountNumber {
			// Not ours; hand it straight back.
			_, _ = r.queue.SQS.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
				QueueUrl:          aws.String(r.queue.QueueURL),
				ReceiptHandle:     m.ReceiptHandle,
				VisibilityTimeout: 0,
			})
			continue
		}

		count, _ := strconv.Atoi(m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])
		deliveries = append(deliveries, Delivery{
			MessageId:     aws.ToString(m.MessageId),
			SessionId:     group,
			Body:          []byte(aws.ToString(m.Body)),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			DeliveryCount: count,
		})
	}

	return deliveries, nil
}

// Complete removes the message from the queue and decrements the account's
// pending counter.
func (r *sessionReceiver) Complete(ctx context.Context, d Delivery) error {
	_, err := r.queue.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.queue.QueueURL),
		ReceiptHandle: aws.String(d.ReceiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to complete message %s: %w", d.MessageId, err)
	}
	return r.queue.adjustPending(ctx, r.accountNumber, -1)
}

// Abandon makes the message immediately visible again for redelivery. The
// broker tracks the receive count and dead-letters once it passes the
// queue's maximum.
func (r *sessionReceiver) Abandon(ctx context.Context, d Delivery) error {
	_, err := r.queue.SQS.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(r.queue.QueueURL),
		ReceiptHandle:     aws.String(d.ReceiptHandle),
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("failed to abandon message %s: %w", d.MessageId, err)
	}
	return nil
}

// DeadLetter copies the message to the dead-letter queue with a reason and
// removes it from the main queue.
func (r *sessionReceiver) DeadLetter(ctx context.Context, d Delivery, reason string) error {
	_, err := r.queue.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(r.queue.DeadLetterURL),
		MessageBody:            aws.String(string(d.Body)),
		MessageGroupId:         aws.String(r.accountNumber),
		MessageDeduplicationId: aws.String(d.MessageId),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"deadLetterReason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter message %s: %w", d.MessageId, err)
	}

	_, err = r.queue.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.queue.QueueURL),
		ReceiptHandle: aws.String(d.ReceiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to remove dead-lettered message %s: %w", d.MessageId, err)
	}

	return r.queue.adjustPending(ctx, r.accountNumber, -1)
}

// Close releases the session lease. Only the owner that acquired the lease
// may release it; a lease taken over after expiry is left alone.
func (r *sessionReceiver) Close(ctx context.Context) error {
	_, err := r.queue.DB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.queue.SessionTable),
		Key: map[string]types.AttributeValue{
			"account_number": &types.AttributeValueMemberS{Value: r.accountNumber},
		},
		UpdateExpression:    aws.String("REMOVE lease_owner, lease_expires"),
		ConditionExpression: aws.String("lease_owner = :owner"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: r.owner},
		},
	})
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			// Lease expired and was taken over; nothing to release.
			return nil
		}
		return fmt.Errorf("failed to release session lease for account %s: %w", r.accountNumber, err)
	}
	return nil
}
