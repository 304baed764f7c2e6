package queue

import (
	"context"
	"errors"

	"github.com/chris/sessioned-bank-transactions/pkg/models"
)

// ErrSessionBusy is returned by AcceptSession when another consumer already
// holds the session lease. It signals "skip this account for now", not a
// failure.
var ErrSessionBusy = errors.New("session is locked by another receiver")

// Delivery is one received message plus the broker bookkeeping needed to
// settle it. Body is the raw envelope; decoding is the consumer's job so a
// malformed body can be dead-lettered instead of crashing the receive loop.
type Delivery struct {
	MessageId     string
	SessionId     string
	Body          []byte
	ReceiptHandle string
	// DeliveryCount is how many times this message has been received,
	// including this delivery. The broker dead-letters automatically once
	// it passes the configured maximum.
	DeliveryCount int
}

// Sender is the producer half of the queue: it enqueues one account message
// onto the account's session.
type Sender interface {
	// Send enqueues the message, tagging it with session id = account
	// number and dedup id = message id, and returns the message id.
	Send(ctx context.Context, msg *models.AccountMessage) (string, error)
}

// SessionReceiver drains one account's session. At most one receiver holds
// a given session at a time; Close releases the lease.
type SessionReceiver interface {
	// Receive returns up to max messages in delivery order. An empty slice
	// means the backlog is drained.
	Receive(ctx context.Context, max int) ([]Delivery, error)

	// Complete removes a successfully processed message from the queue.
	Complete(ctx context.Context, d Delivery) error

	// Abandon returns the message to the queue for redelivery, incrementing
	// its delivery count.
	Abandon(ctx context.Context, d Delivery) error

	// DeadLetter terminally parks the message with a reason. It is never
	// redelivered.
	DeadLetter(ctx context.Context, d Delivery, reason string) error

	// Close releases the session lease so another consumer can take over.
	Close(ctx context.Context) error
}

// Queue is the full session-partitioned queue contract.
type Queue interface {
	Sender

	// AcceptSession acquires the exclusive lease for one account's session.
	// Returns ErrSessionBusy if it is held elsewhere.
	AcceptSession(ctx context.Context, accountNumber string) (SessionReceiver, error)

	// ListActiveSessions returns a point-in-time snapshot of the accounts
	// that currently hold undelivered messages.
	ListActiveSessions(ctx context.Context) ([]string, error)

	// Depth returns the approximate number of undelivered messages.
	Depth(ctx context.Context) (int, error)
}
