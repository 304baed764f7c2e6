// Package processor contains the session-affine processing engine: a
// per-account drain loop and the scheduler that fans it out across accounts.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chris/sessioned-bank-transactions/pkg/models"
	"github.com/chris/sessioned-bank-transactions/pkg/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// DeadLetterInvalidFormat is the reason recorded when a message body cannot
// be decoded. Such messages are terminal and never retried.
const DeadLetterInvalidFormat = "invalid format"

// DeadLetterMaxDelivery is the reason recorded when a message has been
// delivered more times than the retry budget allows.
const DeadLetterMaxDelivery = "max delivery count exceeded"

var messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bank_session_messages_total",
	Help: "Messages settled by the session processor, by outcome",
}, []string{"outcome"})

// Applier applies one decoded message atomically against the ledger.
type Applier interface {
	Apply(ctx context.Context, msg *models.AccountMessage) (decimal.Decimal, error)
}

// SessionProcessor drains one account's message backlog serially. Messages
// for one account are never processed in parallel with each other; that is
// what keeps the per-account ledger history consistent.
type SessionProcessor struct {
	Queue     queue.Queue
	Applier   Applier
	Logger    *slog.Logger
	BatchSize int

	// MaxDeliveryCount mirrors the broker's redrive policy: a message seen
	// more than this many times is dead-lettered here rather than retried
	// forever, should the broker-side policy be missing.
	MaxDeliveryCount int
}

// NewSessionProcessor creates a SessionProcessor with the default batch size
// and retry budget.
func NewSessionProcessor(q queue.Queue, a Applier, logger *slog.Logger) *SessionProcessor {
	return &SessionProcessor{Queue: q, Applier: a, Logger: logger, BatchSize: 10, MaxDeliveryCount: 5}
}

// ProcessSession acquires the account's session and applies its backlog in
// delivery order, returning how many messages were applied.
//
// A session held by another consumer is not an error: the account is simply
// skipped this round. Context cancellation is honored between messages, so
// shutdown lets the current message finish but not the rest of the backlog.
func (p *SessionProcessor) ProcessSession(ctx context.Context, accountNumber string) (int, error) {
	receiver, err := p.Queue.AcceptSession(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, queue.ErrSessionBusy) {
			p.Logger.Debug("session busy, skipping", slog.String("account", accountNumber))
			return 0, nil
		}
		return 0, fmt.Errorf("failed to accept session for account %s: %w", accountNumber, err)
	}

	// Settlement and lease release must still reach the broker while we are
	// shutting down, after ctx is already canceled.
	settleCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := receiver.Close(settleCtx); err != nil {
			p.Logger.Error("failed to release session", slog.String("account", accountNumber), slog.Any("error", err))
		}
	}()

	applied := 0
	for ctx.Err() == nil {
		batch, err := receiver.Receive(ctx, p.BatchSize)
		if err != nil {
			return applied, fmt.Errorf("receive failed for account %s: %w", accountNumber, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, d := range batch {
			if ctx.Err() != nil {
				// Not started yet; leave it for the next processor.
				if abandonErr := receiver.Abandon(settleCtx, d); abandonErr != nil {
					p.Logger.Error("failed to abandon message on shutdown",
						slog.String("message_id", d.MessageId), slog.Any("error", abandonErr))
				}
				return applied, nil
			}

			ok, err := p.processOne(ctx, settleCtx, receiver, d)
			if err != nil {
				return applied, err
			}
			if !ok {
				// The failed message must be redelivered before anything
				// behind it, so stop draining here.
				return applied, nil
			}
			applied++
		}
	}

	return applied, nil
}

// processOne settles a single delivery. It returns false when the drain
// loop must stop because the message was abandoned for redelivery; a
// dead-lettered message reports true since the backlog behind it may
// proceed.
func (p *SessionProcessor) processOne(ctx, settleCtx context.Context, receiver queue.SessionReceiver, d queue.Delivery) (bool, error) {
	if p.MaxDeliveryCount > 0 && d.DeliveryCount > p.MaxDeliveryCount {
		p.Logger.Error("retry budget exhausted, dead-lettering",
			slog.String("message_id", d.MessageId),
			slog.String("session", d.SessionId),
			slog.Int("delivery_count", d.DeliveryCount))
		if dlErr := receiver.DeadLetter(settleCtx, d, DeadLetterMaxDelivery); dlErr != nil {
			return false, fmt.Errorf("failed to dead-letter message %s: %w", d.MessageId, dlErr)
		}
		messagesTotal.WithLabelValues("dead_lettered").Inc()
		return true, nil
	}

	msg, err := models.DecodeMessage(d.Body)
	if err != nil {
		p.Logger.Error("invalid message format, dead-lettering",
			slog.String("message_id", d.MessageId),
			slog.String("session", d.SessionId),
			slog.Any("error", err))
		if dlErr := receiver.DeadLetter(settleCtx, d, DeadLetterInvalidFormat); dlErr != nil {
			return false, fmt.Errorf("failed to dead-letter message %s: %w", d.MessageId, dlErr)
		}
		messagesTotal.WithLabelValues("dead_lettered").Inc()
		return true, nil
	}

	newBalance, err := p.Applier.Apply(ctx, msg)
	if err != nil {
		// An unrecognized kind can never succeed, so it goes the same way
		// as a decode failure. Anything else is worth a redelivery.
		if errors.Is(err, models.ErrUnknownKind) {
			p.Logger.Error("unprocessable message kind, dead-lettering",
				slog.String("message_id", msg.MessageId), slog.Any("error", err))
			if dlErr := receiver.DeadLetter(settleCtx, d, DeadLetterInvalidFormat); dlErr != nil {
				return false, fmt.Errorf("failed to dead-letter message %s: %w", d.MessageId, dlErr)
			}
			messagesTotal.WithLabelValues("dead_lettered").Inc()
			return true, nil
		}

		p.Logger.Error("apply failed, abandoning for redelivery",
			slog.String("message_id", msg.MessageId),
			slog.String("account", msg.AccountNumber),
			slog.Int("delivery_count", d.DeliveryCount),
			slog.Any("error", err))
		if abandonErr := receiver.Abandon(settleCtx, d); abandonErr != nil {
			return false, fmt.Errorf("failed to abandon message %s: %w", d.MessageId, abandonErr)
		}
		messagesTotal.WithLabelValues("abandoned").Inc()
		return false, nil
	}

	if err := receiver.Complete(settleCtx, d); err != nil {
		// The apply committed; on redelivery the ledger makes it a no-op.
		return false, fmt.Errorf("failed to complete message %s: %w", d.MessageId, err)
	}

	messagesTotal.WithLabelValues("completed").Inc()
	p.Logger.Info("processed message",
		slog.String("message_id", msg.MessageId),
		slog.String("account", msg.AccountNumber),
		slog.String("kind", string(msg.Kind)),
		slog.String("new_balance", newBalance.String()))
	return true, nil
}
