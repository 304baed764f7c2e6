// Package applier turns one account message into one balance mutation plus
// one ledger record, atomically.
package applier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chris/sessioned-bank-transactions/pkg/models"
	"github.com/chris/sessioned-bank-transactions/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	applyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_apply_total",
		Help: "Messages applied to the ledger, by kind and outcome",
	}, []string{"kind", "outcome"})

	applyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bank_apply_duration_seconds",
		Help:    "Latency of one atomic ledger apply",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
)

// Applier applies account messages against a ledger store.
type Applier struct {
	store  storage.LedgerStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Applier.
func New(store storage.LedgerStore, logger *slog.Logger) *Applier {
	return &Applier{store: store, logger: logger, now: time.Now}
}

// Apply executes one message inside a single atomic scope: lock the account
// row, compute the new balance, persist balance and ledger record, commit.
// Any failure rolls the whole scope back and leaves balance and ledger
// untouched.
//
// Redelivery is safe: if a record with the message id already exists the
// call is a no-op that returns the balance recorded when the message was
// first applied.
//
// A withdrawal or fee may drive the balance negative; sufficiency is only
// pre-checked at submission time, where it can go stale before apply.
func (a *Applier) Apply(ctx context.Context, msg *models.AccountMessage) (decimal.Decimal, error) {
	timer := prometheus.NewTimer(applyDuration)
	defer timer.ObserveDuration()

	newBalance, err := a.apply(ctx, msg)
	if err != nil {
		applyTotal.WithLabelValues(string(msg.Kind), "error").Inc()
		return decimal.Zero, err
	}

	applyTotal.WithLabelValues(string(msg.Kind), "applied").Inc()
	return newBalance, nil
}

func (a *Applier) apply(ctx context.Context, msg *models.AccountMessage) (decimal.Decimal, error) {
	tx, err := a.store.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to open ledger transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The row lock serializes every writer on this account; the duplicate
	// check below is race-free while we hold it.
	balance, err := tx.ReadBalanceLocked(ctx, msg.AccountNumber)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance for account %s: %w", msg.AccountNumber, err)
	}

	existing, err := tx.GetTransaction(ctx, msg.MessageId)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to check for prior apply of %s: %w", msg.MessageId, err)
	}
	if existing != nil {
		a.logger.Info("message already applied, skipping",
			slog.String("message_id", msg.MessageId),
			slog.String("account", msg.AccountNumber))
		return existing.BalanceAfter, nil
	}

	var newBalance decimal.Decimal
	switch msg.Kind {
	case models.KindDeposit, models.KindInterest:
		newBalance = balance.Add(msg.Amount)
	case models.KindWithdrawal, models.KindFee:
		newBalance = balance.Sub(msg.Amount)
	default:
		return decimal.Zero, fmt.Errorf("cannot apply message %s: %w", msg.MessageId, models.ErrUnknownKind)
	}

	now := a.now().UTC()
	if err := tx.UpdateBalance(ctx, msg.AccountNumber, newBalance, now); err != nil {
		return decimal.Zero, err
	}

	rec := &models.TransactionRecord{
		Id:            msg.MessageId,
		AccountNumber: msg.AccountNumber,
		Amount:        msg.SignedAmount(),
		Type:          msg.Kind,
		Description:   msg.Description,
		Timestamp:     now,
		BalanceAfter:  newBalance,
	}
	if err := tx.InsertTransaction(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateTransaction) {
			// Lost a cross-process race on the id; the other writer's
			// record is authoritative.
			_ = tx.Rollback(ctx)
			return a.priorBalanceAfter(ctx, msg.MessageId)
		}
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}

	a.logger.Info("applied message",
		slog.String("message_id", msg.MessageId),
		slog.String("account", msg.AccountNumber),
		slog.String("kind", string(msg.Kind)),
		slog.String("new_balance", newBalance.String()))

	return newBalance, nil
}

// priorBalanceAfter fetches the balance recorded by an earlier apply of the
// same message id, using a fresh transaction because the current one was
// poisoned by the unique violation.
func (a *Applier) priorBalanceAfter(ctx context.Context, messageId string) (decimal.Decimal, error) {
	tx, err := a.store.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to open ledger transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := tx.GetTransaction(ctx, messageId)
	if err != nil {
		return decimal.Zero, err
	}
	if rec == nil {
		return decimal.Zero, fmt.Errorf("transaction %s vanished after duplicate insert", messageId)
	}
	return rec.BalanceAfter, nil
}
