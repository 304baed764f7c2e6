// Package accrual periodically enumerates interest-bearing accounts and
// feeds accrual messages into the processing queue.
package accrual

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chris/sessioned-bank-transactions/pkg/models"
	"github.com/chris/sessioned-bank-transactions/pkg/queue"
	"github.com/chris/sessioned-bank-transactions/pkg/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// accrualNamespace seeds the deterministic message ids. Fixed forever: the
// same account and period must always hash to the same id.
var accrualNamespace = uuid.MustParse("8c7f9a52-1f26-4d6e-9a43-95c1d02b7a10")

// DefaultDailyRate is the interest rate applied per daily period.
var DefaultDailyRate = decimal.RequireFromString("0.0001")

// Producer emits one interest message per interest-bearing account per
// period.
type Producer struct {
	Accounts storage.AccountReader
	Sender   queue.Sender
	Logger   *slog.Logger
	Rate     decimal.Decimal
	Period   models.InterestPeriod

	now func() time.Time
}

// New creates a Producer with the default daily rate.
func New(accounts storage.AccountReader, sender queue.Sender, logger *slog.Logger) *Producer {
	return &Producer{
		Accounts: accounts,
		Sender:   sender,
		Logger:   logger,
		Rate:     DefaultDailyRate,
		Period:   models.PeriodDaily,
		now:      time.Now,
	}
}

// MessageId returns the deterministic dedup key for one account's accrual
// in one period: a UUIDv5 of account number and period key. Running the
// producer twice in the same period emits the same id, so the broker's
// duplicate detection and the ledger's id uniqueness both squash the
// second emit.
func (p *Producer) MessageId(accountNumber string, periodStart time.Time) string {
	name := fmt.Sprintf("%s/%s/%s", accountNumber, p.Period, periodStart.UTC().Format("2006-01-02"))
	return uuid.NewSHA1(accrualNamespace, []byte(name)).String()
}

// RunOnce computes and enqueues one accrual per interest-bearing account,
// returning how many messages were emitted. Accounts whose accrual would
// not be positive are skipped. Per-account send failures are logged and do
// not stop the sweep.
func (p *Producer) RunOnce(ctx context.Context) (int, error) {
	accounts, err := p.Accounts.ListInterestBearingAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate interest-bearing accounts: %w", err)
	}

	now := p.now().UTC()
	emitted := 0
	for _, acc := range accounts {
		amount := acc.Balance.Mul(p.Rate)
		if !amount.IsPositive() {
			continue
		}

		msg := &models.AccountMessage{
			Kind:           models.KindInterest,
			MessageId:      p.MessageId(acc.AccountNumber, now),
			AccountNumber:  acc.AccountNumber,
			Amount:         amount,
			Description:    fmt.Sprintf("%s interest accrual", p.Period),
			Timestamp:      now,
			InterestRate:   p.Rate,
			InterestPeriod: p.Period,
		}

		if _, err := p.Sender.Send(ctx, msg); err != nil {
			p.Logger.Error("failed to enqueue interest accrual",
				slog.String("account", acc.AccountNumber), slog.Any("error", err))
			continue
		}
		emitted++
	}

	p.Logger.Info("interest accrual sweep finished",
		slog.Int("accounts", len(accounts)), slog.Int("emitted", emitted))
	return emitted, nil
}

// Run sweeps once per interval until ctx is canceled.
func (p *Producer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil {
			p.Logger.Error("interest accrual sweep failed", slog.Any("error", err))
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
