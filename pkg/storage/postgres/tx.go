package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chris/sessioned-bank-transactions/pkg/models"
	"github.com/chris/sessioned-bank-transactions/pkg/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// uniqueViolation is the Postgres error code for a unique constraint
// violation.
const uniqueViolation = "23505"

type ledgerTx struct {
	tx pgx.Tx
}

var _ storage.LedgerTx = (*ledgerTx)(nil)

// ReadBalanceLocked reads the balance under FOR UPDATE, blocking any other
// writer on the same account row until this transaction settles.
func (t *ledgerTx) ReadBalanceLocked(ctx context.Context, accountNumber string) (decimal.Decimal, error) {
	var balance string
	err := t.tx.QueryRow(ctx,
		"SELECT balance FROM accounts WHERE account_number = $1 FOR UPDATE",
		accountNumber,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, storage.ErrAccountNotFound
		}
		return decimal.Zero, fmt.Errorf("lock acquisition failed for account %s: %w", accountNumber, err)
	}

	d, err := decimal.NewFromString(balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance for account %s: %w", accountNumber, err)
	}
	return d, nil
}

func (t *ledgerTx) UpdateBalance(ctx context.Context, accountNumber string, newBalance decimal.Decimal, updatedAt time.Time) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE accounts SET balance = $1, last_updated = $2 WHERE account_number = $3",
		newBalance.String(), updatedAt, accountNumber,
	)
	if err != nil {
		return fmt.Errorf("balance update failed for account %s: %w", accountNumber, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

func (t *ledgerTx) InsertTransaction(ctx context.Context, rec *models.TransactionRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO transactions (id, account_number, amount, type, description, ts, balance_after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.Id, rec.AccountNumber, rec.Amount.String(), rec.Type, rec.Description, rec.Timestamp, rec.BalanceAfter.String(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrDuplicateTransaction
		}
		return fmt.Errorf("transaction insert failed for %s: %w", rec.Id, err)
	}
	return nil
}

func (t *ledgerTx) GetTransaction(ctx context.Context, id string) (*models.TransactionRecord, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, account_number, amount, type, COALESCE(description, ''), ts, balance_after
		 FROM transactions WHERE id = $1`,
		id,
	)
	rec, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (t *ledgerTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (t *ledgerTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("tx rollback failed: %w", err)
	}
	return nil
}
