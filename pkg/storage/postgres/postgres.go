package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/chris/sessioned-bank-transactions/pkg/models"
	"github.com/chris/sessioned-bank-transactions/pkg/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store implements storage.LedgerStore on Postgres via pgx.
type Store struct {
	Pool *pgxpool.Pool
}

// New connects a pool and verifies it with a ping.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// Make sure we conform to the interface
var _ storage.LedgerStore = (*Store)(nil)

func (s *Store) Close() {
	s.Pool.Close()
}

// Begin opens a ledger transaction. Row locking happens per statement via
// FOR UPDATE, so the default isolation level is enough to keep the
// read-modify-write scope serial per account.
func (s *Store) Begin(ctx context.Context) (storage.LedgerTx, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	return &ledgerTx{tx: tx}, nil
}

// GetAccount retrieves a single account by number.
func (s *Store) GetAccount(ctx context.Context, accountNumber string) (*models.Account, error) {
	var acc models.Account
	var balance string
	err := s.Pool.QueryRow(ctx,
		"SELECT account_number, balance, account_type, last_updated FROM accounts WHERE account_number = $1",
		accountNumber,
	).Scan(&acc.AccountNumber, &balance, &acc.AccountType, &acc.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account %s: %w", accountNumber, err)
	}

	acc.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("invalid balance for account %s: %w", accountNumber, err)
	}
	return &acc, nil
}

// ListTransactions returns the account's most recent ledger entries.
func (s *Store) ListTransactions(ctx context.Context, accountNumber string, limit int) ([]models.TransactionRecord, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, account_number, amount, type, COALESCE(description, ''), ts, balance_after
		 FROM transactions WHERE account_number = $1 ORDER BY ts DESC LIMIT $2`,
		accountNumber, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for account %s: %w", accountNumber, err)
	}
	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// ListInterestBearingAccounts returns every account flagged as
// interest-bearing, for the accrual producer.
func (s *Store) ListInterestBearingAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.Pool.Query(ctx,
		"SELECT account_number, balance, account_type, last_updated FROM accounts WHERE account_type = $1",
		models.SAVINGS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list interest-bearing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var acc models.Account
		var balance string
		if err := rows.Scan(&acc.AccountNumber, &balance, &acc.AccountType, &acc.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		acc.Balance, err = decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("invalid balance for account %s: %w", acc.AccountNumber, err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.TransactionRecord, error) {
	var rec models.TransactionRecord
	var amount, balanceAfter string
	if err := row.Scan(&rec.Id, &rec.AccountNumber, &amount, &rec.Type, &rec.Description, &rec.Timestamp, &balanceAfter); err != nil {
		return nil, fmt.Errorf("failed to scan transaction row: %w", err)
	}

	var err error
	rec.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount on transaction %s: %w", rec.Id, err)
	}
	rec.BalanceAfter, err = decimal.NewFromString(balanceAfter)
	if err != nil {
		return nil, fmt.Errorf("invalid balance_after on transaction %s: %w", rec.Id, err)
	}
	return &rec, nil
}
