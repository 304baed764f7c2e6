package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chris/sessioned-bank-transactions/pkg/models"
	"github.com/shopspring/decimal"
)

// ErrAccountNotFound is returned when the referenced account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// ErrDuplicateTransaction is returned by InsertTransaction when a record
// with the same id already exists. The applier treats it as "already
// applied", which is what makes message redelivery harmless.
var ErrDuplicateTransaction = errors.New("transaction id already exists")

// LedgerTx is one atomic scope against the ledger. Everything done through
// it commits or rolls back as a unit; a partial balance/ledger write is
// never observable.
type LedgerTx interface {
	// ReadBalanceLocked reads the account's balance under an exclusive row
	// lock, serializing concurrent writers on that account.
	ReadBalanceLocked(ctx context.Context, accountNumber string) (decimal.Decimal, error)

	// UpdateBalance writes the new balance and update timestamp.
	UpdateBalance(ctx context.Context, accountNumber string, newBalance decimal.Decimal, updatedAt time.Time) error

	// InsertTransaction appends one ledger record. Returns
	// ErrDuplicateTransaction if rec.Id is already present.
	InsertTransaction(ctx context.Context, rec *models.TransactionRecord) error

	// GetTransaction fetches a ledger record by id, or nil if absent.
	GetTransaction(ctx context.Context, id string) (*models.TransactionRecord, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// AccountReader is the non-transactional read surface used by the HTTP
// layer and the accrual producer.
type AccountReader interface {
	GetAccount(ctx context.Context, accountNumber string) (*models.Account, error)
	ListTransactions(ctx context.Context, accountNumber string, limit int) ([]models.TransactionRecord, error)
	ListInterestBearingAccounts(ctx context.Context) ([]models.Account, error)
}

// LedgerStore is the full ledger contract: transactional writes plus reads.
type LedgerStore interface {
	AccountReader

	// Begin opens a new atomic scope.
	Begin(ctx context.Context) (LedgerTx, error)
}
