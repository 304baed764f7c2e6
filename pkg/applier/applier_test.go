package applier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/chris/sessioned-bank-transactions/pkg/models"
	"github.com/chris/sessioned-bank-transactions/pkg/storage"
	"github.com/chris/sessioned-bank-transactions/pkg/storage/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func message(kind models.MessageKind, amount string) *models.AccountMessage {
	return &models.AccountMessage{
		Kind:          kind,
		MessageId:     "msg-1",
		AccountNumber: "ACC-001",
		Amount:        decimal.RequireFromString(amount),
		Timestamp:     time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestApply(t *testing.T) {
	t.Run("Deposit Adds To Balance", func(t *testing.T) {
		mockStore := new(mocks.LedgerStore)
		mockTx := new(mocks.LedgerTx)

		mockStore.On("Begin", mock.Anything).Return(mockTx, nil)
		mockTx.On("ReadBalanceLocked", mock.Anything, "ACC-001").Return(decimal.RequireFromString("100.00"), nil)
		mockTx.On("GetTransaction", mock.Anything, "msg-1").Return(nil, nil)
		mockTx.On("UpdateBalance", mock.Anything, "ACC-001", mock.MatchedBy(func(d decimal.Decimal) bool {
			return d.Equal(decimal.RequireFromString("150.00"))
		}), mock.Anything).Return(nil)
		mockTx.On("InsertTransaction", mock.Anything, mock.MatchedBy(func(rec *models.TransactionRecord) bool {
			return rec.Id == "msg-1" &&
				rec.Type == models.KindDeposit &&
				rec.BalanceAfter.Equal(decimal.RequireFromString("150.00")) &&
				rec.Amount.Equal(decimal.RequireFromString("50.00"))
		})).Return(nil)
		mockTx.On("Commit", mock.Anything).Return(nil)
		mockTx.On("Rollback", mock.Anything).Return(nil)

		a := New(mockStore, discardLogger())
		newBalance, err := a.Apply(context.Background(), message(models.KindDeposit, "50.00"))

		require.NoError(t, err)
		assert.True(t, newBalance.Equal(decimal.RequireFromString("150.00")))
		mockTx.AssertExpectations(t)
	})

	t.Run("Withdrawal Subtracts From Balance", func(t *testing.T) {
		mockStore := new(mocks.LedgerStore)
		mockTx := new(mocks.LedgerTx)

		mockStore.On("Begin", mock.Anything).Return(mockTx, nil)
		mockTx.On("ReadBalanceLocked", mock.Anything, "ACC-001").Return(decimal.RequireFromString("150.00"), nil)
		mockTx.On("GetTransaction", mock.Anything, "msg-1").Return(nil, nil)
		mockTx.On("UpdateBalance", mock.Anything, "ACC-001", mock.MatchedBy(func(d decimal.Decimal) bool {
			return d.Equal(decimal.RequireFromString("120.00"))
		}), mock.Anything).Return(nil)
		mockTx.On("InsertTransaction", mock.Anything, mock.MatchedBy(func(rec *models.TransactionRecord) bool {
			return rec.Amount.Equal(decimal.RequireFromString("-30.00"))
		})).Return(nil)
		mockTx.On("Commit", mock.Anything).Return(nil)
		mockTx.On("Rollback", mock.Anything).Return(nil)

		a := New(mockStore, discardLogger())
		newBalance, err := a.Apply(context.Background(), message(models.KindWithdrawal, "30.00"))

		require.NoError(t, err)
		assert.True(t, newBalance.Equal(decimal.RequireFromString("120.00")))
	})

	t.Run("Withdrawal May Drive Balance Negative", func(t *testing.T) {
		mockStore := new(mocks.LedgerStore)
		mockTx := new(mocks.LedgerTx)

		mockStore.On("Begin", mock.Anything).Return(mockTx, nil)
		mockTx.On("ReadBalanceLocked", mock.Anything, "ACC-001").Return(decimal.RequireFromString("10.00"), nil)
		mockTx.On("GetTransaction", mock.Anything, "msg-1").Return(nil, nil)
		mockTx.On("UpdateBalance", mock.Anything, "ACC-001", mock.Anything, mock.Anything).Return(nil)
		mockTx.On("InsertTransaction", mock.Anything, mock.Anything).Return(nil)
		mockTx.On("Commit", mock.Anything).Return(nil)
		mockTx.On("Rollback", mock.Anything).Return(nil)

		a := New(mockStore, discardLogger())
		newBalance, err := a.Apply(context.Background(), message(models.KindWithdrawal, "30.00"))

		require.NoError(t, err)
		assert.True(t, newBalance.Equal(decimal.RequireFromString("-20.00")))
	})

	t.Run("Already Applied Is A No-Op", func(t *testing.T) {
		mockStore := new(mocks.LedgerStore)
		mockTx := new(mocks.LedgerTx)

		prior := &models.TransactionRecord{
			Id:           "msg-1",
			BalanceAfter: decimal.RequireFromString("120.00"),
		}

		mockStore.On("Begin", mock.Anything).Return(mockTx, nil)
		mockTx.On("ReadBalanceLocked", mock.Anything, "ACC-001").Return(decimal.RequireFromString("120.00"), nil)
		mockTx.On("GetTransaction", mock.Anything, "msg-1").Return(prior, nil)
		mockTx.On("Rollback", mock.Anything).Return(nil)

		a := New(mockStore, discardLogger())
		newBalance, err := a.Apply(context.Background(), message(models.KindDeposit, "50.00"))

		require.NoError(t, err)
		assert.True(t, newBalance.Equal(decimal.RequireFromString("120.00")))
		// Neither the balance nor the ledger was touched.
		mockTx.AssertNotCalled(t, "UpdateBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		mockTx.AssertNotCalled(t, "InsertTransaction", mock.Anything, mock.Anything)
		mockTx.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("Duplicate Insert Race Returns Prior Balance", func(t *testing.T) {
		mockStore := new(mocks.LedgerStore)
		mockTx := new(mocks.LedgerTx)
		mockRetryTx := new(mocks.LedgerTx)

		prior := &models.TransactionRecord{
			Id:           "msg-1",
			BalanceAfter: decimal.RequireFromString("150.00"),
		}

		mockStore.On("Begin", mock.Anything).Once().Return(mockTx, nil)
		mockTx.On("ReadBalanceLocked", mock.Anything, "ACC-001").Return(decimal.RequireFromString("100.00"), nil)
		mockTx.On("GetTransaction", mock.Anything, "msg-1").Return(nil, nil)
		mockTx.On("UpdateBalance", mock.Anything, "ACC-001", mock.Anything, mock.Anything).Return(nil)
		mockTx.On("InsertTransaction", mock.Anything, mock.Anything).Return(storage.ErrDuplicateTransaction)
		mockTx.On("Rollback", mock.Anything).Return(nil)

		mockStore.On("Begin", mock.Anything).Once().Return(mockRetryTx, nil)
		mockRetryTx.On("GetTransaction", mock.Anything, "msg-1").Return(prior, nil)
		mockRetryTx.On("Rollback", mock.Anything).Return(nil)

		a := New(mockStore, discardLogger())
		newBalance, err := a.Apply(context.Background(), message(models.KindDeposit, "50.00"))

		require.NoError(t, err)
		assert.True(t, newBalance.Equal(decimal.RequireFromString("150.00")))
	})

	t.Run("Unknown Kind Is Fatal", func(t *testing.T) {
		mockStore := new(mocks.LedgerStore)
		mockTx := new(mocks.LedgerTx)

		mockStore.On("Begin", mock.Anything).Return(mockTx, nil)
		mockTx.On("ReadBalanceLocked", mock.Anything, "ACC-001").Return(decimal.Zero, nil)
		mockTx.On("GetTransaction", mock.Anything, "msg-1").Return(nil, nil)
		mockTx.On("Rollback", mock.Anything).Return(nil)

		a := New(mockStore, discardLogger())
		msg := message(models.MessageKind("transfer"), "50.00")
		_, err := a.Apply(context.Background(), msg)

		assert.ErrorIs(t, err, models.ErrUnknownKind)
		mockTx.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("Store Failure Rolls Everything Back", func(t *testing.T) {
		mockStore := new(mocks.LedgerStore)
		mockTx := new(mocks.LedgerTx)

		mockStore.On("Begin", mock.Anything).Return(mockTx, nil)
		mockTx.On("ReadBalanceLocked", mock.Anything, "ACC-001").Return(decimal.RequireFromString("100.00"), nil)
		mockTx.On("GetTransaction", mock.Anything, "msg-1").Return(nil, nil)
		mockTx.On("UpdateBalance", mock.Anything, "ACC-001", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
		mockTx.On("Rollback", mock.Anything).Return(nil)

		a := New(mockStore, discardLogger())
		_, err := a.Apply(context.Background(), message(models.KindDeposit, "50.00"))

		assert.Error(t, err)
		mockTx.AssertNotCalled(t, "Commit", mock.Anything)
		mockTx.AssertCalled(t, "Rollback", mock.Anything)
	})
}
