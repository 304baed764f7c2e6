package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chris/sessioned-bank-transactions/pkg/models"
	qmocks "github.com/chris/sessioned-bank-transactions/pkg/queue/mocks"
	"github.com/chris/sessioned-bank-transactions/pkg/storage"
	smocks "github.com/chris/sessioned-bank-transactions/pkg/storage/mocks"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockRunner is a testify mock for the processor.Runner dependency.
type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) ProcessSession(ctx context.Context, accountNumber string) (int, error) {
	ret := m.Called(ctx, accountNumber)
	return ret.Int(0), ret.Error(1)
}

// mockTick is a testify mock for the TickRunner dependency.
type mockTick struct {
	mock.Mock
}

func (m *mockTick) RunOnce(ctx context.Context) (int, error) {
	ret := m.Called(ctx)
	return ret.Int(0), ret.Error(1)
}

type fixture struct {
	queue  *qmocks.Queue
	store  *smocks.LedgerStore
	runner *mockRunner
	tick   *mockTick
	router *chi.Mux
}

func newFixture() *fixture {
	f := &fixture{
		queue:  new(qmocks.Queue),
		store:  new(smocks.LedgerStore),
		runner: new(mockRunner),
		tick:   new(mockTick),
	}
	h := NewApiHandler(f.queue, f.store, f.runner, f.tick, discardLogger())
	f.router = chi.NewRouter()
	h.Routes(f.router)
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if s, ok := body.(string); ok {
		reader = strings.NewReader(s)
	} else if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestDeposit(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture()
		f.queue.On("Send", mock.Anything, mock.MatchedBy(func(m *models.AccountMessage) bool {
			return m.Kind == models.KindDeposit &&
				m.AccountNumber == "ACC-001" &&
				m.Amount.Equal(decimal.RequireFromString("50.00")) &&
				m.MessageId != ""
		})).Once().Return("generated-id", nil)

		rr := f.do(http.MethodPost, "/api/v1/transactions/deposit", DepositRequest{
			AccountNumber: "ACC-001",
			Amount:        decimal.RequireFromString("50.00"),
			Description:   "payday",
		})

		assert.Equal(t, http.StatusAccepted, rr.Code)
		var resp EnqueuedResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "generated-id", resp.MessageId)
		assert.Equal(t, "QUEUED", resp.Status)
		f.queue.AssertExpectations(t)
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		f := newFixture()
		rr := f.do(http.MethodPost, "/api/v1/transactions/deposit", "not-json")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		f.queue.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("Non-Positive Amount Rejected Before The Queue", func(t *testing.T) {
		f := newFixture()
		rr := f.do(http.MethodPost, "/api/v1/transactions/deposit", DepositRequest{
			AccountNumber: "ACC-001",
			Amount:        decimal.RequireFromString("-5.00"),
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		f.queue.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("Missing Account Rejected", func(t *testing.T) {
		f := newFixture()
		rr := f.do(http.MethodPost, "/api/v1/transactions/deposit", DepositRequest{
			Amount: decimal.RequireFromString("5.00"),
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Queue Failure", func(t *testing.T) {
		f := newFixture()
		f.queue.On("Send", mock.Anything, mock.Anything).Return("", errors.New("sqs down"))

		rr := f.do(http.MethodPost, "/api/v1/transactions/deposit", DepositRequest{
			AccountNumber: "ACC-001",
			Amount:        decimal.RequireFromString("5.00"),
		})
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestWithdraw(t *testing.T) {
	account := &models.Account{
		AccountNumber: "ACC-001",
		Balance:       decimal.RequireFromString("100.00"),
		AccountType:   models.CHECKING,
		LastUpdated:   time.Now(),
	}

	t.Run("Success", func(t *testing.T) {
		f := newFixture()
		f.store.On("GetAccount", mock.Anything, "ACC-001").Return(account, nil)
		f.queue.On("Send", mock.Anything, mock.MatchedBy(func(m *models.AccountMessage) bool {
			return m.Kind == models.KindWithdrawal && m.Destination == "ATM-7"
		})).Once().Return("id", nil)

		rr := f.do(http.MethodPost, "/api/v1/transactions/withdraw", WithdrawRequest{
			AccountNumber: "ACC-001",
			Amount:        decimal.RequireFromString("30.00"),
			Destination:   "ATM-7",
		})

		assert.Equal(t, http.StatusAccepted, rr.Code)
		f.queue.AssertExpectations(t)
	})

	t.Run("Insufficient Funds", func(t *testing.T) {
		f := newFixture()
		f.store.On("GetAccount", mock.Anything, "ACC-001").Return(account, nil)

		rr := f.do(http.MethodPost, "/api/v1/transactions/withdraw", WithdrawRequest{
			AccountNumber: "ACC-001",
			Amount:        decimal.RequireFromString("150.00"),
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Contains(t, rr.Body.String(), "Insufficient funds")
		f.queue.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("Account Not Found", func(t *testing.T) {
		f := newFixture()
		f.store.On("GetAccount", mock.Anything, "ACC-404").Return(nil, storage.ErrAccountNotFound)

		rr := f.do(http.MethodPost, "/api/v1/transactions/withdraw", WithdrawRequest{
			AccountNumber: "ACC-404",
			Amount:        decimal.RequireFromString("10.00"),
		})

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestProcessEndpoints(t *testing.T) {
	t.Run("Process One Account", func(t *testing.T) {
		f := newFixture()
		f.runner.On("ProcessSession", mock.Anything, "ACC-001").Return(4, nil)

		rr := f.do(http.MethodPost, "/api/v1/transactions/process/ACC-001", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp ProcessResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 4, resp.Applied)
		assert.Equal(t, "ACC-001", resp.AccountNumber)
	})

	t.Run("Process All", func(t *testing.T) {
		f := newFixture()
		f.tick.On("RunOnce", mock.Anything).Return(9, nil)

		rr := f.do(http.MethodPost, "/api/v1/transactions/process-all", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp ProcessResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 9, resp.Applied)
	})

	t.Run("Processing Failure", func(t *testing.T) {
		f := newFixture()
		f.runner.On("ProcessSession", mock.Anything, "ACC-001").Return(0, errors.New("boom"))

		rr := f.do(http.MethodPost, "/api/v1/transactions/process/ACC-001", nil)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestStatusEndpoints(t *testing.T) {
	t.Run("Queue Status", func(t *testing.T) {
		f := newFixture()
		f.queue.On("Depth", mock.Anything).Return(12, nil)
		f.queue.On("ListActiveSessions", mock.Anything).Return([]string{"ACC-001", "ACC-002"}, nil)

		rr := f.do(http.MethodGet, "/api/v1/transactions/queue-status", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp QueueStatusResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 12, resp.PendingMessages)
		assert.Equal(t, 2, resp.ActiveAccountCount)
	})

	t.Run("Account Status Pending", func(t *testing.T) {
		f := newFixture()
		f.queue.On("ListActiveSessions", mock.Anything).Return([]string{"ACC-001"}, nil)

		rr := f.do(http.MethodGet, "/api/v1/accounts/ACC-001/status", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp AccountStatusResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.HasPendingTransactions)
	})

	t.Run("Account Status Idle", func(t *testing.T) {
		f := newFixture()
		f.queue.On("ListActiveSessions", mock.Anything).Return([]string{"ACC-999"}, nil)

		rr := f.do(http.MethodGet, "/api/v1/accounts/ACC-001/status", nil)

		var resp AccountStatusResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.False(t, resp.HasPendingTransactions)
	})

	t.Run("Get Account Not Found", func(t *testing.T) {
		f := newFixture()
		f.store.On("GetAccount", mock.Anything, "ACC-404").Return(nil, storage.ErrAccountNotFound)

		rr := f.do(http.MethodGet, "/api/v1/accounts/ACC-404", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("List Transactions", func(t *testing.T) {
		f := newFixture()
		f.store.On("ListTransactions", mock.Anything, "ACC-001", 50).Return([]models.TransactionRecord{
			{Id: "m1", AccountNumber: "ACC-001", Type: models.KindDeposit},
		}, nil)

		rr := f.do(http.MethodGet, "/api/v1/accounts/ACC-001/transactions", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var records []models.TransactionRecord
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
		require.Len(t, records, 1)
		assert.Equal(t, "m1", records[0].Id)
	})

	t.Run("List Transactions Invalid Limit", func(t *testing.T) {
		f := newFixture()
		rr := f.do(http.MethodGet, "/api/v1/accounts/ACC-001/transactions?limit=nope", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
