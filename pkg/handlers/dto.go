package handlers

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositRequest is the body of POST /transactions/deposit.
type DepositRequest struct {
	AccountNumber string          `json:"accountNumber"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
}

// WithdrawRequest is the body of POST /transactions/withdraw.
type WithdrawRequest struct {
	AccountNumber string          `json:"accountNumber"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	Destination   string          `json:"destination,omitempty"`
}

// EnqueuedResponse acknowledges an accepted mutation request. Processing is
// asynchronous; the message id is the handle for tracing it.
type EnqueuedResponse struct {
	MessageId string    `json:"messageId"`
	Status    string    `json:"status"`
	QueuedAt  time.Time `json:"queuedAt"`
}

// ProcessResponse reports a manually triggered processing run.
type ProcessResponse struct {
	AccountNumber string `json:"accountNumber,omitempty"`
	Applied       int    `json:"applied"`
}

// QueueStatusResponse reports queue depth and the active-session snapshot.
type QueueStatusResponse struct {
	PendingMessages    int      `json:"pendingMessages"`
	ActiveAccounts     []string `json:"activeAccounts"`
	ActiveAccountCount int      `json:"activeAccountCount"`
}

// AccountStatusResponse reports whether an account has queued work.
type AccountStatusResponse struct {
	AccountNumber          string `json:"accountNumber"`
	HasPendingTransactions bool   `json:"hasPendingTransactions"`
}
