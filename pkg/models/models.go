package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MessageKind discriminates the closed set of account message shapes.
type MessageKind string

const (
	KindDeposit    MessageKind = "deposit"
	KindWithdrawal MessageKind = "withdrawal"
	KindInterest   MessageKind = "interest"
	KindFee        MessageKind = "fee"
)

// InterestPeriod identifies the accrual period an interest message covers.
type InterestPeriod string

const (
	PeriodDaily   InterestPeriod = "DAILY"
	PeriodMonthly InterestPeriod = "MONTHLY"
	PeriodAnnual  InterestPeriod = "ANNUAL"
)

// AccountType defines the possible account categories.
type AccountType string

const (
	CHECKING AccountType = "CHECKING"
	// SAVINGS accounts are interest-bearing and are picked up by the
	// accrual producer.
	SAVINGS AccountType = "SAVINGS"
)

// DefaultWithdrawalDestination is used when a withdrawal does not name one.
const DefaultWithdrawalDestination = "CASH"

// DefaultFeeType is used when a fee message does not name one.
const DefaultFeeType = "SERVICE"

// Validation errors returned by AccountMessage.Validate.
var (
	ErrUnknownKind       = errors.New("unknown message kind")
	ErrMissingAccount    = errors.New("account number is required")
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")
)

// AccountMessage is the envelope for a single account mutation. The Kind
// field discriminates the variant; the kind-specific fields are meaningful
// only for that kind. MessageId doubles as the idempotency key in both the
// queue and the ledger, and AccountNumber doubles as the session id.
type AccountMessage struct {
	Kind          MessageKind     `json:"kind"`
	MessageId     string          `json:"messageId"`
	AccountNumber string          `json:"accountNumber"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`

	// Withdrawal only.
	Destination string `json:"destination,omitempty"`

	// Interest only.
	InterestRate   decimal.Decimal `json:"interestRate,omitempty"`
	InterestPeriod InterestPeriod  `json:"interestPeriod,omitempty"`

	// Fee only.
	FeeType   string `json:"feeType,omitempty"`
	FeeReason string `json:"feeReason,omitempty"`
}

// Validate checks the envelope invariants shared by every kind: a known
// kind, a session key and a strictly positive amount.
func (m *AccountMessage) Validate() error {
	switch m.Kind {
	case KindDeposit, KindWithdrawal, KindInterest, KindFee:
	default:
		return ErrUnknownKind
	}
	if m.AccountNumber == "" {
		return ErrMissingAccount
	}
	if !m.Amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return nil
}

// SignedAmount returns the balance delta this message represents: positive
// for credits (deposit, interest), negative for debits (withdrawal, fee).
func (m *AccountMessage) SignedAmount() decimal.Decimal {
	switch m.Kind {
	case KindWithdrawal, KindFee:
		return m.Amount.Neg()
	default:
		return m.Amount
	}
}

// SessionId returns the queue session this message belongs to. Messages for
// one account always share a session so they are delivered in order.
func (m *AccountMessage) SessionId() string {
	return m.AccountNumber
}

// Account is the balance-bearing row owned by the ledger store. It is only
// ever mutated inside an applier transaction.
type Account struct {
	AccountNumber string          `json:"accountNumber"`
	Balance       decimal.Decimal `json:"balance"`
	AccountType   AccountType     `json:"accountType"`
	LastUpdated   time.Time       `json:"lastUpdated"`
}

// IsInterestBearing reports whether the account accrues interest.
func (a *Account) IsInterestBearing() bool {
	return a.AccountType == SAVINGS
}

// TransactionRecord is one append-only ledger entry. Id carries the
// originating message id and is unique in the store, which is what makes
// re-applying a redelivered message a no-op.
type TransactionRecord struct {
	Id            string          `json:"id"`
	AccountNumber string          `json:"accountNumber"`
	Amount        decimal.Decimal `json:"amount"`
	Type          MessageKind     `json:"type"`
	Description   string          `json:"description,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
}
