package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDeposit() *AccountMessage {
	return &AccountMessage{
		Kind:          KindDeposit,
		MessageId:     "msg-1",
		AccountNumber: "ACC-001",
		Amount:        decimal.RequireFromString("50.00"),
		Description:   "payday",
		Timestamp:     time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestValidate(t *testing.T) {
	t.Run("Valid Message", func(t *testing.T) {
		assert.NoError(t, validDeposit().Validate())
	})

	t.Run("Unknown Kind", func(t *testing.T) {
		m := validDeposit()
		m.Kind = MessageKind("transfer")
		assert.ErrorIs(t, m.Validate(), ErrUnknownKind)
	})

	t.Run("Missing Account", func(t *testing.T) {
		m := validDeposit()
		m.AccountNumber = ""
		assert.ErrorIs(t, m.Validate(), ErrMissingAccount)
	})

	t.Run("Zero Amount", func(t *testing.T) {
		m := validDeposit()
		m.Amount = decimal.Zero
		assert.ErrorIs(t, m.Validate(), ErrNonPositiveAmount)
	})

	t.Run("Negative Amount", func(t *testing.T) {
		m := validDeposit()
		m.Amount = decimal.RequireFromString("-10")
		assert.ErrorIs(t, m.Validate(), ErrNonPositiveAmount)
	})
}

func TestSignedAmount(t *testing.T) {
	amount := decimal.RequireFromString("25.50")

	tests := []struct {
		kind MessageKind
		want string
	}{
		{KindDeposit, "25.5"},
		{KindInterest, "25.5"},
		{KindWithdrawal, "-25.5"},
		{KindFee, "-25.5"},
	}

	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			m := &AccountMessage{Kind: tc.kind, Amount: amount}
			assert.Equal(t, tc.want, m.SignedAmount().String())
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Run("Round Trip", func(t *testing.T) {
		original := validDeposit()
		body, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded, err := DecodeMessage(body)
		require.NoError(t, err)

		assert.Equal(t, original.Kind, decoded.Kind)
		assert.Equal(t, original.MessageId, decoded.MessageId)
		assert.Equal(t, original.AccountNumber, decoded.AccountNumber)
		assert.True(t, original.Amount.Equal(decoded.Amount))
	})

	t.Run("Withdrawal Destination Defaults To Cash", func(t *testing.T) {
		m := validDeposit()
		m.Kind = KindWithdrawal
		body, err := EncodeMessage(m)
		require.NoError(t, err)

		decoded, err := DecodeMessage(body)
		require.NoError(t, err)
		assert.Equal(t, DefaultWithdrawalDestination, decoded.Destination)
	})

	t.Run("Fee Type Defaults To Service", func(t *testing.T) {
		m := validDeposit()
		m.Kind = KindFee
		m.FeeReason = "overdraft"
		body, err := EncodeMessage(m)
		require.NoError(t, err)

		decoded, err := DecodeMessage(body)
		require.NoError(t, err)
		assert.Equal(t, DefaultFeeType, decoded.FeeType)
	})

	t.Run("Encode Rejects Invalid", func(t *testing.T) {
		m := validDeposit()
		m.Amount = decimal.Zero
		_, err := EncodeMessage(m)
		assert.ErrorIs(t, err, ErrNonPositiveAmount)
	})

	t.Run("Decode Rejects Garbage", func(t *testing.T) {
		_, err := DecodeMessage([]byte("not-json"))
		assert.Error(t, err)
	})

	t.Run("Decode Rejects Unknown Kind", func(t *testing.T) {
		_, err := DecodeMessage([]byte(`{"kind":"transfer","messageId":"m","accountNumber":"a","amount":"1"}`))
		assert.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("Decode Rejects Negative Amount", func(t *testing.T) {
		_, err := DecodeMessage([]byte(`{"kind":"deposit","messageId":"m","accountNumber":"a","amount":"-5"}`))
		assert.ErrorIs(t, err, ErrNonPositiveAmount)
	})
}
