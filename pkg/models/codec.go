package models

import (
	"encoding/json"
	"fmt"
)

// EncodeMessage serializes an AccountMessage to its wire form. Kind-specific
// defaults are filled in so consumers never see an empty destination or fee
// type.
func EncodeMessage(m *AccountMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to encode invalid message: %w", err)
	}
	if m.Kind == KindWithdrawal && m.Destination == "" {
		m.Destination = DefaultWithdrawalDestination
	}
	if m.Kind == KindFee && m.FeeType == "" {
		m.FeeType = DefaultFeeType
	}

	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message %s: %w", m.Kind, m.MessageId, err)
	}
	return body, nil
}

// DecodeMessage parses a wire envelope and validates it. Any failure here is
// terminal for the message: the processor dead-letters rather than retries,
// because a malformed body will never become well-formed on redelivery.
func DecodeMessage(body []byte) (*AccountMessage, error) {
	var m AccountMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message envelope: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
