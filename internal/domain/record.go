package domain

import "time"

// TimestampLayout is the ISO-8601 layout used for transfer log timestamps
// (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// TransferRecord is the terminal outcome for one recipient.
// Exactly one of TransactionID and ErrorReason is set.
type TransferRecord struct {
	Address       string    `json:"address"`
	Amount        string    `json:"amount"`
	TransactionID string    `json:"transaction_id,omitempty"`
	ErrorReason   string    `json:"error_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Succeeded builds a record for a confirmed transfer.
func Succeeded(r Recipient, txID string, at time.Time) TransferRecord {
	return TransferRecord{
		Address:       r.Address,
		Amount:        r.Amount,
		TransactionID: txID,
		Timestamp:     at.UTC().Truncate(time.Millisecond),
	}
}

// Failed builds a record for a recipient that could not be paid.
func Failed(r Recipient, reason string, at time.Time) TransferRecord {
	return TransferRecord{
		Address:     r.Address,
		Amount:      r.Amount,
		ErrorReason: reason,
		Timestamp:   at.UTC().Truncate(time.Millisecond),
	}
}

// Validate checks that exactly one of TransactionID and ErrorReason is set.
func (t TransferRecord) Validate() error {
	if (t.TransactionID == "") == (t.ErrorReason == "") {
		return ErrInvalidRecord
	}
	return nil
}

// FormatTimestamp renders Timestamp with TimestampLayout, or "" when unset.
func (t TransferRecord) FormatTimestamp() string {
	if t.Timestamp.IsZero() {
		return ""
	}
	return t.Timestamp.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts any RFC 3339 timestamp; the empty string is the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, ErrInvalidTimestamp
	}
	return ts.UTC(), nil
}
