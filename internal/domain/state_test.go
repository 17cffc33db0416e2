package domain

import (
	"errors"
	"testing"
	"time"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
	addrC = "0x3333333333333333333333333333333333333333"
)

func TestNewRecipient(t *testing.T) {
	tests := []struct {
		name    string
		address string
		amount  string
		wantErr error
	}{
		{"valid", addrA, "1.5", nil},
		{"trims fields", "  " + addrA + " ", " 2.0 ", nil},
		{"missing prefix", "1111111111111111111111111111111111111111", "1", ErrInvalidAddress},
		{"short address", "0x1234", "1", ErrInvalidAddress},
		{"non hex address", "0xZZ11111111111111111111111111111111111111", "1", ErrInvalidAddress},
		{"zero amount", addrA, "0", ErrInvalidAmount},
		{"negative amount", addrA, "-1", ErrInvalidAmount},
		{"garbage amount", addrA, "1.5abc", ErrInvalidAmount},
		{"too precise", addrA, "0.0000000000000000001", ErrInvalidAmount},
		{"max precision", addrA, "0.000000000000000001", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecipient(tt.address, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewRecipient() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTotal(t *testing.T) {
	got := Total([]Recipient{{addrA, "1.5"}, {addrB, "2.25"}, {addrC, "0.25"}})
	if got.String() != "4" {
		t.Errorf("Total() = %s, want 4", got)
	}
}

func TestTransferRecord_Validate(t *testing.T) {
	r := Recipient{Address: addrA, Amount: "1"}
	now := time.Now()

	if err := Succeeded(r, "0xabc", now).Validate(); err != nil {
		t.Errorf("success record invalid: %v", err)
	}
	if err := Failed(r, "boom", now).Validate(); err != nil {
		t.Errorf("failure record invalid: %v", err)
	}
	both := TransferRecord{Address: addrA, Amount: "1", TransactionID: "0xabc", ErrorReason: "boom"}
	if !errors.Is(both.Validate(), ErrInvalidRecord) {
		t.Error("record with both fields should be invalid")
	}
	if !errors.Is((TransferRecord{Address: addrA}).Validate(), ErrInvalidRecord) {
		t.Error("record with neither field should be invalid")
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.UTC)
	rec := Succeeded(Recipient{Address: addrA, Amount: "1"}, "0xabc", at)

	s := rec.FormatTimestamp()
	if s != "2024-03-01T12:30:45.123Z" {
		t.Fatalf("FormatTimestamp() = %s", s)
	}
	back, err := ParseTimestamp(s)
	if err != nil {
		t.Fatalf("ParseTimestamp() error = %v", err)
	}
	if !back.Equal(at) {
		t.Errorf("ParseTimestamp() = %v, want %v", back, at)
	}
}

func TestBatchState_IsEmpty(t *testing.T) {
	if !(BatchState{}).IsEmpty() {
		t.Error("zero state should be empty")
	}
	st := BatchState{UnregisteredUsers: []Recipient{{addrA, "1"}}}
	if st.IsEmpty() {
		t.Error("state with unregistered users should not be empty")
	}
}

func TestBatchState_Validate(t *testing.T) {
	good := Recipient{Address: addrA, Amount: "1"}
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		state   BatchState
		wantErr error
	}{
		{"valid", BatchState{
			RemainingWork: []Recipient{good},
			Succeeded:     []TransferRecord{Succeeded(Recipient{Address: addrB, Amount: "2"}, "0xabc", at)},
			InFlight:      &Attempt{ID: "a", Recipient: good},
		}, nil},
		{"empty", BatchState{}, nil},
		{"zero amount", BatchState{RemainingWork: []Recipient{{Address: addrA, Amount: "0"}}}, ErrInvalidAmount},
		{"bad unregistered address", BatchState{UnregisteredUsers: []Recipient{{Address: "bob", Amount: "1"}}}, ErrInvalidAddress},
		{"record with both outcomes", BatchState{Failed: []TransferRecord{{Address: addrC, Amount: "1", TransactionID: "0x1", ErrorReason: "x"}}}, ErrInvalidRecord},
		{"bad in-flight amount", BatchState{InFlight: &Attempt{Recipient: Recipient{Address: addrA, Amount: ""}}}, ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckPartition(t *testing.T) {
	source := []Recipient{{addrA, "1"}, {addrB, "2"}, {addrC, "3"}}
	now := time.Now()

	tests := []struct {
		name    string
		state   BatchState
		wantErr bool
	}{
		{
			name:  "fresh bootstrap",
			state: NewBatchState(source),
		},
		{
			name: "split across lists",
			state: BatchState{
				RemainingWork:     []Recipient{source[2]},
				UnregisteredUsers: []Recipient{source[1]},
				Succeeded:         []TransferRecord{Succeeded(source[0], "0x1", now)},
			},
		},
		{
			name: "lost recipient",
			state: BatchState{
				RemainingWork: []Recipient{source[2]},
				Failed:        []TransferRecord{Failed(source[0], "x", now)},
			},
			wantErr: true,
		},
		{
			name: "duplicated recipient",
			state: BatchState{
				RemainingWork: source,
				Failed:        []TransferRecord{Failed(source[0], "x", now)},
			},
			wantErr: true,
		},
		{
			name: "in flight outside remaining",
			state: BatchState{
				RemainingWork: []Recipient{source[1], source[2]},
				Succeeded:     []TransferRecord{Succeeded(source[0], "0x1", now)},
				InFlight:      &Attempt{ID: "a", Recipient: source[0]},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPartition(source, tt.state)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckPartition() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrPartitionViolation) {
				t.Errorf("error %v does not wrap ErrPartitionViolation", err)
			}
		})
	}
}

func TestRowError_Is(t *testing.T) {
	err := error(&RowError{Kind: KindInvalidAmount, Line: 3, Value: "x"})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Error("RowError should match ErrInvalidAmount")
	}
	if errors.Is(err, ErrMalformedRow) {
		t.Error("RowError should not match ErrMalformedRow")
	}
	var rowErr *RowError
	if !errors.As(err, &rowErr) || rowErr.Line != 3 {
		t.Errorf("errors.As failed: %v", err)
	}
}
