package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Attempt marks a transfer that was started but whose outcome has not been
// recorded. It is persisted before the transfer is submitted and cleared in
// the same save that records the outcome. The recipient stays in
// RemainingWork while the attempt is open.
type Attempt struct {
	ID            string    `json:"id"`
	Recipient     Recipient `json:"recipient"`
	TransactionID string    `json:"transaction_id,omitempty"`
	StartedAt     time.Time `json:"started_at"`
}

// BatchState is the persisted state of one disbursement run.
type BatchState struct {
	RemainingWork     []Recipient      `json:"remaining_work"`
	UnregisteredUsers []Recipient      `json:"unregistered_users"`
	Succeeded         []TransferRecord `json:"succeeded"`
	Failed            []TransferRecord `json:"failed"`
	InFlight          *Attempt         `json:"in_flight,omitempty"`
}

// NewBatchState places every recipient in RemainingWork.
func NewBatchState(source []Recipient) BatchState {
	remaining := make([]Recipient, len(source))
	copy(remaining, source)
	return BatchState{
		RemainingWork:     remaining,
		UnregisteredUsers: []Recipient{},
		Succeeded:         []TransferRecord{},
		Failed:            []TransferRecord{},
	}
}

// IsEmpty reports whether no list holds data. An empty state is bootstrapped
// from the source list; any other state is resumed.
func (s BatchState) IsEmpty() bool {
	return len(s.RemainingWork) == 0 &&
		len(s.UnregisteredUsers) == 0 &&
		len(s.Succeeded) == 0 &&
		len(s.Failed) == 0 &&
		s.InFlight == nil
}

// Done reports whether there is nothing left to attempt.
func (s BatchState) Done() bool {
	return len(s.RemainingWork) == 0 && s.InFlight == nil
}

// Validate checks every recipient address and amount and every record's
// address and outcome columns. Stores call it on state read back from disk.
func (s BatchState) Validate() error {
	if err := validateRecipients("remaining work", s.RemainingWork); err != nil {
		return err
	}
	if err := validateRecipients("unregistered users", s.UnregisteredUsers); err != nil {
		return err
	}
	if err := validateRecords("succeeded", s.Succeeded); err != nil {
		return err
	}
	if err := validateRecords("failed", s.Failed); err != nil {
		return err
	}
	if a := s.InFlight; a != nil {
		if err := validateRecipients("in-flight attempt", []Recipient{a.Recipient}); err != nil {
			return err
		}
	}
	return nil
}

func validateRecipients(list string, rs []Recipient) error {
	for i, r := range rs {
		if err := ValidateAddress(r.Address); err != nil {
			return fmt.Errorf("%s[%d]: %w: %q", list, i, err, r.Address)
		}
		if _, err := ParseAmount(r.Amount); err != nil {
			return fmt.Errorf("%s[%d] %s: %w: %q", list, i, r.Address, err, r.Amount)
		}
	}
	return nil
}

func validateRecords(list string, records []TransferRecord) error {
	for i, t := range records {
		if err := ValidateAddress(t.Address); err != nil {
			return fmt.Errorf("%s[%d]: %w: %q", list, i, err, t.Address)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%s[%d] %s: %w", list, i, t.Address, err)
		}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate lists without aliasing.
func (s BatchState) Clone() BatchState {
	c := BatchState{
		RemainingWork:     append([]Recipient{}, s.RemainingWork...),
		UnregisteredUsers: append([]Recipient{}, s.UnregisteredUsers...),
		Succeeded:         append([]TransferRecord{}, s.Succeeded...),
		Failed:            append([]TransferRecord{}, s.Failed...),
	}
	if s.InFlight != nil {
		a := *s.InFlight
		c.InFlight = &a
	}
	return c
}

// Summary holds per-list counts for progress reporting.
type Summary struct {
	Succeeded    int
	Failed       int
	Unregistered int
	Remaining    int
}

// Summary returns the current counts.
func (s BatchState) Summary() Summary {
	return Summary{
		Succeeded:    len(s.Succeeded),
		Failed:       len(s.Failed),
		Unregistered: len(s.UnregisteredUsers),
		Remaining:    len(s.RemainingWork),
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("%d succeeded, %d failed, %d unregistered, %d remaining",
		s.Succeeded, s.Failed, s.Unregistered, s.Remaining)
}

// Addresses returns the multiset of addresses across all four lists.
// An open attempt is not counted separately since its recipient is still
// in RemainingWork.
func (s BatchState) Addresses() map[string]int {
	out := make(map[string]int)
	for _, r := range s.RemainingWork {
		out[strings.ToLower(r.Address)]++
	}
	for _, r := range s.UnregisteredUsers {
		out[strings.ToLower(r.Address)]++
	}
	for _, t := range s.Succeeded {
		out[strings.ToLower(t.Address)]++
	}
	for _, t := range s.Failed {
		out[strings.ToLower(t.Address)]++
	}
	return out
}

// CheckPartition verifies that state accounts for every source recipient
// exactly once. Addresses compare case-insensitively.
func CheckPartition(source []Recipient, state BatchState) error {
	want := make(map[string]int)
	for _, r := range source {
		want[strings.ToLower(r.Address)]++
	}
	got := state.Addresses()

	var problems []string
	for addr, n := range want {
		if got[addr] != n {
			problems = append(problems, fmt.Sprintf("%s: want %d, have %d", addr, n, got[addr]))
		}
	}
	for addr, n := range got {
		if _, ok := want[addr]; !ok {
			problems = append(problems, fmt.Sprintf("%s: want 0, have %d", addr, n))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrPartitionViolation, strings.Join(problems, "; "))
	}
	if a := state.InFlight; a != nil && !containsAddress(state.RemainingWork, a.Recipient.Address) {
		return fmt.Errorf("%w: in-flight %s is not in remaining work", ErrPartitionViolation, a.Recipient.Address)
	}
	return nil
}

func containsAddress(rs []Recipient, address string) bool {
	for _, r := range rs {
		if strings.EqualFold(r.Address, address) {
			return true
		}
	}
	return false
}
