package domain

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountDecimals is the precision of the token's smallest unit.
const MaxAmountDecimals = 18

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Recipient is an address/amount pair awaiting disbursement.
// Amount keeps the decimal text exactly as it was read so that files
// round-trip unchanged.
type Recipient struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// NewRecipient validates and trims address and amount.
func NewRecipient(address, amount string) (Recipient, error) {
	address = strings.TrimSpace(address)
	amount = strings.TrimSpace(amount)
	if err := ValidateAddress(address); err != nil {
		return Recipient{}, err
	}
	if _, err := ParseAmount(amount); err != nil {
		return Recipient{}, err
	}
	return Recipient{Address: address, Amount: amount}, nil
}

// Value returns the amount as a decimal. Recipients built with NewRecipient
// always carry a parseable amount; anything else yields zero.
func (r Recipient) Value() decimal.Decimal {
	d, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ValidateAddress reports whether s is a 0x-prefixed 40-hex-digit address.
func ValidateAddress(s string) error {
	if !addressPattern.MatchString(s) {
		return ErrInvalidAddress
	}
	return nil
}

// ParseAmount parses a strictly positive decimal with at most
// MaxAmountDecimals fractional digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Exponent() < -MaxAmountDecimals && !d.Equal(d.Truncate(MaxAmountDecimals)) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Total sums the amounts of recipients.
func Total(recipients []Recipient) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range recipients {
		sum = sum.Add(r.Value())
	}
	return sum
}
