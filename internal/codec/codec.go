// Package codec reads and writes the tabular files of a disbursement run:
// recipient lists (address,amount) and transfer outcome logs
// (address,amount,transactionId,errorReason,timestamp).
//
// Fields are comma separated. Fields containing commas, quotes or line
// breaks are quoted, so error reasons survive a write/read cycle.
package codec

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bft-labs/dropship/internal/domain"
)

const (
	// RecipientHeader is the header row written for recipient lists.
	RecipientHeader = "address,amount"

	// TransferLogHeader is the header row written for transfer logs.
	TransferLogHeader = "address,amount,transactionId,errorReason,timestamp"

	transferLogColumns = 5
	headerMarker       = "address"
)

// ParseRecipients reads a recipient list. The first row is treated as a
// header only when it mentions the address column; otherwise it is data.
// Blank and whitespace-only lines are skipped. Line numbers in errors are
// 1-based.
func ParseRecipients(r io.Reader) ([]domain.Recipient, error) {
	cr := newReader(r)
	out := []domain.Recipient{}
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, parseError(err)
		}
		if blank(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)
		raw := strings.Join(rec, ",")

		if first {
			first = false
			if strings.Contains(strings.ToLower(raw), headerMarker) {
				continue
			}
		}

		if len(rec) < 2 {
			return nil, &domain.RowError{Kind: domain.KindMalformedRow, Line: line, Value: raw}
		}
		address := strings.TrimSpace(rec[0])
		amount := strings.TrimSpace(rec[1])
		if address == "" || amount == "" {
			return nil, &domain.RowError{Kind: domain.KindMalformedRow, Line: line, Value: raw}
		}
		r, err := domain.NewRecipient(address, amount)
		switch {
		case errors.Is(err, domain.ErrInvalidAddress):
			return nil, &domain.RowError{Kind: domain.KindInvalidAddress, Line: line, Value: address}
		case err != nil:
			return nil, &domain.RowError{Kind: domain.KindInvalidAmount, Line: line, Value: amount}
		}
		out = append(out, r)
	}
}

// EncodeRecipients writes the header and one row per recipient.
func EncodeRecipients(w io.Writer, recipients []domain.Recipient) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(RecipientHeader, ",")); err != nil {
		return err
	}
	for _, r := range recipients {
		if err := cw.Write([]string{r.Address, r.Amount}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseTransferLog reads a transfer log. An empty or header-only input
// yields an empty slice. Whitespace-only lines are skipped. Every data row
// must have exactly five columns.
func ParseTransferLog(r io.Reader) ([]domain.TransferRecord, error) {
	cr := newReader(r)
	out := []domain.TransferRecord{}
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, parseError(err)
		}
		if blank(rec) {
			continue
		}
		if first {
			first = false
			continue
		}
		line, _ := cr.FieldPos(0)
		if len(rec) != transferLogColumns {
			return nil, &domain.RowError{Kind: domain.KindMalformedRow, Line: line, Value: strings.Join(rec, ",")}
		}

		ts, err := domain.ParseTimestamp(strings.TrimSpace(rec[4]))
		if err != nil {
			return nil, &domain.RowError{Kind: domain.KindInvalidTimestamp, Line: line, Value: rec[4]}
		}
		tr := domain.TransferRecord{
			Address:       strings.TrimSpace(rec[0]),
			Amount:        strings.TrimSpace(rec[1]),
			TransactionID: strings.TrimSpace(rec[2]),
			ErrorReason:   rec[3],
			Timestamp:     ts,
		}
		if err := tr.Validate(); err != nil {
			return nil, &domain.RowError{Kind: domain.KindMalformedRow, Line: line, Value: strings.Join(rec, ",")}
		}
		out = append(out, tr)
	}
}

// EncodeTransferLog writes the header and one row per record.
func EncodeTransferLog(w io.Writer, records []domain.TransferRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(TransferLogHeader, ",")); err != nil {
		return err
	}
	for _, t := range records {
		row := []string{t.Address, t.Amount, t.TransactionID, t.ErrorReason, t.FormatTimestamp()}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	return cr
}

// blank reports whether rec came from a line holding only whitespace.
func blank(rec []string) bool {
	return len(rec) == 1 && strings.TrimSpace(rec[0]) == ""
}

// parseError converts a csv.ParseError into a RowError carrying its line.
func parseError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &domain.RowError{Kind: domain.KindMalformedRow, Line: pe.StartLine, Value: pe.Err.Error()}
	}
	return fmt.Errorf("read rows: %w", err)
}
