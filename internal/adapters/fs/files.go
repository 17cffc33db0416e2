package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bft-labs/dropship/internal/codec"
	"github.com/bft-labs/dropship/internal/domain"
)

// WriteRecipientsFile replaces path with a full recipient list.
func WriteRecipientsFile(path string, recipients []domain.Recipient) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		return codec.EncodeRecipients(w, recipients)
	})
}

// WriteTransferLogFile replaces path with a full transfer log.
func WriteTransferLogFile(path string, records []domain.TransferRecord) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		return codec.EncodeTransferLog(w, records)
	})
}

// ReadRecipientsFile parses the recipient list at path.
func ReadRecipientsFile(path string) ([]domain.Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	recipients, err := codec.ParseRecipients(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return recipients, nil
}

// ReadTransferLogFile parses the transfer log at path.
func ReadTransferLogFile(path string) ([]domain.TransferRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := codec.ParseTransferLog(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// readOptional runs read and maps a missing file to the zero value.
func readOptional[T any](path string, read func(string) ([]T, error)) ([]T, error) {
	out, err := read(path)
	if errors.Is(err, os.ErrNotExist) {
		return []T{}, nil
	}
	return out, err
}

// writeFileAtomic writes through a temp file in the same directory, syncs
// it and renames it over path, so readers see either the old or the new
// content.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
