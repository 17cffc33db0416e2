package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	fsadapter "github.com/bft-labs/dropship/internal/adapters/fs"
	"github.com/bft-labs/dropship/internal/adapters/sqlite/migrations"
	"github.com/bft-labs/dropship/internal/domain"
	_ "modernc.org/sqlite"
)

// DBFile is the database name inside the artifact directory.
const DBFile = "state.db"

const (
	listRemaining    = "remaining"
	listUnregistered = "unregistered"
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
)

// Store implements ports.StateStore with a SQLite database kept in the
// artifact directory. Every Save replaces the whole state in one
// transaction.
type Store struct {
	dir   string
	sqlDB *sql.DB
}

// Open opens the store for sourcePath's artifact directory and applies
// migrations.
func Open(ctx context.Context, sourcePath string) (*Store, error) {
	if strings.TrimSpace(sourcePath) == "" {
		return nil, fmt.Errorf("source path is required")
	}
	paths, err := fsadapter.ResolveArtifactPaths(sourcePath)
	if err != nil {
		return nil, err
	}
	return OpenPath(ctx, paths.Dir, filepath.Join(paths.Dir, DBFile))
}

// OpenPath opens a database at dbPath and reports dir as the artifact
// directory.
func OpenPath(ctx context.Context, dir, dbPath string) (*Store, error) {
	dsn := filepath.Clean(dbPath) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{dir: dir, sqlDB: sqlDB}, nil
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load retrieves the last saved state. A fresh database loads as empty.
func (s *Store) Load(ctx context.Context) (domain.BatchState, error) {
	if err := ctx.Err(); err != nil {
		return domain.BatchState{}, err
	}

	var (
		st  domain.BatchState
		err error
	)
	if st.RemainingWork, err = s.loadRecipients(ctx, listRemaining); err != nil {
		return domain.BatchState{}, err
	}
	if st.UnregisteredUsers, err = s.loadRecipients(ctx, listUnregistered); err != nil {
		return domain.BatchState{}, err
	}
	if st.Succeeded, err = s.loadRecords(ctx, outcomeSucceeded); err != nil {
		return domain.BatchState{}, err
	}
	if st.Failed, err = s.loadRecords(ctx, outcomeFailed); err != nil {
		return domain.BatchState{}, err
	}
	if st.InFlight, err = s.loadInFlight(ctx); err != nil {
		return domain.BatchState{}, err
	}
	if err := st.Validate(); err != nil {
		return domain.BatchState{}, fmt.Errorf("stored state: %w", err)
	}
	return st, nil
}

func (s *Store) loadRecipients(ctx context.Context, list string) ([]domain.Recipient, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT address, amount
FROM recipients
WHERE list = ?
ORDER BY position
`, list)
	if err != nil {
		return nil, fmt.Errorf("load %s recipients: %w", list, err)
	}
	defer rows.Close()

	out := []domain.Recipient{}
	for rows.Next() {
		var r domain.Recipient
		if err := rows.Scan(&r.Address, &r.Amount); err != nil {
			return nil, fmt.Errorf("scan %s recipient: %w", list, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s recipients: %w", list, err)
	}
	return out, nil
}

func (s *Store) loadRecords(ctx context.Context, outcome string) ([]domain.TransferRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT address, amount, transaction_id, error_reason, recorded_at
FROM transfer_records
WHERE outcome = ?
ORDER BY position
`, outcome)
	if err != nil {
		return nil, fmt.Errorf("load %s records: %w", outcome, err)
	}
	defer rows.Close()

	out := []domain.TransferRecord{}
	for rows.Next() {
		var (
			rec domain.TransferRecord
			at  sql.NullInt64
		)
		if err := rows.Scan(&rec.Address, &rec.Amount, &rec.TransactionID, &rec.ErrorReason, &at); err != nil {
			return nil, fmt.Errorf("scan %s record: %w", outcome, err)
		}
		rec.Timestamp = fromMillis(at)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s records: %w", outcome, err)
	}
	return out, nil
}

func (s *Store) loadInFlight(ctx context.Context) (*domain.Attempt, error) {
	var (
		a  domain.Attempt
		at sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT attempt_id, address, amount, transaction_id, started_at
FROM in_flight
WHERE id = 1
`).Scan(&a.ID, &a.Recipient.Address, &a.Recipient.Amount, &a.TransactionID, &at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load in-flight attempt: %w", err)
	}
	a.StartedAt = fromMillis(at)
	return &a, nil
}

// Save replaces the stored state in a single transaction.
func (s *Store) Save(ctx context.Context, state domain.BatchState) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		"DELETE FROM recipients",
		"DELETE FROM transfer_records",
		"DELETE FROM in_flight",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear state: %w", err)
		}
	}

	if err := insertRecipients(ctx, tx, listRemaining, state.RemainingWork); err != nil {
		return err
	}
	if err := insertRecipients(ctx, tx, listUnregistered, state.UnregisteredUsers); err != nil {
		return err
	}
	if err := insertRecords(ctx, tx, outcomeSucceeded, state.Succeeded); err != nil {
		return err
	}
	if err := insertRecords(ctx, tx, outcomeFailed, state.Failed); err != nil {
		return err
	}
	if a := state.InFlight; a != nil {
		_, err := tx.ExecContext(ctx, `
INSERT INTO in_flight (id, attempt_id, address, amount, transaction_id, started_at)
VALUES (1, ?, ?, ?, ?, ?)
`, a.ID, a.Recipient.Address, a.Recipient.Amount, a.TransactionID, toMillis(a.StartedAt))
		if err != nil {
			return fmt.Errorf("save in-flight attempt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func insertRecipients(ctx context.Context, tx *sql.Tx, list string, recipients []domain.Recipient) error {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO recipients (list, position, address, amount) VALUES (?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare %s recipients: %w", list, err)
	}
	defer stmt.Close()

	for i, r := range recipients {
		if _, err := stmt.ExecContext(ctx, list, i, r.Address, r.Amount); err != nil {
			return fmt.Errorf("save %s recipient %s: %w", list, r.Address, err)
		}
	}
	return nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, outcome string, records []domain.TransferRecord) error {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO transfer_records (outcome, position, address, amount, transaction_id, error_reason, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare %s records: %w", outcome, err)
	}
	defer stmt.Close()

	for i, rec := range records {
		_, err := stmt.ExecContext(ctx, outcome, i, rec.Address, rec.Amount,
			rec.TransactionID, rec.ErrorReason, toMillis(rec.Timestamp))
		if err != nil {
			return fmt.Errorf("save %s record %s: %w", outcome, rec.Address, err)
		}
	}
	return nil
}

// Bootstrap seeds the store from the source list.
func (s *Store) Bootstrap(ctx context.Context, sourcePath string) (domain.BatchState, error) {
	recipients, err := fsadapter.ReadRecipientsFile(sourcePath)
	if err != nil {
		return domain.BatchState{}, err
	}
	st := domain.NewBatchState(recipients)
	if err := s.Save(ctx, st); err != nil {
		return domain.BatchState{}, err
	}
	return st, nil
}

func toMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}
