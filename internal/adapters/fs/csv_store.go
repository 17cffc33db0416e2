package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bft-labs/dropship/internal/domain"
)

// snapshotVersion is bumped when the snapshot layout changes incompatibly.
const snapshotVersion = 1

type snapshot struct {
	Version int `json:"version"`
	domain.BatchState
}

// CSVStore implements ports.StateStore with a directory of CSV artifacts.
//
// The authoritative copy of the state is snapshot.json, replaced atomically
// on every Save. The four CSV artifacts are refreshed right after as
// operator-readable views. Load prefers the snapshot and falls back to the
// CSV artifacts when no snapshot exists, so directories written by earlier
// tooling can be resumed.
type CSVStore struct {
	paths ArtifactPaths
}

// NewCSVStore creates a store for the artifact directory of sourcePath.
func NewCSVStore(sourcePath string) (*CSVStore, error) {
	paths, err := ResolveArtifactPaths(sourcePath)
	if err != nil {
		return nil, err
	}
	return &CSVStore{paths: paths}, nil
}

// Paths returns the artifact file locations.
func (s *CSVStore) Paths() ArtifactPaths {
	return s.paths
}

// Dir returns the artifact directory.
func (s *CSVStore) Dir() string {
	return s.paths.Dir
}

// Close is a no-op; the store holds no open files between calls.
func (s *CSVStore) Close() error {
	return nil
}

// Load retrieves the last saved state.
// Returns an empty state and nil error if no artifact exists.
func (s *CSVStore) Load(ctx context.Context) (domain.BatchState, error) {
	data, err := os.ReadFile(s.paths.Snapshot)
	switch {
	case err == nil:
		var snap snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return domain.BatchState{}, fmt.Errorf("decode %s: %w", SnapshotFile, err)
		}
		if snap.Version > snapshotVersion {
			return domain.BatchState{}, fmt.Errorf("%s: unsupported version %d", SnapshotFile, snap.Version)
		}
		if err := snap.BatchState.Validate(); err != nil {
			return domain.BatchState{}, fmt.Errorf("%s: %w", SnapshotFile, err)
		}
		return normalize(snap.BatchState), nil
	case !errors.Is(err, os.ErrNotExist):
		return domain.BatchState{}, fmt.Errorf("read %s: %w", SnapshotFile, err)
	}
	return s.loadViews()
}

func (s *CSVStore) loadViews() (domain.BatchState, error) {
	var (
		st  domain.BatchState
		err error
	)
	if st.RemainingWork, err = readOptional(s.paths.RemainingWork, ReadRecipientsFile); err != nil {
		return domain.BatchState{}, err
	}
	if st.UnregisteredUsers, err = readOptional(s.paths.Unregistered, ReadRecipientsFile); err != nil {
		return domain.BatchState{}, err
	}
	if st.Succeeded, err = readOptional(s.paths.Succeeded, ReadTransferLogFile); err != nil {
		return domain.BatchState{}, err
	}
	if st.Failed, err = readOptional(s.paths.Failed, ReadTransferLogFile); err != nil {
		return domain.BatchState{}, err
	}
	return st, nil
}

// Save persists the snapshot atomically, then refreshes the CSV views.
func (s *CSVStore) Save(ctx context.Context, state domain.BatchState) error {
	if err := os.MkdirAll(s.paths.Dir, 0o755); err != nil {
		return err
	}

	snap := snapshot{Version: snapshotVersion, BatchState: normalize(state)}
	err := writeFileAtomic(s.paths.Snapshot, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", SnapshotFile, err)
	}

	if err := WriteRecipientsFile(s.paths.RemainingWork, state.RemainingWork); err != nil {
		return fmt.Errorf("write %s: %w", RemainingWorkFile, err)
	}
	if err := WriteRecipientsFile(s.paths.Unregistered, state.UnregisteredUsers); err != nil {
		return fmt.Errorf("write %s: %w", UnregisteredFile, err)
	}
	if err := WriteTransferLogFile(s.paths.Succeeded, state.Succeeded); err != nil {
		return fmt.Errorf("write %s: %w", SucceededFile, err)
	}
	if err := WriteTransferLogFile(s.paths.Failed, state.Failed); err != nil {
		return fmt.Errorf("write %s: %w", FailedFile, err)
	}
	return nil
}

// Bootstrap seeds the store from the source list.
func (s *CSVStore) Bootstrap(ctx context.Context, sourcePath string) (domain.BatchState, error) {
	recipients, err := ReadRecipientsFile(sourcePath)
	if err != nil {
		return domain.BatchState{}, err
	}
	st := domain.NewBatchState(recipients)
	if err := s.Save(ctx, st); err != nil {
		return domain.BatchState{}, err
	}
	return st, nil
}

// normalize replaces nil lists with empty ones so snapshots encode [] not null.
func normalize(st domain.BatchState) domain.BatchState {
	if st.RemainingWork == nil {
		st.RemainingWork = []domain.Recipient{}
	}
	if st.UnregisteredUsers == nil {
		st.UnregisteredUsers = []domain.Recipient{}
	}
	if st.Succeeded == nil {
		st.Succeeded = []domain.TransferRecord{}
	}
	if st.Failed == nil {
		st.Failed = []domain.TransferRecord{}
	}
	return st
}
