package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDirSuffix is appended to the source file's base name to form the
	// artifact directory, e.g. recipients.csv -> recipients_airdrop_state/.
	StateDirSuffix = "_airdrop_state"

	RemainingWorkFile = "remaining_work.csv"
	UnregisteredFile  = "users_not_registered.csv"
	SucceededFile     = "transfer_succeeded.csv"
	FailedFile        = "failed_to_transfer.csv"
	SnapshotFile      = "snapshot.json"
	StopFile          = "STOP"
)

// ArtifactPaths locates the files of one source list's state directory.
type ArtifactPaths struct {
	Dir           string
	RemainingWork string
	Unregistered  string
	Succeeded     string
	Failed        string
	Snapshot      string
}

// ResolveArtifactPaths derives the artifact directory that sits next to
// sourcePath and creates it if needed. sourcePath must be an existing file;
// nothing is created otherwise.
func ResolveArtifactPaths(sourcePath string) (ArtifactPaths, error) {
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return ArtifactPaths{}, fmt.Errorf("resolve %s: %w", sourcePath, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return ArtifactPaths{}, fmt.Errorf("recipients file: %w", err)
	}
	if fi.IsDir() {
		return ArtifactPaths{}, fmt.Errorf("recipients file %s is a directory", abs)
	}
	name := strings.TrimSuffix(filepath.Base(abs), ".csv")
	dir := filepath.Join(filepath.Dir(abs), name+StateDirSuffix)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ArtifactPaths{}, fmt.Errorf("create state dir: %w", err)
	}
	return pathsIn(dir), nil
}

func pathsIn(dir string) ArtifactPaths {
	return ArtifactPaths{
		Dir:           dir,
		RemainingWork: filepath.Join(dir, RemainingWorkFile),
		Unregistered:  filepath.Join(dir, UnregisteredFile),
		Succeeded:     filepath.Join(dir, SucceededFile),
		Failed:        filepath.Join(dir, FailedFile),
		Snapshot:      filepath.Join(dir, SnapshotFile),
	}
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
