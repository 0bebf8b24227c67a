package backup

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoSnapshot is returned when no snapshot exists, or the named one does not.
	ErrNoSnapshot = errors.New("no backup snapshot")

	// ErrManifestCorrupt is returned when manifest.json is missing, fails
	// schema validation, or a stored copy does not match its checksum.
	ErrManifestCorrupt = errors.New("backup manifest missing or corrupt")

	// ErrLocked is returned when another harden or rollback holds the state directory.
	ErrLocked = errors.New("state directory is locked by another secureclaw process")

	// ErrOutsideStateDir is returned for paths that escape the state directory.
	ErrOutsideStateDir = errors.New("path is outside the state directory")
)

// BackupError reports a failed snapshot. Nothing has been mutated when it is returned.
type BackupError struct {
	Op   string
	Path string
	Err  error
}

func (e *BackupError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("backup %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("backup %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// RollbackError reports a failed restore. Restored lists the entries that
// were written before the failure and then reverted.
type RollbackError struct {
	Timestamp string
	Restored  []string
	Err       error
}

func (e *RollbackError) Error() string {
	msg := fmt.Sprintf("rollback: %v", e.Err)
	if e.Timestamp != "" {
		msg = fmt.Sprintf("rollback %s: %v", e.Timestamp, e.Err)
	}
	if len(e.Restored) > 0 {
		msg += fmt.Sprintf(" (reverted %d restored entries: %s)", len(e.Restored), strings.Join(e.Restored, ", "))
	}
	return msg
}

func (e *RollbackError) Unwrap() error { return e.Err }
