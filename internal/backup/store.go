// Package backup keeps timestamped, manifest-described snapshots of the files
// a hardening run is about to change and restores them all-or-nothing.
//
// Layout:
//
//	<stateDir>/backups/<timestamp>/manifest.json
//	<stateDir>/backups/<timestamp>/files/<path relative to stateDir>
package backup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// Dir is the backups directory inside the state directory.
	Dir = "backups"

	filesDir = "files"

	// TimestampFormat names snapshot directories. It sorts lexically.
	TimestampFormat = "2006-01-02T15-04-05.000000000Z"
)

// Snapshot is a stored backup.
type Snapshot struct {
	Timestamp string
	Dir       string
	Entries   []Entry
}

// Store manages snapshots for one state directory.
type Store struct {
	stateDir string
	root     string
	now      func() time.Time
	logger   *zap.Logger

	// beforeRestore runs ahead of each restore write. Tests use it to inject failures.
	beforeRestore func(Entry) error
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore returns the Store for stateDir.
func NewStore(stateDir string, opts ...Option) *Store {
	s := &Store{
		stateDir: filepath.Clean(stateDir),
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	s.root = filepath.Join(s.stateDir, Dir)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Root returns the backups directory.
func (s *Store) Root() string { return s.root }

// relPath returns path relative to the state directory, rejecting escapes.
func (s *Store) relPath(path string) (string, error) {
	rel, err := filepath.Rel(s.stateDir, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", ErrOutsideStateDir
	}
	return rel, nil
}

// Create snapshots paths. The snapshot is assembled in a hidden temp
// directory and renamed into place once its manifest is written, so a
// failed Create leaves no snapshot behind. Every path must exist.
func (s *Store) Create(paths []string) (*Snapshot, error) {
	seen := map[string]bool{}
	var ordered []string
	for _, p := range paths {
		p = filepath.Clean(p)
		if seen[p] {
			continue
		}
		if _, err := s.relPath(p); err != nil {
			return nil, &BackupError{Op: "validate", Path: p, Err: err}
		}
		seen[p] = true
		ordered = append(ordered, p)
	}

	if err := os.MkdirAll(s.root, 0o700); err != nil {
		return nil, &BackupError{Op: "mkdir", Path: s.root, Err: err}
	}

	ts, err := s.nextTimestamp()
	if err != nil {
		return nil, &BackupError{Op: "timestamp", Err: err}
	}
	tmp := filepath.Join(s.root, ".tmp-"+ts)
	final := filepath.Join(s.root, ts)
	if err := os.MkdirAll(tmp, 0o700); err != nil {
		return nil, &BackupError{Op: "mkdir", Path: tmp, Err: err}
	}

	success := false
	defer func() {
		if !success {
			_ = os.RemoveAll(tmp) //nolint:errcheck // cleanup in error path
		}
	}()

	entries := make([]Entry, 0, len(ordered))
	for _, p := range ordered {
		entry, err := s.copyInto(tmp, p)
		if err != nil {
			return nil, &BackupError{Op: "copy", Path: p, Err: err}
		}
		entries = append(entries, entry)
	}

	data, err := encodeManifest(entries)
	if err != nil {
		return nil, &BackupError{Op: "manifest", Err: err}
	}
	if err := WriteFile(filepath.Join(tmp, ManifestFile), data, 0o600); err != nil {
		return nil, &BackupError{Op: "manifest", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, final); err != nil {
		return nil, &BackupError{Op: "commit", Path: final, Err: err}
	}
	success = true

	s.logger.Info("backup snapshot created", zap.String("snapshot", final), zap.Int("entries", len(entries)))
	return &Snapshot{Timestamp: ts, Dir: final, Entries: entries}, nil
}

// nextTimestamp returns an unused snapshot key.
func (s *Store) nextTimestamp() (string, error) {
	base := s.now().UTC().Format(TimestampFormat)
	for i := 0; i < 1000; i++ {
		ts := base
		if i > 0 {
			ts = fmt.Sprintf("%s-%d", base, i)
		}
		_, err := os.Lstat(filepath.Join(s.root, ts))
		if errors.Is(err, fs.ErrNotExist) {
			return ts, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("too many snapshots at %s", base)
}

func (s *Store) copyInto(snapDir, path string) (Entry, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{OriginalPath: path, PermissionBits: info.Mode().Perm()}

	switch {
	case info.IsDir():
		entry.IsDir = true
		return entry, nil
	case !info.Mode().IsRegular():
		return Entry{}, fmt.Errorf("not a regular file (mode %s)", info.Mode())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	rel, _ := s.relPath(path)
	entry.StoredPath = filepath.ToSlash(filepath.Join(filesDir, rel))
	sum := sha256.Sum256(data)
	entry.SHA256 = hex.EncodeToString(sum[:])

	if err := WriteFile(filepath.Join(snapDir, filepath.FromSlash(entry.StoredPath)), data, 0o600); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// List returns snapshot timestamps, oldest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Latest returns the newest snapshot timestamp.
func (s *Store) Latest() (string, error) {
	all, err := s.List()
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "", ErrNoSnapshot
	}
	return all[len(all)-1], nil
}

// Load reads and validates a snapshot manifest.
func (s *Store) Load(ts string) (*Snapshot, error) {
	if ts == "" || strings.ContainsAny(ts, `/\`) || strings.HasPrefix(ts, ".") {
		return nil, fmt.Errorf("%w: invalid timestamp %q", ErrNoSnapshot, ts)
	}
	dir := filepath.Join(s.root, ts)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, ts)
	}

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
	}
	entries, err := decodeManifest(data)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Timestamp: ts, Dir: dir, Entries: entries}, nil
}

// fileState is what a path looked like at some moment.
type fileState struct {
	exists bool
	isDir  bool
	perm   fs.FileMode
	data   []byte
}

func capture(path string) (fileState, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileState{}, nil
	}
	if err != nil {
		return fileState{}, err
	}
	st := fileState{exists: true, isDir: info.IsDir(), perm: info.Mode().Perm()}
	if st.isDir {
		return st, nil
	}
	st.data, err = os.ReadFile(path)
	return st, err
}

func apply(path string, st fileState) error {
	switch {
	case !st.exists:
		return os.Remove(path)
	case st.isDir:
		if err := os.MkdirAll(path, st.perm); err != nil {
			return err
		}
		return os.Chmod(path, st.perm)
	default:
		return WriteFile(path, st.data, st.perm)
	}
}

// Restore puts every entry of snapshot ts back. Everything is read and
// verified before the first write; if a write fails, entries already
// restored are reverted and a *RollbackError lists them. The snapshot
// itself is never removed, so Restore can be repeated.
func (s *Store) Restore(ts string) (*Snapshot, error) {
	snap, err := s.Load(ts)
	if err != nil {
		return nil, &RollbackError{Timestamp: ts, Err: err}
	}

	wanted := make([]fileState, len(snap.Entries))
	current := make([]fileState, len(snap.Entries))
	for i, e := range snap.Entries {
		if _, err := s.relPath(e.OriginalPath); err != nil {
			return nil, &RollbackError{Timestamp: ts, Err: fmt.Errorf("%w: %s: %v", ErrManifestCorrupt, e.OriginalPath, err)}
		}

		wanted[i] = fileState{exists: true, isDir: e.IsDir, perm: e.PermissionBits.Perm()}
		if !e.IsDir {
			data, err := os.ReadFile(filepath.Join(snap.Dir, filepath.FromSlash(e.StoredPath)))
			if err != nil {
				return nil, &RollbackError{Timestamp: ts, Err: fmt.Errorf("%w: %v", ErrManifestCorrupt, err)}
			}
			sum := sha256.Sum256(data)
			if hex.EncodeToString(sum[:]) != e.SHA256 {
				return nil, &RollbackError{Timestamp: ts, Err: fmt.Errorf("%w: checksum mismatch for %s", ErrManifestCorrupt, e.StoredPath)}
			}
			wanted[i].data = data
		}

		current[i], err = capture(e.OriginalPath)
		if err != nil {
			return nil, &RollbackError{Timestamp: ts, Err: err}
		}
	}

	var restored []string
	for i, e := range snap.Entries {
		if sameState(current[i], wanted[i]) {
			continue
		}
		err := s.hook(e)
		if err == nil {
			err = apply(e.OriginalPath, wanted[i])
		}
		if err != nil {
			s.revert(snap.Entries, current, restored)
			return nil, &RollbackError{
				Timestamp: ts,
				Restored:  restored,
				Err:       fmt.Errorf("restore %s: %w", e.OriginalPath, err),
			}
		}
		restored = append(restored, e.OriginalPath)
	}

	s.logger.Info("backup snapshot restored", zap.String("snapshot", snap.Dir), zap.Int("changed", len(restored)))
	return snap, nil
}

func (s *Store) hook(e Entry) error {
	if s.beforeRestore == nil {
		return nil
	}
	return s.beforeRestore(e)
}

// revert puts the restored entries back to their pre-restore state.
func (s *Store) revert(entries []Entry, current []fileState, restored []string) {
	done := map[string]bool{}
	for _, p := range restored {
		done[p] = true
	}
	for i := len(entries) - 1; i >= 0; i-- {
		p := entries[i].OriginalPath
		if !done[p] {
			continue
		}
		if err := apply(p, current[i]); err != nil {
			s.logger.Error("revert after failed rollback", zap.String("path", p), zap.Error(err))
		}
	}
}

func sameState(a, b fileState) bool {
	return a.exists == b.exists && a.isDir == b.isDir && a.perm == b.perm && bytes.Equal(a.data, b.data)
}
