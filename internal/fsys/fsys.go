// Package fsys provides the read-only filesystem capability set the audit
// engine needs from its host. Any afero filesystem satisfies it, so checks run
// unchanged against local disk, an in-memory tree, or a test double.
package fsys

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/spf13/afero"
)

// FileInfo describes a path. A missing path is reported with Exists=false
// rather than an error so callers can tell "absent" apart from "unreadable".
type FileInfo struct {
	Path        string
	Exists      bool
	IsDir       bool
	Permissions fs.FileMode
	Size        int64
	ModTime     time.Time
}

// FS is the capability set consumed by audit checks.
type FS interface {
	// FileInfo stats path. Missing paths return Exists=false and a nil error.
	FileInfo(path string) (FileInfo, error)

	// ReadFile returns the file content. Missing files return an error
	// matching fs.ErrNotExist.
	ReadFile(path string) ([]byte, error)

	// ListDir returns the sorted entry names of a directory.
	ListDir(path string) ([]string, error)

	// FileExists reports whether path exists.
	FileExists(path string) (bool, error)

	// FilePermissions returns the permission bits of path.
	FilePermissions(path string) (fs.FileMode, error)
}

// Afero implements FS on top of an afero filesystem.
type Afero struct {
	fs afero.Fs
}

// New wraps an afero filesystem.
func New(afs afero.Fs) *Afero {
	return &Afero{fs: afs}
}

// OS returns an FS backed by the local disk.
func OS() *Afero {
	return New(afero.NewOsFs())
}

// Fs exposes the underlying afero filesystem.
func (a *Afero) Fs() afero.Fs {
	return a.fs
}

// FileInfo implements FS.
func (a *Afero) FileInfo(path string) (FileInfo, error) {
	st, err := a.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return FileInfo{Path: path}, nil
	}
	if err != nil {
		return FileInfo{Path: path}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FileInfo{
		Path:        path,
		Exists:      true,
		IsDir:       st.IsDir(),
		Permissions: st.Mode().Perm(),
		Size:        st.Size(),
		ModTime:     st.ModTime(),
	}, nil
}

// ReadFile implements FS.
func (a *Afero) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// ListDir implements FS.
func (a *Afero) ListDir(path string) ([]string, error) {
	entries, err := afero.ReadDir(a.fs, path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// FileExists implements FS.
func (a *Afero) FileExists(path string) (bool, error) {
	info, err := a.FileInfo(path)
	if err != nil {
		return false, err
	}
	return info.Exists, nil
}

// FilePermissions implements FS.
func (a *Afero) FilePermissions(path string) (fs.FileMode, error) {
	info, err := a.FileInfo(path)
	if err != nil {
		return 0, err
	}
	if !info.Exists {
		return 0, fmt.Errorf("permissions %s: %w", path, fs.ErrNotExist)
	}
	return info.Permissions, nil
}
