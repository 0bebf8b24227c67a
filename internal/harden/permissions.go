package harden

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/secureclaw/secureclaw/internal/audit"
)

const (
	privateFileMode fs.FileMode = 0o600
	privateDirMode  fs.FileMode = 0o700
)

// PermissionsModule restricts files to 0600 and directories to 0700.
type PermissionsModule struct{}

// Name implements Module.
func (PermissionsModule) Name() string { return audit.RemediationPermissions }

// Plan implements Module.
func (PermissionsModule) Plan(actx *audit.Context, findings []audit.Finding) ([]Fix, error) {
	var (
		fixes []Fix
		errs  []error
		seen  = map[string]bool{}
	)
	for _, f := range findings {
		if f.Path == "" {
			errs = append(errs, fmt.Errorf("finding %s has no path", f.ID))
			continue
		}
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true

		info, err := actx.FS.FileInfo(f.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.Exists {
			errs = append(errs, fmt.Errorf("%s: %w", f.Path, fs.ErrNotExist))
			continue
		}

		want := privateFileMode
		if info.IsDir {
			want = privateDirMode
		}
		if info.Permissions == want {
			continue
		}

		path := f.Path
		fixes = append(fixes, Fix{
			FindingID:   f.ID,
			Target:      path,
			Risk:        RiskLow,
			Description: fmt.Sprintf("chmod %04o %s (was %04o)", want, displayPath(actx, path), info.Permissions),
			Apply:       func() error { return os.Chmod(path, want) },
		})
	}
	return fixes, errors.Join(errs...)
}

func displayPath(actx *audit.Context, path string) string {
	rel, err := filepath.Rel(actx.StateDir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
