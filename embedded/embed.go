// Package embedded carries the secureclaw agent skill so the binary can
// install it without a source checkout.
package embedded

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SkillName is the directory the bundle installs to under skills/.
const SkillName = "secureclaw"

// AuditScript is the bundled quick check, relative to the skill directory.
const AuditScript = "scripts/quick-audit.sh"

// SkillFS contains the skill bundle rooted at skill/.
//
//go:embed all:skill
var SkillFS embed.FS

// Skill returns the bundle with skill/ stripped.
func Skill() fs.FS {
	sub, err := fs.Sub(SkillFS, "skill")
	if err != nil {
		panic(err) // the embed pattern guarantees skill/ exists
	}
	return sub
}

// Install extracts the bundle into dst and returns the number of files
// written. Scripts are made executable by the owner only.
func Install(dst string) (int, error) {
	bundle := Skill()
	copied := 0

	err := fs.WalkDir(bundle, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(dst, filepath.FromSlash(path))
		if d.IsDir() {
			return os.MkdirAll(target, 0o700)
		}

		data, err := fs.ReadFile(bundle, path)
		if err != nil {
			return fmt.Errorf("read embedded %s: %w", path, err)
		}

		perm := os.FileMode(0o600)
		if strings.HasSuffix(path, ".sh") {
			perm = 0o700
		}
		if err := os.WriteFile(target, data, perm); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
		// WriteFile leaves the mode of an existing file alone.
		if err := os.Chmod(target, perm); err != nil {
			return err
		}
		copied++
		return nil
	})
	return copied, err
}
