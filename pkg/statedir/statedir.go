// Package statedir locates the OpenClaw state directory.
package statedir

import (
	"errors"
	"os"
	"path/filepath"
)

// DirName is the state directory name under a home or project directory.
const DirName = ".openclaw"

// EnvVar overrides detection.
const EnvVar = "OPENCLAW_STATE_DIR"

// Source says how a state directory was chosen.
type Source string

const (
	SourceFlag     Source = "flag"
	SourceEnv      Source = "env"
	SourceAncestor Source = "ancestor"
	SourceHome     Source = "home"
)

// ErrNoHome is returned when no other source applies and the home
// directory cannot be determined.
var ErrNoHome = errors.New("cannot determine home directory for the state directory")

// Detect walks up from startDir looking for a .openclaw directory and
// returns its path, or "" when there is none. An empty startDir means the
// working directory.
func Detect(startDir string) string {
	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			return ""
		}
	}

	dir := startDir
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break // Reached root
		}
		dir = parent
	}
	return ""
}

// Resolve picks the state directory: the flag value, then $OPENCLAW_STATE_DIR,
// then the nearest ancestor .openclaw, then ~/.openclaw. The result is
// absolute. It is not required to exist.
func Resolve(flag string) (string, Source, error) {
	if flag != "" {
		abs, err := filepath.Abs(flag)
		return abs, SourceFlag, err
	}
	if env := os.Getenv(EnvVar); env != "" {
		abs, err := filepath.Abs(env)
		return abs, SourceEnv, err
	}
	if dir := Detect(""); dir != "" {
		abs, err := filepath.Abs(dir)
		return abs, SourceAncestor, err
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", SourceHome, ErrNoHome
	}
	return filepath.Join(home, DirName), SourceHome, nil
}

// SkillDir returns where a skill named name is installed.
func SkillDir(stateDir, name string) string {
	return filepath.Join(stateDir, "skills", name)
}
