package monitor

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/secureclaw/secureclaw/internal/types"
)

const stateDir = "/state"

type emitted struct {
	sev types.Severity
	msg string
}

type collector struct{ got []emitted }

func (c *collector) emit(sev types.Severity, format string, args ...any) {
	c.got = append(c.got, emitted{sev: sev, msg: fmt.Sprintf(format, args...)})
}

func (c *collector) take() []emitted {
	out := c.got
	c.got = nil
	return out
}

func write(t *testing.T, fs afero.Fs, rel, content string) {
	t.Helper()
	path := filepath.Join(stateDir, filepath.FromSlash(rel))
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o600))
}

func appendTo(t *testing.T, fs afero.Fs, rel, content string) {
	t.Helper()
	path := filepath.Join(stateDir, filepath.FromSlash(rel))
	existing, err := afero.ReadFile(fs, path)
	if err != nil {
		existing = nil
	}
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, afero.WriteFile(fs, path, append(existing, content...), 0o600))
}
