package monitor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/secureclaw/secureclaw/internal/config"
	"github.com/secureclaw/secureclaw/internal/secrets"
	"github.com/secureclaw/secureclaw/internal/types"
)

// DefaultCredentialInterval is the credential monitor sampling period.
const DefaultCredentialInterval = 30 * time.Second

// NewCredentialMonitor watches logs, session transcripts and the config
// files for leaked secrets. Provider tokens raise critical alerts and
// generic secret assignments raise high alerts. Each secret is reported
// once per file.
func NewCredentialMonitor(opts ...Option) *Runner {
	o := buildOptions(DefaultCredentialInterval, opts)
	return newRunner(NameCredential, &credentialSampler{fs: o.fs}, o)
}

// Append-only files, read incrementally.
var credentialLogGlobs = []string{
	"agents/*/sessions/*.jsonl",
}

// Rewritten files, rescanned whole when their mtime changes.
var credentialConfigFiles = []string{
	config.OpenClawFile,
	".env",
}

type credentialSampler struct {
	fs       afero.Fs
	stateDir string
	tail     *tailer
	mtimes   map[string]time.Time
	seen     map[string]bool
}

func (s *credentialSampler) open(_ context.Context, stateDir string, _ func()) error {
	s.stateDir = stateDir
	s.tail = newTailer(s.fs)
	s.mtimes = map[string]time.Time{}
	s.seen = map[string]bool{}
	return nil
}

func (s *credentialSampler) close() {}

func (s *credentialSampler) sample(ctx context.Context, emit emitFunc) error {
	logs, err := walkFiles(s.fs, filepath.Join(s.stateDir, "logs"))
	if err != nil {
		return err
	}
	sessions, err := globFiles(s.fs, s.stateDir, credentialLogGlobs...)
	if err != nil {
		return err
	}

	live := map[string]bool{}
	for _, path := range append(logs, sessions...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		live[path] = true
		lines, err := s.tail.readNew(path)
		if err != nil {
			continue
		}
		for _, l := range lines {
			s.report(path, l.n, secrets.ScanLine(l.text), emit)
		}
	}
	s.tail.forget(live)

	for _, name := range credentialConfigFiles {
		path := filepath.Join(s.stateDir, name)
		info, err := s.fs.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			delete(s.mtimes, path)
			continue
		}
		if last, ok := s.mtimes[path]; ok && last.Equal(info.ModTime()) {
			continue
		}
		s.mtimes[path] = info.ModTime()

		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			continue
		}
		for _, m := range secrets.Scan(data) {
			s.report(path, m.Line, []secrets.Match{m}, emit)
		}
	}
	return nil
}

func (s *credentialSampler) report(path string, line int, matches []secrets.Match, emit emitFunc) {
	for _, m := range matches {
		sum := sha256.Sum256([]byte(path + "\x00" + m.Rule.ID + "\x00" + m.Value))
		key := hex.EncodeToString(sum[:])
		if s.seen[key] {
			continue
		}
		s.seen[key] = true

		sev := types.SeverityHigh
		if m.Rule.Confidence == secrets.ConfidenceHigh {
			sev = types.SeverityCritical
		}
		emit(sev, "%s exposed in %s:%d (%s)", m.Rule.Description, s.rel(path), line, m.Redacted)
	}
}

func (s *credentialSampler) rel(path string) string {
	if r, err := filepath.Rel(s.stateDir, path); err == nil {
		return filepath.ToSlash(r)
	}
	return path
}
