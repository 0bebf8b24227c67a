package monitor

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/secureclaw/secureclaw/internal/config"
	"github.com/secureclaw/secureclaw/internal/types"
)

// DefaultMemoryInterval is the memory monitor sampling period.
const DefaultMemoryInterval = 60 * time.Second

const (
	// maxMemoryFile caps how much of a memory file is hashed and inspected.
	maxMemoryFile = 16 << 20

	// minGrowthBytes keeps small files from tripping the growth factor.
	minGrowthBytes = 4 << 10
)

// IdentityFiles define the agent's persona. Any change is reported.
var IdentityFiles = []string{
	"workspace/SOUL.md",
	"workspace/MEMORY.md",
	"workspace/AGENTS.md",
	"workspace/IDENTITY.md",
}

var injectionMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(?:all\s+)?(?:previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(?:your|the|all)\s+(?:previous\s+|system\s+)?(?:instructions|prompt|rules)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(?:in\s+)?(?:developer|jailbreak|dan|unrestricted)`),
	regexp.MustCompile(`(?i)new\s+system\s+prompt\s*:`),
	regexp.MustCompile(`<\|im_start\|>|\[INST\]|<<SYS>>`),
	regexp.MustCompile(`(?i)do\s+not\s+(?:tell|inform|alert)\s+the\s+user`),
}

// NewMemoryMonitor watches memory/ and the workspace identity files for
// deletion, truncation, growth outside the envelope, JSON corruption and
// prompt-injection text. Filesystem events trigger an early sample.
func NewMemoryMonitor(settings config.MemorySettings, opts ...Option) *Runner {
	o := buildOptions(DefaultMemoryInterval, opts)
	if settings.GrowthFactor <= 1 {
		settings.GrowthFactor = config.Default().Memory.GrowthFactor
	}
	if settings.MaxGrowthBytes <= 0 {
		settings.MaxGrowthBytes = config.Default().Memory.MaxGrowthBytes
	}
	return newRunner(NameMemory, &memorySampler{fs: o.fs, settings: settings, logger: o.logger}, o)
}

type memoryFile struct {
	size      int64
	sum       [sha256.Size]byte
	validJSON bool
}

type memorySampler struct {
	fs       afero.Fs
	settings config.MemorySettings
	logger   *zap.Logger

	stateDir string
	baseline map[string]memoryFile
	watcher  *fsnotify.Watcher
}

func (s *memorySampler) open(ctx context.Context, stateDir string, wake func()) error {
	s.stateDir = stateDir
	s.baseline = nil

	if _, ok := s.fs.(*afero.OsFs); !ok {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("file events unavailable, polling only", zap.Error(err))
		return nil
	}
	for _, dir := range s.watchDirs() {
		if err := w.Add(dir); err != nil {
			s.logger.Debug("not watching", zap.String("dir", dir), zap.Error(err))
		}
	}
	s.watcher = w

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				wake()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Debug("watch error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (s *memorySampler) close() {
	if s.watcher != nil {
		_ = s.watcher.Close() //nolint:errcheck // best-effort on stop
		s.watcher = nil
	}
}

// watchDirs lists memory/ and its subdirectories plus workspace/.
// fsnotify is not recursive.
func (s *memorySampler) watchDirs() []string {
	dirs := []string{filepath.Join(s.stateDir, "workspace")}
	_ = afero.Walk(s.fs, filepath.Join(s.stateDir, "memory"), func(path string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}

func (s *memorySampler) files() ([]string, error) {
	files, err := walkFiles(s.fs, filepath.Join(s.stateDir, "memory"))
	if err != nil {
		return nil, err
	}
	for _, rel := range IdentityFiles {
		path := filepath.Join(s.stateDir, filepath.FromSlash(rel))
		if info, err := s.fs.Stat(path); err == nil && info.Mode().IsRegular() {
			files = append(files, path)
		}
	}
	return files, nil
}

func (s *memorySampler) isIdentity(path string) bool {
	rel := s.rel(path)
	for _, id := range IdentityFiles {
		if rel == id {
			return true
		}
	}
	return false
}

func (s *memorySampler) sample(ctx context.Context, emit emitFunc) error {
	paths, err := s.files()
	if err != nil {
		return err
	}

	first := s.baseline == nil
	current := make(map[string]memoryFile, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			// Vanished between listing and reading; the next sample sees it.
			if prev, ok := s.baseline[path]; ok {
				current[path] = prev
			}
			continue
		}
		if len(data) > maxMemoryFile {
			data = data[:maxMemoryFile]
		}
		cur := memoryFile{size: int64(len(data)), sum: sha256.Sum256(data)}
		isJSON := strings.EqualFold(filepath.Ext(path), ".json")
		if isJSON {
			cur.validJSON = json.Valid(data)
		}
		current[path] = cur

		prev, known := s.baseline[path]
		if known && prev.sum == cur.sum {
			continue
		}
		if known {
			s.compare(path, prev, cur, isJSON, emit)
		}
		for _, re := range injectionMarkers {
			if m := re.Find(data); m != nil {
				emit(types.SeverityCritical, "prompt injection marker %q in %s", string(m), s.rel(path))
				break
			}
		}
	}

	if !first {
		var gone []string
		for path := range s.baseline {
			if _, ok := current[path]; !ok {
				gone = append(gone, path)
			}
		}
		sort.Strings(gone)
		for _, path := range gone {
			emit(types.SeverityHigh, "memory file deleted: %s", s.rel(path))
		}
	}

	s.baseline = current
	return nil
}

func (s *memorySampler) compare(path string, prev, cur memoryFile, isJSON bool, emit emitFunc) {
	rel := s.rel(path)
	grown := cur.size - prev.size

	switch {
	case prev.size > 0 && cur.size*2 < prev.size:
		emit(types.SeverityHigh, "memory file truncated: %s shrank from %d to %d bytes", rel, prev.size, cur.size)
	case s.isIdentity(path):
		emit(types.SeverityHigh, "identity file modified: %s", rel)
	case grown > s.settings.MaxGrowthBytes,
		grown > minGrowthBytes && float64(cur.size) > float64(prev.size)*s.settings.GrowthFactor:
		emit(types.SeverityMedium, "memory file grew unexpectedly: %s from %d to %d bytes", rel, prev.size, cur.size)
	}

	if isJSON && prev.validJSON && !cur.validJSON {
		emit(types.SeverityMedium, "memory file is no longer valid JSON: %s", rel)
	}
}

func (s *memorySampler) rel(path string) string {
	if r, err := filepath.Rel(s.stateDir, path); err == nil {
		return filepath.ToSlash(r)
	}
	return path
}
