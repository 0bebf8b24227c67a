// Package skillscan statically vets a skill package before it is trusted.
// It reads the manifest and script files and never executes anything.
package skillscan

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/secureclaw/secureclaw/internal/config"
	"github.com/secureclaw/secureclaw/internal/worker"
)

// maxFileSize caps how much of a single file is analysed.
const maxFileSize = 2 << 20

// scriptExts are the file types analysed line by line.
var scriptExts = map[string]bool{
	".sh": true, ".bash": true, ".zsh": true,
	".py": true,
	".js": true, ".mjs": true, ".cjs": true, ".ts": true,
	".rb": true, ".pl": true, ".ps1": true,
}

// Concern is one disqualifying pattern found in a skill.
type Concern struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (c Concern) String() string {
	if c.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", c.File, c.Line, c.Message)
	}
	return fmt.Sprintf("%s: %s", c.File, c.Message)
}

// Result is the outcome of scanning one skill. Safe is true iff Findings is empty.
type Result struct {
	Name     string    `json:"name"`
	Safe     bool      `json:"safe"`
	Findings []string  `json:"findings"`
	Concerns []Concern `json:"concerns,omitempty"`
	Manifest *Manifest `json:"manifest,omitempty"`
}

// Scanner scans skill directories.
type Scanner struct {
	fs           afero.Fs
	allowedHosts []string
	concurrency  int
	logger       *zap.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithFs sets the filesystem skills are read from.
func WithFs(fsys afero.Fs) Option {
	return func(s *Scanner) { s.fs = fsys }
}

// WithAllowedHosts replaces the network allow-list.
func WithAllowedHosts(hosts []string) Option {
	return func(s *Scanner) { s.allowedHosts = hosts }
}

// WithConcurrency bounds the number of files read in parallel.
func WithConcurrency(n int) Option {
	return func(s *Scanner) { s.concurrency = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// New creates a Scanner reading from the local disk with the default allow-list.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		fs:           afero.NewOsFs(),
		allowedHosts: config.DefaultAllowedHosts,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ScanSkill scans skillDir with a default Scanner.
func ScanSkill(ctx context.Context, skillDir, name string) (*Result, error) {
	return New().Scan(ctx, skillDir, name)
}

// Scan inspects skillDir. A missing directory is an error; an empty one is safe.
func (s *Scanner) Scan(ctx context.Context, skillDir, name string) (*Result, error) {
	root := filepath.Clean(skillDir)
	info, err := s.fs.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, root)
	}
	if err != nil {
		return nil, fmt.Errorf("stat skill %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	var (
		concerns []Concern
		files    []string
		entries  int
	)
	err = afero.Walk(s.fs, root, func(path string, fi fs.FileInfo, walkErr error) error {
		if path == root {
			return walkErr
		}
		rel, _ := filepath.Rel(root, path)
		if walkErr != nil {
			concerns = append(concerns, Concern{File: rel, Kind: KindManifest, Message: "could not be read: " + walkErr.Error()})
			return nil
		}
		entries++
		switch {
		case fi.Mode()&fs.ModeSymlink != 0:
			if c, escaped := s.checkSymlink(root, path, rel); escaped {
				concerns = append(concerns, c)
			}
		case fi.IsDir():
		case fi.Mode().IsRegular() && candidate(rel):
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk skill %s: %w", root, err)
	}

	res := &Result{Name: name, Findings: []string{}}
	if entries == 0 {
		res.Safe = true
		return res, nil
	}

	res.Manifest, concerns = s.checkManifest(root, concerns)

	pool := worker.NewPool[[]Concern](s.concurrency)
	for _, r := range pool.Process(ctx, files, func(_ context.Context, rel string) ([]Concern, error) {
		return s.scanFile(root, rel)
	}) {
		if errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded) {
			return nil, r.Err
		}
		if r.Err != nil {
			concerns = append(concerns, Concern{File: r.Item, Kind: KindManifest, Message: "could not be read: " + r.Err.Error()})
			continue
		}
		concerns = append(concerns, r.Value...)
	}

	res.Concerns = sortConcerns(concerns)
	for _, c := range res.Concerns {
		res.Findings = append(res.Findings, c.String())
	}
	res.Safe = len(res.Findings) == 0

	s.logger.Debug("skill scanned",
		zap.String("skill", name),
		zap.Int("files", len(files)),
		zap.Int("concerns", len(res.Concerns)),
		zap.Bool("safe", res.Safe))
	return res, nil
}

// candidate reports whether a file is analysed at all.
func candidate(rel string) bool {
	if filepath.Base(rel) == ManifestFile {
		return true
	}
	ext := strings.ToLower(filepath.Ext(rel))
	return ext == "" || scriptExts[ext]
}

func (s *Scanner) checkManifest(root string, concerns []Concern) (*Manifest, []Concern) {
	data, err := afero.ReadFile(s.fs, filepath.Join(root, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, append(concerns, Concern{File: ManifestFile, Kind: KindManifest, Message: "missing manifest"})
	}
	if err != nil {
		return nil, append(concerns, Concern{File: ManifestFile, Kind: KindManifest, Message: "unreadable manifest: " + err.Error()})
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, append(concerns, Concern{File: ManifestFile, Kind: KindManifest, Message: "malformed manifest: " + err.Error()})
	}
	return m, concerns
}

func (s *Scanner) checkSymlink(root, path, rel string) (Concern, bool) {
	reader, ok := s.fs.(afero.LinkReader)
	if !ok {
		return Concern{}, false
	}
	target, err := reader.ReadlinkIfPossible(path)
	if err != nil {
		return Concern{File: rel, Kind: KindSymlink, Message: "unreadable symlink"}, true
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	back, err := filepath.Rel(root, filepath.Clean(target))
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return Concern{File: rel, Kind: KindSymlink, Message: "symlink escapes the skill directory"}, true
	}
	return Concern{}, false
}

// scanFile applies the line rules to one file.
func (s *Scanner) scanFile(root, rel string) ([]Concern, error) {
	path := filepath.Join(root, rel)
	st, err := s.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.Size() > maxFileSize {
		s.logger.Debug("skipping large file", zap.String("file", rel), zap.Int64("size", st.Size()))
		return nil, nil
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, err
	}

	var lines []codeLine
	switch {
	case filepath.Base(rel) == ManifestFile:
		lines = fencedCode(data)
	case filepath.Ext(rel) == "" && !bytes.HasPrefix(data, []byte("#!")):
		return nil, nil
	default:
		sc := bufio.NewScanner(bytes.NewReader(data))
		sc.Buffer(make([]byte, 0, 64*1024), maxFileSize)
		for n := 1; sc.Scan(); n++ {
			lines = append(lines, codeLine{n: n, text: sc.Text()})
		}
	}

	var out []Concern
	for _, l := range lines {
		for _, h := range matchLine(l.text, s.allowedHosts) {
			out = append(out, Concern{File: rel, Line: l.n, Kind: h.kind, Message: h.message})
		}
	}
	return out, nil
}

// sortConcerns orders concerns by file then line and drops exact duplicates.
func sortConcerns(in []Concern) []Concern {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].File != in[j].File {
			return in[i].File < in[j].File
		}
		return in[i].Line < in[j].Line
	})
	seen := make(map[Concern]bool, len(in))
	out := make([]Concern, 0, len(in))
	for _, c := range in {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
