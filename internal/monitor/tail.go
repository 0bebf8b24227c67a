package monitor

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// maxChunk caps how much of a file one sample reads.
const maxChunk = 8 << 20

// tailLine is a complete line appended since the previous read.
type tailLine struct {
	n    int
	text string
}

type tailState struct {
	offset int64
	lines  int
}

// tailer reads only the bytes appended to each file since the last call.
// A file that shrank is treated as rotated and read from the start.
type tailer struct {
	fs    afero.Fs
	state map[string]*tailState
}

func newTailer(fs afero.Fs) *tailer {
	return &tailer{fs: fs, state: map[string]*tailState{}}
}

// readNew returns complete new lines. A trailing partial line is left for
// the next call unless the chunk limit forces it out.
func (t *tailer) readNew(path string) ([]tailLine, error) {
	info, err := t.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	st, ok := t.state[path]
	if !ok {
		st = &tailState{}
		t.state[path] = st
	}
	if info.Size() < st.offset {
		*st = tailState{}
	}
	if info.Size() == st.offset {
		return nil, nil
	}

	f, err := t.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Seek(st.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(f, maxChunk))
	if err != nil {
		return nil, err
	}

	end := bytes.LastIndexByte(data, '\n') + 1
	if end == 0 {
		if len(data) < maxChunk {
			return nil, nil
		}
		end = len(data)
	}
	st.offset += int64(end)

	raw := strings.Split(strings.TrimSuffix(string(data[:end]), "\n"), "\n")
	out := make([]tailLine, 0, len(raw))
	for _, s := range raw {
		st.lines++
		out = append(out, tailLine{n: st.lines, text: strings.TrimSuffix(s, "\r")})
	}
	return out, nil
}

// forget drops state for files not in keep.
func (t *tailer) forget(keep map[string]bool) {
	for p := range t.state {
		if !keep[p] {
			delete(t.state, p)
		}
	}
}

// globFiles expands patterns relative to root, returning regular files only.
func globFiles(fs afero.Fs, root string, patterns ...string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		matches, err := afero.Glob(fs, filepath.Join(root, p))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			info, err := fs.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			out = append(out, m)
		}
	}
	return out, nil
}

// walkFiles lists regular files below dir, tolerating a missing dir.
func walkFiles(fs afero.Fs, dir string) ([]string, error) {
	var out []string
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.Mode().IsRegular() {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}
