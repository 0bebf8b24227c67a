package skillscan

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the skill manifest name.
const ManifestFile = "SKILL.md"

// Manifest is the YAML frontmatter of SKILL.md.
type Manifest struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Version     string            `yaml:"version,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty"`
}

// ParseManifest extracts and validates the frontmatter of a SKILL.md file.
func ParseManifest(data []byte) (*Manifest, error) {
	front, err := frontmatter(data)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(front, &m); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if strings.TrimSpace(m.Name) == "" {
		return nil, fmt.Errorf("%w: name", ErrManifestIncomplete)
	}
	if strings.TrimSpace(m.Description) == "" {
		return nil, fmt.Errorf("%w: description", ErrManifestIncomplete)
	}
	return &m, nil
}

// frontmatter returns the text between the leading "---" fences.
func frontmatter(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, []byte("---\n")) {
		return nil, ErrNoFrontmatter
	}
	rest := data[len("---\n"):]

	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated", ErrNoFrontmatter)
	}
	return rest[:end+1], nil
}

// codeLine is a line of a fenced code block with its 1-based line number.
type codeLine struct {
	n    int
	text string
}

// fencedCode returns the lines inside ``` or ~~~ fences of a markdown file.
func fencedCode(data []byte) []codeLine {
	var (
		out   []codeLine
		fence string
		n     int
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		n++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		switch {
		case fence == "" && (strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")):
			fence = trimmed[:3]
		case fence != "" && strings.HasPrefix(trimmed, fence):
			fence = ""
		case fence != "":
			out = append(out, codeLine{n: n, text: line})
		}
	}
	return out
}
