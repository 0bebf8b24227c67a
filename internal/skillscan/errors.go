package skillscan

import "errors"

var (
	// ErrSkillNotFound is returned when the skill directory does not exist.
	ErrSkillNotFound = errors.New("skill directory not found")

	// ErrNotDirectory is returned when the skill path is not a directory.
	ErrNotDirectory = errors.New("skill path is not a directory")

	// ErrNoFrontmatter is returned when SKILL.md has no YAML frontmatter block.
	ErrNoFrontmatter = errors.New("no frontmatter block")

	// ErrManifestIncomplete is returned when required manifest fields are empty.
	ErrManifestIncomplete = errors.New("manifest missing required field")
)
