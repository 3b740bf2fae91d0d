// Package skills discovers the SKILL.md packages installed under the marker
// directory and keeps the skill registry in sync with what is on disk.
// Skills are packaged as directories containing a SKILL.md file with
// YAML frontmatter describing the skill's purpose and instructions.
package skills

// Skill represents a discovered skill with its metadata
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Directory   string `json:"directory"`
	Content     string `json:"-"`
}

// Metadata represents the YAML frontmatter in SKILL.md files
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}
