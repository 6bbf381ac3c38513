// Package skills provides the named prompt-template catalog that tasks
// reference by skill id. The execution manager only needs lookup and
// instruction synthesis; authoring and editing skills happens elsewhere.
package skills

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pcovell/genflow/internal/fsutil"
)

// Skill is one reusable generation instruction template.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Template    string   `json:"template"`
	Regions     []string `json:"regions,omitempty"`
}

// Catalog resolves skill ids to skills.
type Catalog interface {
	Get(id string) (*Skill, bool)
}

// MapCatalog is an in-memory catalog.
type MapCatalog map[string]*Skill

// Get implements Catalog.
func (m MapCatalog) Get(id string) (*Skill, bool) {
	skill, ok := m[id]
	return skill, ok
}

// LoadCatalog reads a skill catalog from a JSON file: a list of Skill
// objects.
func LoadCatalog(path string) (MapCatalog, error) {
	var list []*Skill
	if err := fsutil.ReadJSON(path, &list); err != nil {
		return nil, fmt.Errorf("failed to load skill catalog: %w", err)
	}

	catalog := make(MapCatalog, len(list))
	for _, skill := range list {
		if skill.ID == "" {
			return nil, fmt.Errorf("skill catalog %s: skill with empty id", path)
		}
		if skill.Template == "" {
			return nil, fmt.Errorf("skill catalog %s: skill %s has no template", path, skill.ID)
		}
		catalog[skill.ID] = skill
	}
	return catalog, nil
}

// Synthesize renders the skill template into a concrete instruction.
// {{key}} placeholders are replaced from params; params without a
// placeholder are appended as a context block so nothing the caller
// supplied is silently lost.
func Synthesize(skill *Skill, params map[string]string) string {
	instruction := skill.Template

	used := make(map[string]bool, len(params))
	for key, value := range params {
		placeholder := "{{" + key + "}}"
		if strings.Contains(instruction, placeholder) {
			instruction = strings.ReplaceAll(instruction, placeholder, value)
			used[key] = true
		}
	}

	var leftover []string
	for key := range params {
		if !used[key] {
			leftover = append(leftover, key)
		}
	}
	if len(leftover) > 0 {
		sort.Strings(leftover)
		var b strings.Builder
		b.WriteString(instruction)
		b.WriteString("\n\nContext:\n")
		for _, key := range leftover {
			fmt.Fprintf(&b, "- %s: %s\n", key, params[key])
		}
		instruction = b.String()
	}

	return instruction
}
