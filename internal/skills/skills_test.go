package skills

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCatalog(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "skills.json")

	content := `[
  {"id": "faction-roster", "name": "Faction Roster", "template": "Generate a roster for {{faction}}.", "regions": ["factions"]},
  {"id": "scene-draft", "name": "Scene Draft", "template": "Draft a scene."}
]`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}

	skill, ok := catalog.Get("faction-roster")
	if !ok {
		t.Fatal("faction-roster not found")
	}
	if skill.Name != "Faction Roster" {
		t.Errorf("Name = %s", skill.Name)
	}
	if len(skill.Regions) != 1 || skill.Regions[0] != "factions" {
		t.Errorf("Regions = %v", skill.Regions)
	}

	if _, ok := catalog.Get("ghost"); ok {
		t.Error("Get(ghost) found a skill")
	}
}

func TestLoadCatalogRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty id", `[{"name": "x", "template": "t"}]`},
		{"no template", `[{"id": "x", "name": "x"}]`},
		{"malformed", `{nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "skills.json")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("failed to write catalog: %v", err)
			}
			if _, err := LoadCatalog(path); err == nil {
				t.Error("LoadCatalog() succeeded, want error")
			}
		})
	}
}

func TestSynthesize(t *testing.T) {
	skill := &Skill{
		ID:       "faction-roster",
		Template: "Generate a roster for {{faction}} with {{count}} units.",
	}

	t.Run("placeholders replaced", func(t *testing.T) {
		got := Synthesize(skill, map[string]string{"faction": "Orcs", "count": "5"})
		want := "Generate a roster for Orcs with 5 units."
		if got != want {
			t.Errorf("Synthesize() = %q, want %q", got, want)
		}
	})

	t.Run("leftover params appended as context", func(t *testing.T) {
		got := Synthesize(skill, map[string]string{
			"faction": "Orcs",
			"count":   "5",
			"tone":    "grim",
		})
		want := "Generate a roster for Orcs with 5 units.\n\nContext:\n- tone: grim\n"
		if got != want {
			t.Errorf("Synthesize() = %q, want %q", got, want)
		}
	})

	t.Run("no params", func(t *testing.T) {
		got := Synthesize(skill, nil)
		if got != skill.Template {
			t.Errorf("Synthesize() = %q, want template unchanged", got)
		}
	})
}
