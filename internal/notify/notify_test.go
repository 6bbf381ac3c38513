package notify

import (
	"testing"

	"github.com/pcovell/genflow/internal/session"
)

func TestRegionsFor(t *testing.T) {
	tests := []struct {
		name string
		task *session.Task
		want []Region
	}{
		{
			name: "mapped skill",
			task: &session.Task{ID: "t1", SkillID: "faction-roster"},
			want: []Region{RegionFactions},
		},
		{
			name: "unmapped skill mutates nothing",
			task: &session.Task{ID: "t1", SkillID: "summarize-logs"},
			want: nil,
		},
		{
			name: "direct prompt with regions param",
			task: &session.Task{
				ID:            "t1",
				DirectPrompt:  "rewrite the orc lore",
				ContextParams: map[string]string{"regions": "factions, assets"},
			},
			want: []Region{RegionFactions, RegionAssets},
		},
		{
			name: "direct prompt without regions param",
			task: &session.Task{ID: "t1", DirectPrompt: "explain the ruleset"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RegionsFor(tt.task)
			if len(got) != len(tt.want) {
				t.Fatalf("RegionsFor() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("RegionsFor()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNotifierFansOut(t *testing.T) {
	var notifier Notifier

	var first, second [][]Region
	notifier.Subscribe(func(regions []Region) { first = append(first, regions) })
	notifier.Subscribe(func(regions []Region) { second = append(second, regions) })

	notifier.TaskCompleted(&session.Task{ID: "t1", SkillID: "scene-draft"})
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("subscriber calls = %d/%d, want 1/1", len(first), len(second))
	}
	if first[0][0] != RegionScenes {
		t.Errorf("regions = %v, want scenes", first[0])
	}

	// Non-mutating tasks do not notify.
	notifier.TaskCompleted(&session.Task{ID: "t2", DirectPrompt: "just tell me"})
	if len(first) != 1 {
		t.Errorf("non-mutating task notified subscribers")
	}
}
