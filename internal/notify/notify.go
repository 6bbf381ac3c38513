// Package notify tells the consuming UI/business layer which data
// regions a completed task may have mutated, so it can invalidate its
// cached views without this core knowing their shape.
package notify

import (
	"strings"
	"sync"

	"github.com/pcovell/genflow/internal/session"
)

// Region names an abstract slice of downstream data.
type Region string

const (
	RegionAssets   Region = "assets"
	RegionFactions Region = "factions"
	RegionScenes   Region = "scenes"
	RegionProject  Region = "project"
)

// skillRegions is the static task-kind → affected-regions mapping.
// Direct-prompt tasks carry their regions in the "regions" context param
// instead (comma-separated).
var skillRegions = map[string][]Region{
	"asset-batch":    {RegionAssets},
	"asset-variants": {RegionAssets},
	"faction-roster": {RegionFactions},
	"faction-lore":   {RegionFactions},
	"scene-draft":    {RegionScenes},
	"scene-expand":   {RegionScenes},
	"project-brief":  {RegionProject},
}

// RegionsFor returns the regions a task's completion may have touched.
// Tasks with no mapping mutate nothing the downstream layer caches.
func RegionsFor(task *session.Task) []Region {
	if task.SkillID != "" {
		return skillRegions[task.SkillID]
	}

	raw, ok := task.ContextParams["regions"]
	if !ok {
		return nil
	}
	var regions []Region
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			regions = append(regions, Region(part))
		}
	}
	return regions
}

// Notifier fans completed-task region sets out to subscribers.
type Notifier struct {
	mu   sync.Mutex
	subs []func([]Region)
}

// Subscribe registers a callback invoked with the affected regions each
// time a data-mutating task completes.
func (n *Notifier) Subscribe(fn func([]Region)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

// TaskCompleted notifies subscribers if the task maps to any regions.
func (n *Notifier) TaskCompleted(task *session.Task) {
	regions := RegionsFor(task)
	if len(regions) == 0 {
		return
	}

	n.mu.Lock()
	subs := make([]func([]Region), len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, fn := range subs {
		fn(regions)
	}
}
