package executor

import (
	"sync"

	"github.com/contextbridge/backend/internal/dom"
)

// artifact is a live UI element plus its pending auto-close timer, if any.
type artifact struct {
	el    dom.Element
	timer CancelHandle
}

// artifactRegistry tracks the executor's live UI artifacts. Notifications
// and modals are keyed by instruction id; tooltips are keyed by the target
// element's id, so at most one tooltip per target may exist. The registry
// is owned exclusively by the executor.
type artifactRegistry struct {
	mu            sync.Mutex
	notifications map[string]artifact
	modals        map[string]artifact
	tooltips      map[string]artifact
}

func newArtifactRegistry() *artifactRegistry {
	return &artifactRegistry{
		notifications: make(map[string]artifact),
		modals:        make(map[string]artifact),
		tooltips:      make(map[string]artifact),
	}
}

// put stores an artifact in the given map, returning any displaced entry.
func (r *artifactRegistry) put(m map[string]artifact, key string, a artifact) (artifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, existed := m[key]
	m[key] = a
	return old, existed
}

// take removes and returns an entry. Removing an absent key is a no-op.
func (r *artifactRegistry) take(m map[string]artifact, key string) (artifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := m[key]
	if ok {
		delete(m, key)
	}
	return a, ok
}

// drain removes and returns all entries from all maps.
func (r *artifactRegistry) drain() []artifact {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []artifact
	for _, m := range []map[string]artifact{r.notifications, r.modals, r.tooltips} {
		for k, a := range m {
			all = append(all, a)
			delete(m, k)
		}
	}
	return all
}

// counts reports registry sizes, used by tests and stats.
func (r *artifactRegistry) counts() (notifications, modals, tooltips int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications), len(r.modals), len(r.tooltips)
}
