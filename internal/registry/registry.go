// Package registry holds the current anchor for each marker, keyed by marker id.
package registry

import (
	"sort"
	"sync"

	"github.com/geomarker/anchor/pkg/core"
)

// Registry maps marker ids to their last stable anchor. One anchor per marker.
type Registry struct {
	mu      sync.RWMutex
	anchors map[int]core.AnchorState
}

// New creates an empty Registry
func New() *Registry {
	return &Registry{
		anchors: make(map[int]core.AnchorState),
	}
}

// Get retrieves the anchor for a marker
func (r *Registry) Get(id int) (core.AnchorState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.anchors[id]
	return a, ok
}

// Upsert stores pose as the marker's anchor. CreatedFrame is kept when an
// anchor already exists.
func (r *Registry) Upsert(id int, pose core.Pose, frame uint64) core.AnchorState {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.anchors[id]
	if !ok {
		a = core.AnchorState{MarkerID: id, CreatedFrame: frame}
	}
	a.Pose = pose
	a.UpdatedFrame = frame
	r.anchors[id] = a
	return a
}

// Remove deletes a marker's anchor and reports whether one existed
func (r *Registry) Remove(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.anchors[id]
	delete(r.anchors, id)
	return ok
}

// Len returns the number of anchors
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.anchors)
}

// Entries returns a snapshot of every anchor ordered by marker id.
func (r *Registry) Entries() []core.AnchorState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]core.AnchorState, 0, len(r.anchors))
	for _, a := range r.anchors {
		entries = append(entries, a)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].MarkerID < entries[j].MarkerID })
	return entries
}

// RemoveWhere deletes every anchor matching pred and returns the removed ids in
// ascending order. The predicate runs against a snapshot, so it never observes
// a partially swept registry and may itself call read methods.
func (r *Registry) RemoveWhere(pred func(core.AnchorState) bool) []int {
	var doomed []int
	for _, a := range r.Entries() {
		if pred(a) {
			doomed = append(doomed, a.MarkerID)
		}
	}
	if len(doomed) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range doomed {
		delete(r.anchors, id)
	}
	return doomed
}

// Reset clears all anchors from the registry
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anchors = make(map[int]core.AnchorState)
}
