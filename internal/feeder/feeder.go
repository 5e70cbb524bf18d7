// Package feeder selects the anchors to draw for a frame.
package feeder

import "github.com/geomarker/anchor/pkg/core"

// Reader is the part of the anchor registry the feeder reads.
type Reader interface {
	Entries() []core.AnchorState
}

// Feed returns, ordered by marker id, every stored anchor whose marker is
// fully tracked in this frame's observations. Anchors of markers absent from
// the frame stay in the registry but are not drawn.
func Feed(r Reader, frame []core.MarkerObservation) []core.RenderItem {
	current := make(map[int]core.MarkerObservation, len(frame))
	for _, obs := range frame {
		current[obs.ID] = obs
	}

	items := make([]core.RenderItem, 0, len(frame))
	for _, a := range r.Entries() {
		obs, ok := current[a.MarkerID]
		if !ok || !obs.FullyTracked() {
			continue
		}
		items = append(items, core.RenderItem{MarkerID: a.MarkerID, Pose: a.Pose})
	}
	return items
}
