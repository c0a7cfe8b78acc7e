package session

import (
	"github.com/janelia-flyem/proofread/graph"
	"github.com/janelia-flyem/proofread/proofread"
)

// The ledgers below hold review decisions that have not yet been pushed to
// the remote store.  Each tracks whether it was mutated since the last save
// so autosave only writes when something changed.

// EdgePlacement records an equivalence edge to be set remotely along with
// the voxel locations between which the reviewer placed it.
type EdgePlacement struct {
	Locs [2]proofread.Point3d `json:"locs"`
	Edge graph.Edge           `json:"edge"`
}

// PlacementLedger holds pending remote edge-set requests.  At most one entry
// exists per unordered supervoxel pair; re-placing a pair replaces its entry.
type PlacementLedger struct {
	items []EdgePlacement
	dirty bool
}

// Append records a placement, replacing any earlier placement of the same
// unordered pair so its location can be updated.
func (l *PlacementLedger) Append(p EdgePlacement) {
	kept := l.items[:0]
	for _, item := range l.items {
		if !item.Edge.Same(p.Edge) {
			kept = append(kept, item)
		}
	}
	l.items = append(kept, p)
	l.dirty = true
}

// PopLast removes the most recently appended placement.
func (l *PlacementLedger) PopLast() {
	if len(l.items) == 0 {
		return
	}
	l.items = l.items[:len(l.items)-1]
	l.dirty = true
}

// ReplaceAll swaps in previously persisted entries.
func (l *PlacementLedger) ReplaceAll(items []EdgePlacement) {
	l.items = append([]EdgePlacement(nil), items...)
	l.dirty = true
}

func (l *PlacementLedger) Slice() []EdgePlacement {
	return append([]EdgePlacement(nil), l.items...)
}

func (l *PlacementLedger) Len() int    { return len(l.items) }
func (l *PlacementLedger) Dirty() bool { return l.dirty }
func (l *PlacementLedger) ClearDirty() { l.dirty = false }

// EdgeLedger holds pending remote edge-delete requests.
type EdgeLedger struct {
	items []graph.Edge
	dirty bool
}

func (l *EdgeLedger) Append(e graph.Edge) {
	l.items = append(l.items, e)
	l.dirty = true
}

func (l *EdgeLedger) Extend(edges []graph.Edge) {
	if len(edges) == 0 {
		return
	}
	l.items = append(l.items, edges...)
	l.dirty = true
}

// PopLast removes the most recently appended edge.
func (l *EdgeLedger) PopLast() {
	if len(l.items) == 0 {
		return
	}
	l.items = l.items[:len(l.items)-1]
	l.dirty = true
}

// Subtract removes every ledger entry matching one of the given edges,
// endpoint order ignored.  Used when a batch split is undone.
func (l *EdgeLedger) Subtract(edges []graph.Edge) {
	if len(edges) == 0 {
		return
	}
	kept := l.items[:0]
	for _, item := range l.items {
		removed := false
		for _, e := range edges {
			if item.Same(e) {
				removed = true
				break
			}
		}
		if !removed {
			kept = append(kept, item)
		}
	}
	l.items = kept
	l.dirty = true
}

func (l *EdgeLedger) ReplaceAll(items []graph.Edge) {
	l.items = append([]graph.Edge(nil), items...)
	l.dirty = true
}

func (l *EdgeLedger) Slice() []graph.Edge {
	return append([]graph.Edge(nil), l.items...)
}

func (l *EdgeLedger) Len() int    { return len(l.items) }
func (l *EdgeLedger) Dirty() bool { return l.dirty }
func (l *EdgeLedger) ClearDirty() { l.dirty = false }

// BranchPoint is a viewport location the reviewer flagged as a branch to
// revisit, with its revision status.
type BranchPoint struct {
	Loc     [3]float64 `json:"loc"`
	Visited bool       `json:"visited"`
}

// BranchLedger holds branch points in the order they were set.
type BranchLedger struct {
	items []BranchPoint
	dirty bool
}

// Append records a branch point unless the same location is already present.
func (l *BranchLedger) Append(loc [3]float64) {
	for _, item := range l.items {
		if item.Loc == loc {
			return
		}
	}
	l.items = append(l.items, BranchPoint{Loc: loc})
	l.dirty = true
}

// VisitLast flags the most recently set unvisited branch point as visited
// and returns it.  The second return value is false when none remain.
func (l *BranchLedger) VisitLast() (BranchPoint, bool) {
	for i := len(l.items) - 1; i >= 0; i-- {
		if !l.items[i].Visited {
			l.items[i].Visited = true
			l.dirty = true
			return l.items[i], true
		}
	}
	return BranchPoint{}, false
}

// NextUnvisited returns the most recently set branch point not yet visited.
func (l *BranchLedger) NextUnvisited() (BranchPoint, bool) {
	for i := len(l.items) - 1; i >= 0; i-- {
		if !l.items[i].Visited {
			return l.items[i], true
		}
	}
	return BranchPoint{}, false
}

func (l *BranchLedger) ReplaceAll(items []BranchPoint) {
	l.items = append([]BranchPoint(nil), items...)
	l.dirty = true
}

func (l *BranchLedger) Slice() []BranchPoint {
	return append([]BranchPoint(nil), l.items...)
}

func (l *BranchLedger) Len() int    { return len(l.items) }
func (l *BranchLedger) Dirty() bool { return l.dirty }
func (l *BranchLedger) ClearDirty() { l.dirty = false }

// CoordLedger holds plain viewport coordinates, used for true segmentation
// merger locations.
type CoordLedger struct {
	items [][3]float64
	dirty bool
}

func (l *CoordLedger) Append(loc [3]float64) {
	l.items = append(l.items, loc)
	l.dirty = true
}

func (l *CoordLedger) ReplaceAll(items [][3]float64) {
	l.items = append([][3]float64(nil), items...)
	l.dirty = true
}

func (l *CoordLedger) Slice() [][3]float64 {
	return append([][3]float64(nil), l.items...)
}

func (l *CoordLedger) Len() int    { return len(l.items) }
func (l *CoordLedger) Dirty() bool { return l.dirty }
func (l *CoordLedger) ClearDirty() { l.dirty = false }
