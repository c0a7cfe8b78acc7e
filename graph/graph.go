/*
Package graph implements the local agglomeration graph for a neuron
proofreading session: supervoxel nodes joined by equivalence edges, with
a connected-component partition that is kept consistent with the graph
through every mutation.
*/
package graph

import (
	"github.com/janelia-flyem/proofread/proofread"
)

// Edge is an unordered pair of distinct supervoxel ids asserting that both
// belong to the same agglomerated body.
type Edge [2]uint64

// Other returns the endpoint of e that is not sv.
func (e Edge) Other(sv uint64) uint64 {
	if sv == e[0] {
		return e[1]
	}
	return e[0]
}

// Same returns true if both edges join the same pair of supervoxels,
// regardless of endpoint order.
func (e Edge) Same(other Edge) bool {
	return (e[0] == other[0] && e[1] == other[1]) || (e[0] == other[1] && e[1] == other[0])
}

// canonical returns the edge with the smaller id first, suitable as a map key.
func (e Edge) canonical() Edge {
	if e[0] > e[1] {
		return Edge{e[1], e[0]}
	}
	return e
}

// LocalGraph is the in-memory agglomeration graph of one neuron under review.
// The adjacency is symmetric: an edge {a,b} is stored in both endpoints'
// partner lists.  A supervoxel with no partners is present as a key with an
// empty partner list.  The component partition is updated incrementally on
// edge insertion and recomputed from scratch after any deletion.
//
// LocalGraph does no internal locking.  All mutations must be serialized by
// the caller (the server routes them through a single actor goroutine).
type LocalGraph struct {
	adjacency map[uint64][]uint64
	cc        [][]uint64
}

func NewLocalGraph() *LocalGraph {
	return &LocalGraph{
		adjacency: make(map[uint64][]uint64),
	}
}

// NumNodes returns the number of supervoxels in the graph.
func (g *LocalGraph) NumNodes() int {
	return len(g.adjacency)
}

// NumEdges returns the number of distinct equivalence edges in the graph.
func (g *LocalGraph) NumEdges() int {
	var n int
	for _, partners := range g.adjacency {
		n += len(partners)
	}
	return n / 2
}

// Has returns true if the supervoxel is a node of the graph.
func (g *LocalGraph) Has(sv uint64) bool {
	_, found := g.adjacency[sv]
	return found
}

// HasAll returns true if every given supervoxel is a node of the graph.
func (g *LocalGraph) HasAll(svs []uint64) bool {
	for _, sv := range svs {
		if _, found := g.adjacency[sv]; !found {
			return false
		}
	}
	return true
}

// AddNode inserts a supervoxel with no partners and makes it a new singleton
// component.  Supervoxels already in the graph are left untouched.
func (g *LocalGraph) AddNode(sv uint64) {
	if _, found := g.adjacency[sv]; found {
		return
	}
	g.adjacency[sv] = []uint64{}
	g.cc = append(g.cc, []uint64{sv})
}

// AddNodes inserts each given supervoxel per AddNode.
func (g *LocalGraph) AddNodes(svs []uint64) {
	for _, sv := range svs {
		g.AddNode(sv)
	}
}

// DelNode removes a supervoxel and all edges incident to it, then recomputes
// the component partition since a deletion can split a component.
func (g *LocalGraph) DelNode(sv uint64) {
	g.DelNodes([]uint64{sv})
}

// DelNodes removes the given supervoxels and their incident edges.  The
// component partition is recomputed once after the whole batch.
func (g *LocalGraph) DelNodes(svs []uint64) {
	for _, sv := range svs {
		delete(g.adjacency, sv)
		for other, partners := range g.adjacency {
			for i, partner := range partners {
				if partner == sv {
					g.adjacency[other] = append(partners[:i], partners[i+1:]...)
					break
				}
			}
		}
	}
	g.cc = ConnectedComponents(g.adjacency)
}

// AddEdge inserts an equivalence edge.  Endpoints missing from the graph are
// added first.  Duplicate edges and self-loops are no-ops.  The component
// partition is updated incrementally, not recomputed.
func (g *LocalGraph) AddEdge(e Edge) {
	if e[0] == e[1] {
		proofread.Debugf("ignoring self-loop edge on supervoxel %d\n", e[0])
		return
	}
	g.AddNode(e[0])
	g.AddNode(e[1])
	if g.isNeighbor(e[0], e[1]) {
		return
	}
	g.adjacency[e[0]] = append(g.adjacency[e[0]], e[1])
	g.adjacency[e[1]] = append(g.adjacency[e[1]], e[0])
	g.mergeComponents(e)
}

// AddEdges inserts each given edge per AddEdge.
func (g *LocalGraph) AddEdges(edges []Edge) {
	for _, e := range edges {
		g.AddEdge(e)
	}
}

// DelEdge removes an equivalence edge and recomputes the component partition.
// An edge whose endpoints are not both in the graph is logged and skipped.
func (g *LocalGraph) DelEdge(e Edge) {
	g.DelEdges([]Edge{e})
}

// DelEdges removes the given edges.  Edges with endpoints missing from the
// graph are logged and skipped; processing continues with the rest of the
// batch.  The component partition is recomputed once after the whole batch.
func (g *LocalGraph) DelEdges(edges []Edge) {
	for _, e := range edges {
		if !g.Has(e[0]) || !g.Has(e[1]) {
			proofread.Errorf("not all supervoxels of edge %v are in the graph, skipping\n", e)
			continue
		}
		g.removeAdjacency(e[0], e[1])
		g.removeAdjacency(e[1], e[0])
	}
	g.cc = ConnectedComponents(g.adjacency)
}

func (g *LocalGraph) removeAdjacency(sv, partner uint64) {
	partners := g.adjacency[sv]
	for i, p := range partners {
		if p == partner {
			g.adjacency[sv] = append(partners[:i], partners[i+1:]...)
			return
		}
	}
}

func (g *LocalGraph) isNeighbor(sv, partner uint64) bool {
	for _, p := range g.adjacency[sv] {
		if p == partner {
			return true
		}
	}
	return false
}

// componentOf returns the index of the component containing sv, or -1.
func (g *LocalGraph) componentOf(sv uint64) int {
	for i, members := range g.cc {
		for _, member := range members {
			if member == sv {
				return i
			}
		}
	}
	return -1
}

// mergeComponents folds a newly inserted edge into the component partition:
// endpoints in two different components merge them, an endpoint outside any
// component joins its partner's, and two unplaced endpoints form a new pair
// component.  Component indices stay contiguous after a merge.
func (g *LocalGraph) mergeComponents(e Edge) {
	iu := g.componentOf(e[0])
	iv := g.componentOf(e[1])
	switch {
	case iu == -1 && iv == -1:
		g.cc = append(g.cc, []uint64{e[0], e[1]})
	case iu == -1:
		g.cc[iv] = append(g.cc[iv], e[0])
	case iv == -1:
		g.cc[iu] = append(g.cc[iu], e[1])
	case iu != iv:
		if iu > iv {
			iu, iv = iv, iu
		}
		g.cc[iu] = append(g.cc[iu], g.cc[iv]...)
		g.cc = append(g.cc[:iv], g.cc[iv+1:]...)
	}
}

// EdgeList returns all distinct edges incident to any of the given
// supervoxels that currently exist in the graph.  Supervoxels not in the
// graph contribute nothing.
func (g *LocalGraph) EdgeList(svs []uint64) []Edge {
	var edges []Edge
	seen := make(map[Edge]struct{})
	for _, sv := range svs {
		partners, found := g.adjacency[sv]
		if !found {
			continue
		}
		for _, partner := range partners {
			key := Edge{sv, partner}.canonical()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			edges = append(edges, Edge{sv, partner})
		}
	}
	return edges
}

// Components returns a copy of the component partition.  Component indices
// are not stable across mutations: callers must reference components by
// membership, never by index, across two different points in time.
func (g *LocalGraph) Components() [][]uint64 {
	out := make([][]uint64, len(g.cc))
	for i, members := range g.cc {
		out[i] = append([]uint64(nil), members...)
	}
	return out
}

// ComponentOf returns the members of the component containing sv.
func (g *LocalGraph) ComponentOf(sv uint64) ([]uint64, bool) {
	i := g.componentOf(sv)
	if i == -1 {
		return nil, false
	}
	return append([]uint64(nil), g.cc[i]...), true
}

// Snapshot returns a deep copy of the adjacency, suitable for the undo
// history since the graph is mutated in place afterward.
func (g *LocalGraph) Snapshot() map[uint64][]uint64 {
	snapshot := make(map[uint64][]uint64, len(g.adjacency))
	for sv, partners := range g.adjacency {
		// Keep empty partner lists non-nil so they serialize as [] not null.
		snapshot[sv] = append(make([]uint64, 0, len(partners)), partners...)
	}
	return snapshot
}

// Restore replaces the graph with a deep copy of the given adjacency and
// recomputes the component partition from scratch.
func (g *LocalGraph) Restore(adjacency map[uint64][]uint64) {
	g.adjacency = make(map[uint64][]uint64, len(adjacency))
	for sv, partners := range adjacency {
		g.adjacency[sv] = append([]uint64(nil), partners...)
	}
	g.cc = ConnectedComponents(g.adjacency)
}

// Adjacency returns a deep copy of the adjacency mapping.
func (g *LocalGraph) Adjacency() map[uint64][]uint64 {
	return g.Snapshot()
}
