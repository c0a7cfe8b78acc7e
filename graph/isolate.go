package graph

// IsolateSet computes the edges that must be split to fully separate the
// given supervoxels from the rest of the agglomeration: every edge in edges
// with at most one endpoint in the set.  Edges entirely inside the set are
// preserved and not returned.  This matches the remote store's set-isolation
// primitive with excludeEdgesWithinSet=true, so locally computed splits stay
// consistent with what will eventually be pushed upstream.
func IsolateSet(svs []uint64, edges []Edge) []Edge {
	inSet := make(map[uint64]struct{}, len(svs))
	for _, sv := range svs {
		inSet[sv] = struct{}{}
	}
	var toSplit []Edge
	for _, e := range edges {
		_, in0 := inSet[e[0]]
		_, in1 := inSet[e[1]]
		if !in0 || !in1 {
			toSplit = append(toSplit, e)
		}
	}
	return toSplit
}
