package graph

// ConnectedComponents partitions the nodes of the given symmetric adjacency
// into connected components using breadth-first traversal.  Components are
// numbered in discovery order starting at 0; the numbering is not stable
// across runs, only membership is.  An empty adjacency yields an empty
// partition.
//
// This is the ground-truth computation: LocalGraph maintains its partition
// incrementally on edge insertion but falls back to this after deletions,
// restores, and session loads.
func ConnectedComponents(adjacency map[uint64][]uint64) [][]uint64 {
	var cc [][]uint64
	visited := make(map[uint64]bool, len(adjacency))
	for start := range adjacency {
		if visited[start] {
			continue
		}
		visited[start] = true
		component := []uint64{start}
		queue := []uint64{start}
		for len(queue) > 0 {
			sv := queue[0]
			queue = queue[1:]
			for _, partner := range adjacency[sv] {
				if visited[partner] {
					continue
				}
				visited[partner] = true
				component = append(component, partner)
				queue = append(queue, partner)
			}
		}
		cc = append(cc, component)
	}
	return cc
}
