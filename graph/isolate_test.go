package graph

import (
	"reflect"
	"testing"
)

func TestIsolateSet(t *testing.T) {
	edges := []Edge{{1, 2}, {2, 3}, {3, 4}, {5, 6}}
	toSplit := IsolateSet([]uint64{1, 2, 3}, edges)
	want := []Edge{{3, 4}, {5, 6}}
	if !reflect.DeepEqual(toSplit, want) {
		t.Errorf("IsolateSet: got %v, expected %v", toSplit, want)
	}
}

func TestIsolateSetAllInside(t *testing.T) {
	edges := []Edge{{1, 2}, {2, 3}}
	if toSplit := IsolateSet([]uint64{1, 2, 3}, edges); len(toSplit) != 0 {
		t.Errorf("Expected no cut edges for fully internal edge list, got %v", toSplit)
	}
}

func TestIsolateSetEmpty(t *testing.T) {
	if toSplit := IsolateSet(nil, nil); len(toSplit) != 0 {
		t.Errorf("Expected empty result for empty inputs, got %v", toSplit)
	}
	// Empty set: every edge has zero endpoints inside, so all must be cut.
	edges := []Edge{{1, 2}}
	if toSplit := IsolateSet(nil, edges); len(toSplit) != 1 {
		t.Errorf("Expected all edges cut for empty set, got %v", toSplit)
	}
}
