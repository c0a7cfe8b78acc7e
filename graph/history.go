package graph

// ActionKind tags the mutation that an undo history entry precedes.  The
// string values are part of the persisted session format.
type ActionKind string

const (
	AddSegmentAction ActionKind = "add_segment" // body added without an edge
	DelSegmentAction ActionKind = "del_segment" // body removed from the neuron
	SetAction        ActionKind = "set"         // equivalence edge added
	DelAction        ActionKind = "del"         // equivalence edge deleted
	SplitAction      ActionKind = "split"       // batch isolation split
)

// Action captures the graph state immediately before a mutation.  Graph is a
// deep-copied adjacency snapshot.  Split actions additionally carry the
// edges that were removed so undo can reverse the pending-delete ledger.
type Action struct {
	Kind  ActionKind
	Graph map[uint64][]uint64
	Edges []Edge
}

// DefaultHistoryLength bounds the undo history to the ten most recent
// structural mutations.
const DefaultHistoryLength = 10

// History is a bounded log of pre-mutation snapshots supporting single-step
// undo.  When the bound is exceeded the oldest entry is discarded.
type History struct {
	actions   []Action
	maxLength int
	dirty     bool
}

// NewHistory returns a history bounded to maxLength entries, or
// DefaultHistoryLength if maxLength is not positive.
func NewHistory(maxLength int) *History {
	if maxLength <= 0 {
		maxLength = DefaultHistoryLength
	}
	return &History{maxLength: maxLength}
}

func (h *History) Len() int {
	return len(h.actions)
}

func (h *History) MaxLength() int {
	return h.maxLength
}

// Push appends an entry, discarding the oldest if the bound is exceeded.
func (h *History) Push(a Action) {
	h.actions = append(h.actions, a)
	if len(h.actions) > h.maxLength {
		h.actions = h.actions[len(h.actions)-h.maxLength:]
	}
	h.dirty = true
}

// Pop removes and returns the most recent entry.  The second return value is
// false when there is nothing to undo.
func (h *History) Pop() (Action, bool) {
	if len(h.actions) == 0 {
		return Action{}, false
	}
	a := h.actions[len(h.actions)-1]
	h.actions = h.actions[:len(h.actions)-1]
	h.dirty = true
	return a, true
}

// Actions returns the entries oldest first, for serialization.
func (h *History) Actions() []Action {
	return append([]Action(nil), h.actions...)
}

// Replace swaps in previously persisted entries, truncating from the front
// if they exceed the bound.
func (h *History) Replace(actions []Action) {
	if len(actions) > h.maxLength {
		actions = actions[len(actions)-h.maxLength:]
	}
	h.actions = append([]Action(nil), actions...)
	h.dirty = true
}

// Dirty reports whether the history changed since the last ClearDirty.
func (h *History) Dirty() bool {
	return h.dirty
}

func (h *History) ClearDirty() {
	h.dirty = false
}
