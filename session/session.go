package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/twinj/uuid"

	"github.com/janelia-flyem/proofread/graph"
)

// Session is the full reviewing state for one neuron: the local equivalence
// graph, the pending remote-write ledgers, navigation aids, and the undo
// history.  A Session is not safe for concurrent use; the server confines
// all access to a single goroutine.
type Session struct {
	UUID string

	Graph         *graph.LocalGraph
	EdgesToSet    *PlacementLedger
	EdgesToDelete *EdgeLedger
	BranchPoints  *BranchLedger
	MergerLocs    *CoordLedger
	History       *graph.History

	LastPosition [3]float64

	graphDirty bool
}

// New returns an empty session with a fresh identifier and the default undo
// bound.
func New() *Session {
	return &Session{
		UUID:          uuid.NewV4().String(),
		Graph:         graph.NewLocalGraph(),
		EdgesToSet:    &PlacementLedger{},
		EdgesToDelete: &EdgeLedger{},
		BranchPoints:  &BranchLedger{},
		MergerLocs:    &CoordLedger{},
		History:       graph.NewHistory(graph.DefaultHistoryLength),
	}
}

// MarkGraphDirty flags the graph as modified since the last save.
func (s *Session) MarkGraphDirty() {
	s.graphDirty = true
}

// Dirty returns true if any part of the session changed since the last save.
func (s *Session) Dirty() bool {
	return s.graphDirty || s.EdgesToSet.Dirty() || s.EdgesToDelete.Dirty() ||
		s.BranchPoints.Dirty() || s.MergerLocs.Dirty() || s.History.Dirty()
}

// ClearDirty resets all modification flags, typically after a save.
func (s *Session) ClearDirty() {
	s.graphDirty = false
	s.EdgesToSet.ClearDirty()
	s.EdgesToDelete.ClearDirty()
	s.BranchPoints.ClearDirty()
	s.MergerLocs.ClearDirty()
	s.History.ClearDirty()
}

// persistedAction is the on-disk form of an undo history entry.
type persistedAction struct {
	Kind  string              `json:"kind"`
	Graph map[string][]uint64 `json:"graph"`
	Edges []graph.Edge        `json:"edges,omitempty"`
}

// persistedSession is the on-disk JSON form of a Session.  Supervoxel ids
// used as object keys are serialized as decimal strings since JSON object
// keys must be strings.
type persistedSession struct {
	UUID          string              `json:"uuid"`
	NeuronGraph   map[string][]uint64 `json:"neuron_graph"`
	EdgesToSet    []EdgePlacement     `json:"edges_to_set"`
	EdgesToDelete []graph.Edge        `json:"edges_to_delete"`
	ActionHistory []persistedAction   `json:"action_history"`
	BranchPoints  []BranchPoint       `json:"branch_points"`
	MergerLocs    [][3]float64        `json:"merger_locations"`
	LastPosition  [3]float64          `json:"last_position"`
	SavedAt       string              `json:"saved_at"`
}

func stringifyKeys(adjacency map[uint64][]uint64) map[string][]uint64 {
	out := make(map[string][]uint64, len(adjacency))
	for sv, partners := range adjacency {
		out[strconv.FormatUint(sv, 10)] = partners
	}
	return out
}

func uintifyKeys(adjacency map[string][]uint64) (map[uint64][]uint64, error) {
	out := make(map[uint64][]uint64, len(adjacency))
	for key, partners := range adjacency {
		sv, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad supervoxel key %q: %v", key, err)
		}
		if partners == nil {
			partners = []uint64{}
		}
		out[sv] = partners
	}
	return out, nil
}

// Encode serializes the session to its persisted JSON form.
func (s *Session) Encode() ([]byte, error) {
	p := persistedSession{
		UUID:          s.UUID,
		NeuronGraph:   stringifyKeys(s.Graph.Adjacency()),
		EdgesToSet:    s.EdgesToSet.Slice(),
		EdgesToDelete: s.EdgesToDelete.Slice(),
		BranchPoints:  s.BranchPoints.Slice(),
		MergerLocs:    s.MergerLocs.Slice(),
		LastPosition:  s.LastPosition,
		SavedAt:       time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, a := range s.History.Actions() {
		p.ActionHistory = append(p.ActionHistory, persistedAction{
			Kind:  string(a.Kind),
			Graph: stringifyKeys(a.Graph),
			Edges: a.Edges,
		})
	}
	if p.EdgesToSet == nil {
		p.EdgesToSet = []EdgePlacement{}
	}
	if p.EdgesToDelete == nil {
		p.EdgesToDelete = []graph.Edge{}
	}
	if p.ActionHistory == nil {
		p.ActionHistory = []persistedAction{}
	}
	if p.BranchPoints == nil {
		p.BranchPoints = []BranchPoint{}
	}
	if p.MergerLocs == nil {
		p.MergerLocs = [][3]float64{}
	}
	return json.Marshal(p)
}

// Decode reconstructs a session from its persisted JSON form.  The data is
// validated against the session schema first; callers should fall back to
// New on error rather than aborting a review.
func Decode(data []byte) (*Session, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var p persistedSession
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("can't unmarshal session: %v", err)
	}
	adjacency, err := uintifyKeys(p.NeuronGraph)
	if err != nil {
		return nil, err
	}

	s := New()
	if p.UUID != "" {
		s.UUID = p.UUID
	}
	s.Graph.Restore(adjacency)
	s.EdgesToSet.ReplaceAll(p.EdgesToSet)
	s.EdgesToDelete.ReplaceAll(p.EdgesToDelete)
	s.BranchPoints.ReplaceAll(p.BranchPoints)
	s.MergerLocs.ReplaceAll(p.MergerLocs)
	s.LastPosition = p.LastPosition

	actions := make([]graph.Action, 0, len(p.ActionHistory))
	for _, pa := range p.ActionHistory {
		snapshot, err := uintifyKeys(pa.Graph)
		if err != nil {
			return nil, fmt.Errorf("action history entry: %v", err)
		}
		actions = append(actions, graph.Action{
			Kind:  graph.ActionKind(pa.Kind),
			Graph: snapshot,
			Edges: pa.Edges,
		})
	}
	s.History.Replace(actions)

	s.ClearDirty()
	return s, nil
}

// Summary returns a one-line description used in logs.
func (s *Session) Summary() string {
	return fmt.Sprintf("session %s: %d supervoxels, %d edges, %d components, %d pending sets, %d pending deletes",
		s.UUID, s.Graph.NumNodes(), s.Graph.NumEdges(), len(s.Graph.Components()),
		s.EdgesToSet.Len(), s.EdgesToDelete.Len())
}
