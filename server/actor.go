package server

import (
	"fmt"
	"time"

	"github.com/janelia-flyem/proofread/brainmaps"
	"github.com/janelia-flyem/proofread/graph"
	"github.com/janelia-flyem/proofread/mutlog"
	"github.com/janelia-flyem/proofread/proofread"
	"github.com/janelia-flyem/proofread/session"
)

// Proofreader owns a review session.  All access to the session goes through
// a single goroutine consuming a command channel, so the graph and its
// component partition never see concurrent mutation.  Remote graph fetches
// happen in the caller's goroutine before a command is submitted; only the
// local mutation itself is serialized.
type Proofreader struct {
	sess  *session.Session
	store *session.Store
	mlog  *mutlog.Log

	cmds chan func()
	stop chan struct{}
	done chan struct{}

	autosave time.Duration
}

// NewProofreader starts the command loop for the given session.  The store
// and mutation log may be nil, disabling persistence and mutation logging.
func NewProofreader(sess *session.Session, store *session.Store, mlog *mutlog.Log, autosave time.Duration) *Proofreader {
	p := &Proofreader{
		sess:     sess,
		store:    store,
		mlog:     mlog,
		cmds:     make(chan func()),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		autosave: autosave,
	}
	go p.run()
	return p
}

func (p *Proofreader) run() {
	defer close(p.done)
	var ticker *time.Ticker
	var tick <-chan time.Time
	if p.autosave > 0 && p.store != nil {
		ticker = time.NewTicker(p.autosave)
		tick = ticker.C
		defer ticker.Stop()
	}
	for {
		select {
		case f := <-p.cmds:
			f()
		case <-tick:
			if p.sess.Dirty() {
				if err := p.store.Save(p.sess); err != nil {
					proofread.Errorf("autosave failed: %v\n", err)
				}
			}
		case <-p.stop:
			if p.store != nil && p.sess.Dirty() {
				if err := p.store.Save(p.sess); err != nil {
					proofread.Errorf("final save failed: %v\n", err)
				}
			}
			return
		}
	}
}

// do runs f in the command loop and waits for it to finish.
func (p *Proofreader) do(f func()) {
	done := make(chan struct{})
	p.cmds <- func() {
		f()
		close(done)
	}
	<-done
}

// Stop flushes any unsaved state and shuts down the command loop.
func (p *Proofreader) Stop() {
	close(p.stop)
	<-p.done
}

// snapshotAction captures the pre-mutation graph for the undo history.
func (p *Proofreader) snapshotAction(kind graph.ActionKind, edges []graph.Edge) {
	p.sess.History.Push(graph.Action{
		Kind:  kind,
		Graph: p.sess.Graph.Snapshot(),
		Edges: edges,
	})
}

// AddBody splices a remotely fetched agglomerated segment into the local
// graph.  Isolated supervoxels become edge-less nodes.
func (p *Proofreader) AddBody(sv uint64, fetched brainmaps.EdgeResult) {
	p.do(func() {
		p.snapshotAction(graph.AddSegmentAction, nil)
		p.sess.Graph.AddEdges(fetched.Edges)
		p.sess.Graph.AddNodes(fetched.Isolated)
		p.sess.Graph.AddNode(sv)
		p.sess.MarkGraphDirty()
	})
	p.mlog.LogMutation(mutlog.Mutation{
		Action:  string(graph.AddSegmentAction),
		Session: p.sess.UUID,
		Bodies:  []uint64{sv},
	})
}

// DelBody removes the entire connected component containing sv from the
// local graph.  Unknown supervoxels return an error.
func (p *Proofreader) DelBody(sv uint64) error {
	var err error
	var removed []uint64
	p.do(func() {
		component, found := p.sess.Graph.ComponentOf(sv)
		if !found {
			err = fmt.Errorf("supervoxel %d is not in the local graph", sv)
			return
		}
		p.snapshotAction(graph.DelSegmentAction, nil)
		p.sess.Graph.DelNodes(component)
		p.sess.MarkGraphDirty()
		removed = component
	})
	if err != nil {
		return err
	}
	p.mlog.LogMutation(mutlog.Mutation{
		Action:  string(graph.DelSegmentAction),
		Session: p.sess.UUID,
		Bodies:  removed,
	})
	return nil
}

// SetEdge adds an equivalence edge to the local graph and records the
// placement so it can later be pushed to the remote store.
func (p *Proofreader) SetEdge(placement session.EdgePlacement) error {
	var err error
	p.do(func() {
		if placement.Edge[0] == placement.Edge[1] {
			err = fmt.Errorf("can't set a self-edge on supervoxel %d", placement.Edge[0])
			return
		}
		p.snapshotAction(graph.SetAction, nil)
		p.sess.Graph.AddEdge(placement.Edge)
		p.sess.EdgesToSet.Append(placement)
		p.sess.MarkGraphDirty()
	})
	if err != nil {
		return err
	}
	edge := placement.Edge
	p.mlog.LogMutation(mutlog.Mutation{
		Action:  string(graph.SetAction),
		Session: p.sess.UUID,
		Edge:    &edge,
	})
	return nil
}

// DelEdge removes an equivalence edge from the local graph and records it
// for remote deletion.  Both endpoints must be present.
func (p *Proofreader) DelEdge(e graph.Edge) error {
	var err error
	p.do(func() {
		if !p.sess.Graph.Has(e[0]) || !p.sess.Graph.Has(e[1]) {
			err = fmt.Errorf("edge %v has endpoints outside the local graph", e)
			return
		}
		p.snapshotAction(graph.DelAction, nil)
		p.sess.Graph.DelEdge(e)
		p.sess.EdgesToDelete.Append(e)
		p.sess.MarkGraphDirty()
	})
	if err != nil {
		return err
	}
	p.mlog.LogMutation(mutlog.Mutation{
		Action:  string(graph.DelAction),
		Session: p.sess.UUID,
		Edge:    &e,
	})
	return nil
}

// SplitGroup cuts every edge joining the given supervoxels to the rest of
// the graph, isolating them as their own component.  The cut edges are
// recorded for remote deletion and returned.
func (p *Proofreader) SplitGroup(svs []uint64) ([]graph.Edge, error) {
	var err error
	var cut []graph.Edge
	p.do(func() {
		if !p.sess.Graph.HasAll(svs) {
			err = fmt.Errorf("split group %v has supervoxels outside the local graph", svs)
			return
		}
		incident := p.sess.Graph.EdgeList(svs)
		cut = graph.IsolateSet(svs, incident)
		if len(cut) == 0 {
			// Already isolated: no mutation, no history entry.
			return
		}
		p.snapshotAction(graph.SplitAction, cut)
		p.sess.Graph.DelEdges(cut)
		p.sess.EdgesToDelete.Extend(cut)
		p.sess.MarkGraphDirty()
	})
	if err != nil {
		return nil, err
	}
	if len(cut) > 0 {
		p.mlog.LogMutation(mutlog.Mutation{
			Action:  string(graph.SplitAction),
			Session: p.sess.UUID,
			Edges:   cut,
			Bodies:  svs,
		})
	}
	return cut, nil
}

// Undo reverts the most recent mutation, restoring the pre-mutation graph
// and unwinding the pending-write ledgers.  Returns found=false when the
// history is empty.
func (p *Proofreader) Undo() (kind graph.ActionKind, found bool) {
	p.do(func() {
		var action graph.Action
		action, found = p.sess.History.Pop()
		if !found {
			return
		}
		kind = action.Kind
		switch action.Kind {
		case graph.SetAction:
			p.sess.EdgesToSet.PopLast()
		case graph.DelAction:
			p.sess.EdgesToDelete.PopLast()
		case graph.SplitAction:
			p.sess.EdgesToDelete.Subtract(action.Edges)
		}
		p.sess.Graph.Restore(action.Graph)
		p.sess.MarkGraphDirty()
	})
	if found {
		p.mlog.LogMutation(mutlog.Mutation{
			Action:  "undo_" + string(kind),
			Session: p.sess.UUID,
		})
	}
	return
}

// Save writes a snapshot of the session immediately.
func (p *Proofreader) Save() error {
	if p.store == nil {
		return fmt.Errorf("no session store configured")
	}
	var err error
	p.do(func() {
		err = p.store.Save(p.sess)
	})
	return err
}

// --- navigation state ---

// SetPosition records the reviewer's current viewport position.
func (p *Proofreader) SetPosition(pos [3]float64) {
	p.do(func() {
		p.sess.LastPosition = pos
	})
}

// Position returns the last recorded viewport position.
func (p *Proofreader) Position() (pos [3]float64) {
	p.do(func() {
		pos = p.sess.LastPosition
	})
	return
}

// AddBranchPoint flags a location to revisit.
func (p *Proofreader) AddBranchPoint(loc [3]float64) {
	p.do(func() {
		p.sess.BranchPoints.Append(loc)
	})
}

// VisitBranchPoint marks the most recent unvisited branch point visited and
// returns it.
func (p *Proofreader) VisitBranchPoint() (bp session.BranchPoint, found bool) {
	p.do(func() {
		bp, found = p.sess.BranchPoints.VisitLast()
	})
	return
}

// BranchPoints returns all branch points in the order they were set.
func (p *Proofreader) BranchPoints() (points []session.BranchPoint) {
	p.do(func() {
		points = p.sess.BranchPoints.Slice()
	})
	return
}

// NextBranchPoint returns the most recent unvisited branch point without
// marking it.
func (p *Proofreader) NextBranchPoint() (bp session.BranchPoint, found bool) {
	p.do(func() {
		bp, found = p.sess.BranchPoints.NextUnvisited()
	})
	return
}

// AddMergerLoc records the location of a true segmentation merger.
func (p *Proofreader) AddMergerLoc(loc [3]float64) {
	p.do(func() {
		p.sess.MergerLocs.Append(loc)
	})
}

// --- reads ---

// SessionInfo summarizes the session for the info endpoint.
type SessionInfo struct {
	UUID          string `json:"uuid"`
	NumNodes      int    `json:"num_supervoxels"`
	NumEdges      int    `json:"num_edges"`
	NumComponents int    `json:"num_components"`
	PendingSets   int    `json:"pending_edge_sets"`
	PendingDels   int    `json:"pending_edge_deletes"`
	UndoDepth     int    `json:"undo_depth"`
	BranchPoints  int    `json:"branch_points"`
	MergerLocs    int    `json:"merger_locations"`
}

// Info returns a summary of the session state.
func (p *Proofreader) Info() (info SessionInfo) {
	p.do(func() {
		info = SessionInfo{
			UUID:          p.sess.UUID,
			NumNodes:      p.sess.Graph.NumNodes(),
			NumEdges:      p.sess.Graph.NumEdges(),
			NumComponents: len(p.sess.Graph.Components()),
			PendingSets:   p.sess.EdgesToSet.Len(),
			PendingDels:   p.sess.EdgesToDelete.Len(),
			UndoDepth:     p.sess.History.Len(),
			BranchPoints:  p.sess.BranchPoints.Len(),
			MergerLocs:    p.sess.MergerLocs.Len(),
		}
	})
	return
}

// Components returns the current partition of the local graph.
func (p *Proofreader) Components() (components [][]uint64) {
	p.do(func() {
		components = p.sess.Graph.Components()
	})
	return
}

// Adjacency returns a copy of the local graph's adjacency map.
func (p *Proofreader) Adjacency() (adjacency map[uint64][]uint64) {
	p.do(func() {
		adjacency = p.sess.Graph.Adjacency()
	})
	return
}

// PendingEdges returns the pending remote set and delete ledgers.
func (p *Proofreader) PendingEdges() (toSet []session.EdgePlacement, toDelete []graph.Edge) {
	p.do(func() {
		toSet = p.sess.EdgesToSet.Slice()
		toDelete = p.sess.EdgesToDelete.Slice()
	})
	return
}

// Contains reports whether every given supervoxel is in the local graph.
func (p *Proofreader) Contains(svs []uint64) (all bool) {
	p.do(func() {
		all = p.sess.Graph.HasAll(svs)
	})
	return
}

// EdgesFor returns the local edges incident to the given supervoxels.
func (p *Proofreader) EdgesFor(svs []uint64) (edges []graph.Edge) {
	p.do(func() {
		edges = p.sess.Graph.EdgeList(svs)
	})
	return
}
