package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/cors"
	"github.com/zenazn/goji/web"

	"github.com/janelia-flyem/proofread/graph"
	"github.com/janelia-flyem/proofread/proofread"
	"github.com/janelia-flyem/proofread/session"
)

const webHelp = `
HTTP API for the proofread server

All POST/DELETE bodies and all responses are JSON.

 GET  /api/help                    This message.
 GET  /api/server/info             Server version, note, uptime.
 GET  /api/server/token?u=<user>   JWT for the given user (auth must be enabled).

 GET  /api/session/info            Session summary: counts of nodes, edges,
                                   components, pending writes, undo depth.
 GET  /api/graph                   Local adjacency map (supervoxel keys as strings).
 GET  /api/components              Connected components of the local graph.
 GET  /api/edges?ids=1,2,...       Local edges incident to the given supervoxels.
 GET  /api/contains?ids=1,2,...    Whether all given supervoxels are local.
 GET  /api/pending                 Pending remote edge sets and deletes.

 POST   /api/body/<supervoxel>     Fetch the agglomerated segment containing the
                                   supervoxel and splice it into the local graph.
 DELETE /api/body/<supervoxel>     Remove the whole component containing the
                                   supervoxel from the local graph.
 POST   /api/edge                  {"edge": [a, b], "locs": [[x,y,z],[x,y,z]]}
                                   Add an equivalence edge.
 DELETE /api/edge                  {"edge": [a, b]}  Delete an equivalence edge.
 POST   /api/split                 {"bodies": [sv, ...]}  Cut all edges joining
                                   the listed supervoxels to the rest of the graph.
 POST   /api/undo                  Revert the most recent mutation.
 POST   /api/save                  Snapshot the session immediately.

 GET  /api/position                Last recorded viewport position.
 POST /api/position                {"pos": [x, y, z]}
 GET  /api/branchpoints            All flagged branch points in order set.
 POST /api/branchpoint             {"loc": [x, y, z]}  Flag a branch to revisit.
 POST /api/branchpoint/visit       Mark the most recent unvisited branch point
                                   visited and return it.
 GET  /api/branchpoint/next        Most recent unvisited branch point.
 POST /api/mergerloc               {"loc": [x, y, z]}  Record a true segmentation
                                   merger location.
`

// package-level handles set by Serve (or directly by tests).
var (
	proofreader *Proofreader
	graphClient GraphAPI
)

// BadRequest writes a formatted message to the log and to the client.
func BadRequest(w http.ResponseWriter, r *http.Request, message interface{}, args ...interface{}) {
	var errorMsg string
	switch v := message.(type) {
	case string:
		errorMsg = fmt.Sprintf(v, args...)
	case error:
		errorMsg = v.Error()
	default:
		errorMsg = fmt.Sprintf("%v", v)
	}
	errorMsg += fmt.Sprintf(" (%s).", r.URL)
	proofread.Errorf("Bad request: %s\n", errorMsg)
	http.Error(w, errorMsg, http.StatusBadRequest)
}

func jsonResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		proofread.Errorf("Error writing JSON response: %v\n", err)
	}
}

// initRoutes wires the API onto a fresh goji mux.
func initRoutes() *web.Mux {
	m := web.New()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: tc.Server.CorsDomains,
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	m.Use(corsHandler.Handler)
	if AuthEnabled() {
		m.Use(isAuthorized)
	}

	m.Get("/api/help", helpHandler)
	m.Get("/api/server/info", serverInfoHandler)
	m.Get("/api/server/token", tokenHandler)

	m.Get("/api/session/info", sessionInfoHandler)
	m.Get("/api/graph", graphHandler)
	m.Get("/api/components", componentsHandler)
	m.Get("/api/edges", edgesHandler)
	m.Get("/api/contains", containsHandler)
	m.Get("/api/pending", pendingHandler)

	m.Post("/api/body/:supervoxel", addBodyHandler)
	m.Delete("/api/body/:supervoxel", delBodyHandler)
	m.Post("/api/edge", setEdgeHandler)
	m.Delete("/api/edge", delEdgeHandler)
	m.Post("/api/split", splitHandler)
	m.Post("/api/undo", undoHandler)
	m.Post("/api/save", saveHandler)

	m.Get("/api/position", getPositionHandler)
	m.Post("/api/position", setPositionHandler)
	m.Get("/api/branchpoints", listBranchPointsHandler)
	m.Post("/api/branchpoint", addBranchPointHandler)
	m.Post("/api/branchpoint/visit", visitBranchPointHandler)
	m.Get("/api/branchpoint/next", nextBranchPointHandler)
	m.Post("/api/mergerloc", addMergerHandler)

	return m
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, webHelp)
}

func serverInfoHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]interface{}{
		"version": Version.String(),
		"note":    Note(),
		"host":    tc.Server.Host,
		"uptime":  Uptime(),
		"session": proofreader.Info(),
	})
}

func tokenHandler(w http.ResponseWriter, r *http.Request) {
	if !AuthEnabled() {
		BadRequest(w, r, "server is running without authentication")
		return
	}
	user := r.URL.Query().Get("u")
	if user == "" {
		BadRequest(w, r, "token request requires a 'u' query string")
		return
	}
	token, err := generateJWT(user)
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	jsonResponse(w, map[string]string{"token": token})
}

func sessionInfoHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, proofreader.Info())
}

func graphHandler(w http.ResponseWriter, r *http.Request) {
	adjacency := proofreader.Adjacency()
	out := make(map[string][]uint64, len(adjacency))
	for sv, partners := range adjacency {
		out[strconv.FormatUint(sv, 10)] = partners
	}
	jsonResponse(w, map[string]interface{}{"neuron_graph": out})
}

func componentsHandler(w http.ResponseWriter, r *http.Request) {
	components := proofreader.Components()
	if components == nil {
		components = [][]uint64{}
	}
	jsonResponse(w, map[string]interface{}{"components": components})
}

func edgesHandler(w http.ResponseWriter, r *http.Request) {
	svs, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	edges := proofreader.EdgesFor(svs)
	if edges == nil {
		edges = []graph.Edge{}
	}
	jsonResponse(w, map[string]interface{}{"edges": edges})
}

func containsHandler(w http.ResponseWriter, r *http.Request) {
	svs, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	jsonResponse(w, map[string]bool{"contains": proofreader.Contains(svs)})
}

func pendingHandler(w http.ResponseWriter, r *http.Request) {
	toSet, toDelete := proofreader.PendingEdges()
	if toSet == nil {
		toSet = []session.EdgePlacement{}
	}
	if toDelete == nil {
		toDelete = []graph.Edge{}
	}
	jsonResponse(w, map[string]interface{}{
		"edges_to_set":    toSet,
		"edges_to_delete": toDelete,
	})
}

func addBodyHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sv, err := strconv.ParseUint(c.URLParams["supervoxel"], 10, 64)
	if err != nil {
		BadRequest(w, r, "bad supervoxel id %q: %v", c.URLParams["supervoxel"], err)
		return
	}
	// Remote fetch happens here, outside the command loop, so a slow
	// agglomeration server never blocks local mutations.
	results, err := graphClient.GetGraph(r.Context(), []uint64{sv})
	if err != nil {
		BadRequest(w, r, "could not fetch graph for supervoxel %d: %v", sv, err)
		return
	}
	proofreader.AddBody(sv, results[sv])
	jsonResponse(w, proofreader.Info())
}

func delBodyHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sv, err := strconv.ParseUint(c.URLParams["supervoxel"], 10, 64)
	if err != nil {
		BadRequest(w, r, "bad supervoxel id %q: %v", c.URLParams["supervoxel"], err)
		return
	}
	if err := proofreader.DelBody(sv); err != nil {
		BadRequest(w, r, err)
		return
	}
	jsonResponse(w, proofreader.Info())
}

type edgeRequest struct {
	Edge graph.Edge            `json:"edge"`
	Locs *[2]proofread.Point3d `json:"locs,omitempty"`
}

func setEdgeHandler(w http.ResponseWriter, r *http.Request) {
	var req edgeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		BadRequest(w, r, err)
		return
	}
	placement := session.EdgePlacement{Edge: req.Edge}
	if req.Locs != nil {
		placement.Locs = *req.Locs
	}
	if err := proofreader.SetEdge(placement); err != nil {
		BadRequest(w, r, err)
		return
	}
	jsonResponse(w, proofreader.Info())
}

func delEdgeHandler(w http.ResponseWriter, r *http.Request) {
	var req edgeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		BadRequest(w, r, err)
		return
	}
	if err := proofreader.DelEdge(req.Edge); err != nil {
		BadRequest(w, r, err)
		return
	}
	jsonResponse(w, proofreader.Info())
}

func splitHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bodies []uint64 `json:"bodies"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		BadRequest(w, r, err)
		return
	}
	if len(req.Bodies) == 0 {
		BadRequest(w, r, "split requires a non-empty 'bodies' list")
		return
	}
	cut, err := proofreader.SplitGroup(req.Bodies)
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	if cut == nil {
		cut = []graph.Edge{}
	}
	jsonResponse(w, map[string]interface{}{"cut_edges": cut})
}

func undoHandler(w http.ResponseWriter, r *http.Request) {
	kind, found := proofreader.Undo()
	jsonResponse(w, map[string]interface{}{
		"undone": found,
		"action": string(kind),
	})
}

func saveHandler(w http.ResponseWriter, r *http.Request) {
	if err := proofreader.Save(); err != nil {
		BadRequest(w, r, err)
		return
	}
	jsonResponse(w, map[string]bool{"saved": true})
}

func getPositionHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]interface{}{"pos": proofreader.Position()})
}

func setPositionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pos [3]float64 `json:"pos"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		BadRequest(w, r, err)
		return
	}
	proofreader.SetPosition(req.Pos)
	jsonResponse(w, map[string]bool{"ok": true})
}

func addBranchPointHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Loc [3]float64 `json:"loc"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		BadRequest(w, r, err)
		return
	}
	proofreader.AddBranchPoint(req.Loc)
	jsonResponse(w, map[string]bool{"ok": true})
}

func listBranchPointsHandler(w http.ResponseWriter, r *http.Request) {
	points := proofreader.BranchPoints()
	if points == nil {
		points = []session.BranchPoint{}
	}
	jsonResponse(w, map[string]interface{}{"branch_points": points})
}

func visitBranchPointHandler(w http.ResponseWriter, r *http.Request) {
	bp, found := proofreader.VisitBranchPoint()
	jsonResponse(w, map[string]interface{}{"found": found, "branch_point": bp})
}

func nextBranchPointHandler(w http.ResponseWriter, r *http.Request) {
	bp, found := proofreader.NextBranchPoint()
	jsonResponse(w, map[string]interface{}{"found": found, "branch_point": bp})
}

func addMergerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Loc [3]float64 `json:"loc"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		BadRequest(w, r, err)
		return
	}
	proofreader.AddMergerLoc(req.Loc)
	jsonResponse(w, map[string]bool{"ok": true})
}

// maxRequestBody bounds JSON request bodies; proofreading requests are tiny.
const maxRequestBody = 1 * proofread.Mega

func decodeJSONBody(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return fmt.Errorf("can't read request body: %v", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("request requires a JSON body")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("bad JSON in request body: %v", err)
	}
	return nil
}

func parseIDs(param string) ([]uint64, error) {
	if param == "" {
		return nil, fmt.Errorf("request requires an 'ids' query string of comma-separated supervoxel ids")
	}
	parts := strings.Split(param, ",")
	svs := make([]uint64, 0, len(parts))
	for _, part := range parts {
		sv, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad supervoxel id %q: %v", part, err)
		}
		svs = append(svs, sv)
	}
	return svs, nil
}
