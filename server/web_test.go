package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/janelia-flyem/proofread/brainmaps"
	"github.com/janelia-flyem/proofread/graph"
	"github.com/janelia-flyem/proofread/session"
)

// fakeGraphAPI serves canned agglomeration graphs keyed by supervoxel.
type fakeGraphAPI struct {
	graphs map[uint64]brainmaps.EdgeResult
}

func (f *fakeGraphAPI) GetAggloID(ctx context.Context, sv uint64) (uint64, error) {
	return sv, nil
}

func (f *fakeGraphAPI) GetMembers(ctx context.Context, svs []uint64) (map[uint64][]uint64, error) {
	members := make(map[uint64][]uint64)
	for _, sv := range svs {
		members[sv] = []uint64{sv}
	}
	return members, nil
}

func (f *fakeGraphAPI) GetEdges(ctx context.Context, svs []uint64) (brainmaps.EdgeResult, error) {
	if len(svs) == 1 {
		if result, found := f.graphs[svs[0]]; found {
			return result, nil
		}
	}
	return brainmaps.EdgeResult{Isolated: append([]uint64(nil), svs...)}, nil
}

func (f *fakeGraphAPI) GetGraph(ctx context.Context, svs []uint64) (map[uint64]brainmaps.EdgeResult, error) {
	results := make(map[uint64]brainmaps.EdgeResult, len(svs))
	for _, sv := range svs {
		result, found := f.graphs[sv]
		if !found {
			result = brainmaps.EdgeResult{Isolated: []uint64{sv}}
		}
		results[sv] = result
	}
	return results, nil
}

// newTestServer wires a fresh session and fake remote graph into the API mux.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	proofreader = NewProofreader(session.New(), nil, nil, 0)
	graphClient = &fakeGraphAPI{
		graphs: map[uint64]brainmaps.EdgeResult{
			1: {Edges: []graph.Edge{{1, 2}, {2, 3}, {3, 4}}},
			9: {Isolated: []uint64{9}},
		},
	}
	ts := httptest.NewServer(initRoutes())
	t.Cleanup(func() {
		ts.Close()
		proofreader.Stop()
	})
	return ts
}

func request(t *testing.T, method, url string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, buf.Bytes()
}

func TestWebHelp(t *testing.T) {
	ts := newTestServer(t)
	resp, body := request(t, "GET", ts.URL+"/api/help", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("help status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "/api/body/<supervoxel>") {
		t.Error("help should document the body endpoint")
	}
}

func TestWebServerInfo(t *testing.T) {
	ts := newTestServer(t)
	resp, body := request(t, "GET", ts.URL+"/api/server/info", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("info status %d", resp.StatusCode)
	}
	var info map[string]interface{}
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("info not JSON: %v", err)
	}
	if info["version"] != Version.String() {
		t.Errorf("expected version %s, got %v", Version, info["version"])
	}
}

func TestWebAddAndQueryBody(t *testing.T) {
	ts := newTestServer(t)

	resp, body := request(t, "POST", ts.URL+"/api/body/1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add body status %d: %s", resp.StatusCode, body)
	}
	var info SessionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("add body response not JSON: %v", err)
	}
	if info.NumNodes != 4 || info.NumComponents != 1 {
		t.Errorf("after add body: %+v", info)
	}

	_, body = request(t, "GET", ts.URL+"/api/components", nil)
	var comps struct {
		Components [][]uint64 `json:"components"`
	}
	if err := json.Unmarshal(body, &comps); err != nil {
		t.Fatalf("components not JSON: %v", err)
	}
	if len(comps.Components) != 1 || len(comps.Components[0]) != 4 {
		t.Errorf("components: %v", comps.Components)
	}

	_, body = request(t, "GET", ts.URL+"/api/graph", nil)
	var g struct {
		NeuronGraph map[string][]uint64 `json:"neuron_graph"`
	}
	if err := json.Unmarshal(body, &g); err != nil {
		t.Fatalf("graph not JSON: %v", err)
	}
	if len(g.NeuronGraph) != 4 || len(g.NeuronGraph["2"]) != 2 {
		t.Errorf("graph: %v", g.NeuronGraph)
	}

	_, body = request(t, "GET", ts.URL+"/api/edges?ids=2", nil)
	var edges struct {
		Edges []graph.Edge `json:"edges"`
	}
	if err := json.Unmarshal(body, &edges); err != nil {
		t.Fatalf("edges not JSON: %v", err)
	}
	if len(edges.Edges) != 2 {
		t.Errorf("edges incident to 2: %v", edges.Edges)
	}

	_, body = request(t, "GET", ts.URL+"/api/contains?ids=1,4", nil)
	var contains struct {
		Contains bool `json:"contains"`
	}
	if err := json.Unmarshal(body, &contains); err != nil {
		t.Fatalf("contains not JSON: %v", err)
	}
	if !contains.Contains {
		t.Error("supervoxels 1 and 4 should be local after add body")
	}
	_, body = request(t, "GET", ts.URL+"/api/contains?ids=1,424242", nil)
	if err := json.Unmarshal(body, &contains); err != nil {
		t.Fatalf("contains not JSON: %v", err)
	}
	if contains.Contains {
		t.Error("unknown supervoxel should report contains=false")
	}
}

func TestWebAddIsolatedBody(t *testing.T) {
	ts := newTestServer(t)
	resp, body := request(t, "POST", ts.URL+"/api/body/9", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add isolated body status %d: %s", resp.StatusCode, body)
	}
	var info SessionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if info.NumNodes != 1 || info.NumComponents != 1 || info.NumEdges != 0 {
		t.Errorf("isolated body should be a single-node component: %+v", info)
	}
}

func TestWebEdgeLifecycle(t *testing.T) {
	ts := newTestServer(t)
	request(t, "POST", ts.URL+"/api/body/1", nil)
	request(t, "POST", ts.URL+"/api/body/9", nil)

	resp, body := request(t, "POST", ts.URL+"/api/edge", map[string]interface{}{
		"edge": []uint64{4, 9},
		"locs": [][3]int32{{1, 2, 3}, {4, 5, 6}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set edge status %d: %s", resp.StatusCode, body)
	}

	_, body = request(t, "GET", ts.URL+"/api/pending", nil)
	var pending struct {
		ToSet    []session.EdgePlacement `json:"edges_to_set"`
		ToDelete []graph.Edge            `json:"edges_to_delete"`
	}
	if err := json.Unmarshal(body, &pending); err != nil {
		t.Fatalf("pending not JSON: %v", err)
	}
	if len(pending.ToSet) != 1 || len(pending.ToDelete) != 0 {
		t.Errorf("pending after set: %+v", pending)
	}

	resp, body = request(t, "DELETE", ts.URL+"/api/edge", map[string]interface{}{
		"edge": []uint64{4, 9},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("del edge status %d: %s", resp.StatusCode, body)
	}

	_, body = request(t, "GET", ts.URL+"/api/pending", nil)
	if err := json.Unmarshal(body, &pending); err != nil {
		t.Fatalf("pending not JSON: %v", err)
	}
	if len(pending.ToDelete) != 1 {
		t.Errorf("pending after delete: %+v", pending)
	}

	// Deleting an edge with unknown endpoints is a client error.
	resp, _ = request(t, "DELETE", ts.URL+"/api/edge", map[string]interface{}{
		"edge": []uint64{424242, 424243},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown edge, got %d", resp.StatusCode)
	}
}

func TestWebSplitAndUndo(t *testing.T) {
	ts := newTestServer(t)
	request(t, "POST", ts.URL+"/api/body/1", nil)

	resp, body := request(t, "POST", ts.URL+"/api/split", map[string]interface{}{
		"bodies": []uint64{1, 2},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("split status %d: %s", resp.StatusCode, body)
	}
	var split struct {
		CutEdges []graph.Edge `json:"cut_edges"`
	}
	if err := json.Unmarshal(body, &split); err != nil {
		t.Fatalf("split response not JSON: %v", err)
	}
	if len(split.CutEdges) != 1 || !split.CutEdges[0].Same(graph.Edge{2, 3}) {
		t.Errorf("expected cut [2 3], got %v", split.CutEdges)
	}

	resp, body = request(t, "POST", ts.URL+"/api/undo", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("undo status %d: %s", resp.StatusCode, body)
	}
	var undo struct {
		Undone bool   `json:"undone"`
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &undo); err != nil {
		t.Fatalf("undo response not JSON: %v", err)
	}
	if !undo.Undone || undo.Action != "split" {
		t.Errorf("undo response: %+v", undo)
	}

	_, body = request(t, "GET", ts.URL+"/api/session/info", nil)
	var info SessionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("info not JSON: %v", err)
	}
	if info.NumComponents != 1 || info.PendingDels != 0 {
		t.Errorf("after undo: %+v", info)
	}

	// Empty split body list is a client error.
	resp, _ = request(t, "POST", ts.URL+"/api/split", map[string]interface{}{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty split, got %d", resp.StatusCode)
	}
}

func TestWebNavigation(t *testing.T) {
	ts := newTestServer(t)

	request(t, "POST", ts.URL+"/api/position", map[string]interface{}{
		"pos": [3]float64{10, 20, 30},
	})
	_, body := request(t, "GET", ts.URL+"/api/position", nil)
	var pos struct {
		Pos [3]float64 `json:"pos"`
	}
	if err := json.Unmarshal(body, &pos); err != nil {
		t.Fatalf("position not JSON: %v", err)
	}
	if pos.Pos != [3]float64{10, 20, 30} {
		t.Errorf("position roundtrip: %v", pos.Pos)
	}

	request(t, "POST", ts.URL+"/api/branchpoint", map[string]interface{}{
		"loc": [3]float64{1, 1, 1},
	})
	_, body = request(t, "GET", ts.URL+"/api/branchpoint/next", nil)
	var next struct {
		Found       bool                `json:"found"`
		BranchPoint session.BranchPoint `json:"branch_point"`
	}
	if err := json.Unmarshal(body, &next); err != nil {
		t.Fatalf("branch point not JSON: %v", err)
	}
	if !next.Found || next.BranchPoint.Loc != [3]float64{1, 1, 1} {
		t.Errorf("next branch point: %+v", next)
	}

	_, body = request(t, "GET", ts.URL+"/api/branchpoints", nil)
	var list struct {
		BranchPoints []session.BranchPoint `json:"branch_points"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("branch points not JSON: %v", err)
	}
	if len(list.BranchPoints) != 1 {
		t.Errorf("expected 1 branch point, got %v", list.BranchPoints)
	}

	request(t, "POST", ts.URL+"/api/branchpoint/visit", nil)
	_, body = request(t, "GET", ts.URL+"/api/branchpoint/next", nil)
	if err := json.Unmarshal(body, &next); err != nil {
		t.Fatalf("branch point not JSON: %v", err)
	}
	if next.Found {
		t.Error("all branch points visited, next should report found=false")
	}

	request(t, "POST", ts.URL+"/api/mergerloc", map[string]interface{}{
		"loc": [3]float64{5, 5, 5},
	})
	_, body = request(t, "GET", ts.URL+"/api/session/info", nil)
	var info SessionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("info not JSON: %v", err)
	}
	if info.MergerLocs != 1 {
		t.Errorf("merger location not recorded: %+v", info)
	}
}

func TestWebBadRequests(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		method, path string
		body         interface{}
	}{
		{"POST", "/api/body/not-a-number", nil},
		{"DELETE", "/api/body/424242", nil},
		{"GET", "/api/edges", nil},
		{"GET", "/api/edges?ids=1,bogus", nil},
		{"POST", "/api/edge", nil},
		{"POST", "/api/edge", map[string]interface{}{"edge": []uint64{7, 7}}},
		{"POST", "/api/save", nil},
	}
	for _, c := range cases {
		resp, _ := request(t, c.method, ts.URL+c.path, c.body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s %s: expected 400, got %d", c.method, c.path, resp.StatusCode)
		}
	}
}

func TestWebAuth(t *testing.T) {
	prevAuth := tc.Auth
	tc.Auth = authConfig{SecretKey: "test-secret"}
	defer func() { tc.Auth = prevAuth }()

	proofreader = NewProofreader(session.New(), nil, nil, 0)
	graphClient = &fakeGraphAPI{}
	ts := httptest.NewServer(initRoutes())
	defer func() {
		ts.Close()
		proofreader.Stop()
	}()

	// No Authorization header is rejected.
	resp, _ := request(t, "GET", ts.URL+"/api/session/info", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without JWT, got %d", resp.StatusCode)
	}

	token, err := generateJWT("tester")
	if err != nil {
		t.Fatalf("generate JWT: %v", err)
	}
	req, err := http.NewRequest("GET", ts.URL+"/api/session/info", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	authResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized request: %v", err)
	}
	defer authResp.Body.Close()
	if authResp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with valid JWT, got %d", authResp.StatusCode)
	}

	// A token signed with a different key is rejected.
	req.Header.Set("Authorization", "Bearer bogus.token.here")
	badResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("bad token request: %v", err)
	}
	defer badResp.Body.Close()
	if badResp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 with bad JWT, got %d", badResp.StatusCode)
	}
}
