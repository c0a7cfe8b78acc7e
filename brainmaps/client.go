/*
Package brainmaps retrieves agglomeration information necessary to build
the neuron graph from the remote agglomeration graph service.
*/
package brainmaps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coocood/freecache"

	"github.com/janelia-flyem/proofread/graph"
	"github.com/janelia-flyem/proofread/proofread"
)

const (
	// cacheTTL bounds staleness of cached remote lookups.  Other proofreaders
	// may modify the remote agglomeration, so cached membership and edge
	// responses expire after a minute.
	cacheTTL = 60 * time.Second

	requestTimeout = 5 * time.Minute
)

// Config describes the remote agglomeration graph service.
type Config struct {
	Server  string `toml:"server"`   // base URL
	Volume  string `toml:"volume"`   // volume id: data_src:project:dataset:volume_name
	CacheMB int    `toml:"cache_mb"` // response cache size in MB; 0 disables caching
}

// EdgeResult is the response to an equivalence-edge query.  When the remote
// store has no equivalences for the queried supervoxels, Edges is empty and
// Isolated echoes the inputs: an isolated segment is a valid single-node
// result, not an error.  Callers add Isolated entries as edge-less nodes.
type EdgeResult struct {
	Edges    []graph.Edge
	Isolated []uint64
}

// Client queries the remote agglomeration graph over HTTP.  Responses for
// membership and edge queries are cached.  The client does no retrying or
// authentication; transient failures surface as errors to the caller.
type Client struct {
	server string
	volume string
	client *http.Client
	cache  *freecache.Cache
}

func NewClient(c Config) *Client {
	var cache *freecache.Cache
	if c.CacheMB > 0 {
		cache = freecache.NewCache(c.CacheMB * proofread.Mega)
	}
	return &Client{
		server: strings.TrimRight(c.Server, "/"),
		volume: c.Volume,
		client: &http.Client{Timeout: requestTimeout},
		cache:  cache,
	}
}

// GetAggloID resolves the id of the agglomerated segment to which the given
// supervoxel belongs.
func (c *Client) GetAggloID(ctx context.Context, sv uint64) (uint64, error) {
	var resp struct {
		AggloID uint64 `json:"agglo_id"`
	}
	path := fmt.Sprintf("mapping/%d", sv)
	if err := c.getJSON(ctx, path, nil, &resp); err != nil {
		return 0, fmt.Errorf("could not map supervoxel %d to agglomerated id: %v", sv, err)
	}
	return resp.AggloID, nil
}

// GetMembers retrieves, for each given supervoxel, all members of the
// agglomerated segment to which it belongs.
func (c *Client) GetMembers(ctx context.Context, svs []uint64) (map[uint64][]uint64, error) {
	var resp struct {
		Groups map[string][]uint64 `json:"groups"`
	}
	query := url.Values{"ids": {idsParam(svs)}}
	if err := c.getJSONCached(ctx, "groups", query, &resp); err != nil {
		return nil, fmt.Errorf("could not get members for supervoxels %v: %v", svs, err)
	}
	members := make(map[uint64][]uint64, len(resp.Groups))
	for key, group := range resp.Groups {
		sv, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad supervoxel id %q in groups response: %v", key, err)
		}
		members[sv] = group
	}
	return members, nil
}

// GetEdges retrieves all equivalence edges touching the given supervoxels.
// If the remote store reports no equivalences, the supervoxels are returned
// in EdgeResult.Isolated rather than failing.
func (c *Client) GetEdges(ctx context.Context, svs []uint64) (EdgeResult, error) {
	var resp struct {
		Edges []graph.Edge `json:"edges"`
	}
	query := url.Values{"ids": {idsParam(svs)}}
	if err := c.getJSONCached(ctx, "equivalences", query, &resp); err != nil {
		return EdgeResult{}, fmt.Errorf("could not get edges for supervoxels %v: %v", svs, err)
	}
	if len(resp.Edges) == 0 {
		return EdgeResult{Isolated: append([]uint64(nil), svs...)}, nil
	}
	return EdgeResult{Edges: resp.Edges}, nil
}

// GetGraph retrieves, for each given supervoxel, all edges within the
// agglomerated segment to which it belongs.
func (c *Client) GetGraph(ctx context.Context, svs []uint64) (map[uint64]EdgeResult, error) {
	members, err := c.GetMembers(ctx, svs)
	if err != nil {
		return nil, err
	}
	results := make(map[uint64]EdgeResult, len(svs))
	for _, sv := range svs {
		group, found := members[sv]
		if !found || len(group) == 0 {
			// Supervoxel unknown to the agglomeration: treat as isolated.
			results[sv] = EdgeResult{Isolated: []uint64{sv}}
			continue
		}
		result, err := c.GetEdges(ctx, group)
		if err != nil {
			return nil, err
		}
		results[sv] = result
	}
	return results, nil
}

// getJSONCached is getJSON with a freecache layer keyed on path + query.
func (c *Client) getJSONCached(ctx context.Context, path string, query url.Values, out interface{}) error {
	if c.cache == nil {
		return c.getJSON(ctx, path, query, out)
	}
	key := []byte(path + "?" + query.Encode())
	if cached, err := c.cache.Get(key); err == nil {
		return json.Unmarshal(cached, out)
	}
	body, err := c.getBody(ctx, path, query)
	if err != nil {
		return err
	}
	if err := c.cache.Set(key, body, int(cacheTTL.Seconds())); err != nil {
		proofread.Debugf("unable to cache response for %s: %v\n", key, err)
	}
	return json.Unmarshal(body, out)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	body, err := c.getBody(ctx, path, query)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *Client) getBody(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s/v1/volumes/%s/%s", c.server, url.PathEscape(c.volume), path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote graph service returned %s for %s", resp.Status, u)
	}
	return io.ReadAll(resp.Body)
}

func idsParam(svs []uint64) string {
	parts := make([]string, len(svs))
	for i, sv := range svs {
		parts[i] = strconv.FormatUint(sv, 10)
	}
	return strings.Join(parts, ",")
}
