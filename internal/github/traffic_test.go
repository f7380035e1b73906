package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trafficServer serves the four traffic endpoints for testuser/testrepo,
// with per-metric response overrides.
func trafficServer(t *testing.T, overrides map[string]http.HandlerFunc) (*httptest.Server, *[]string) {
	t.Helper()

	var order []string
	mux := http.NewServeMux()

	register := func(path, metric, body string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			order = append(order, metric)
			if override, ok := overrides[metric]; ok {
				override(w, r)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(body))
		})
	}

	register("/repos/testuser/testrepo/traffic/views", "views",
		`{"count": 10, "uniques": 3, "views": [{"timestamp": "2023-06-01T00:00:00Z", "count": 10, "uniques": 3}]}`)
	register("/repos/testuser/testrepo/traffic/clones", "clones",
		`{"count": 2, "uniques": 1, "clones": [{"timestamp": "2023-06-01T00:00:00Z", "count": 2, "uniques": 1}]}`)
	register("/repos/testuser/testrepo/traffic/popular/referrers", "referrers",
		`[{"referrer": "github.com", "count": 4, "uniques": 2}]`)
	register("/repos/testuser/testrepo/traffic/popular/paths", "paths",
		`[{"path": "/testuser/testrepo", "title": "testrepo", "count": 6, "uniques": 4}]`)

	return httptest.NewServer(mux), &order
}

func TestClient_CollectTraffic_AllMetrics(t *testing.T) {
	server, order := trafficServer(t, nil)
	defer server.Close()

	client, rec, restore := newTestClient(server.URL)
	defer restore()

	data := client.CollectTraffic(context.Background(), "testrepo")

	require.NotNil(t, data)
	require.NotNil(t, data.Views)
	assert.Equal(t, 10, data.Views.Count)
	assert.Equal(t, 3, data.Views.Uniques)
	require.Len(t, data.Views.Views, 1)
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), data.Views.Views[0].Timestamp)

	require.NotNil(t, data.Clones)
	assert.Equal(t, 2, data.Clones.Count)

	require.Len(t, data.Referrers, 1)
	assert.Equal(t, "github.com", data.Referrers[0].Referrer)

	require.Len(t, data.PopularPaths, 1)
	assert.Equal(t, "/testuser/testrepo", data.PopularPaths[0].Path)

	// Fixed fetch order, with a pause after each of the first three calls
	// and none after the last.
	assert.Equal(t, []string{"views", "clones", "referrers", "paths"}, *order)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}, rec.sleeps)
}

func TestClient_CollectTraffic_PartialFailure(t *testing.T) {
	server, order := trafficServer(t, map[string]http.HandlerFunc{
		"clones": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
	})
	defer server.Close()

	client, _, restore := newTestClient(server.URL)
	defer restore()

	data := client.CollectTraffic(context.Background(), "testrepo")

	// One failed metric stays absent; the rest of the record is intact and
	// the later endpoints are still fetched.
	require.NotNil(t, data.Views)
	assert.Equal(t, 10, data.Views.Count)
	assert.Nil(t, data.Clones)
	assert.NotNil(t, data.Referrers)
	assert.NotNil(t, data.PopularPaths)
	assert.Equal(t, []string{"views", "clones", "referrers", "paths"}, *order)
}

func TestClient_CollectTraffic_ZeroCountsAreNotAbsent(t *testing.T) {
	server, _ := trafficServer(t, map[string]http.HandlerFunc{
		"views": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"count": 0, "uniques": 0, "views": []}`))
		},
		"referrers": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[]`))
		},
	})
	defer server.Close()

	client, _, restore := newTestClient(server.URL)
	defer restore()

	data := client.CollectTraffic(context.Background(), "testrepo")

	// A repository nobody visited still has a present views metric.
	require.NotNil(t, data.Views)
	assert.Equal(t, 0, data.Views.Count)

	// An empty referrer list is present-and-empty, not absent.
	require.NotNil(t, data.Referrers)
	assert.Empty(t, data.Referrers)
}

func TestClient_CollectTraffic_MalformedBodyIsAbsent(t *testing.T) {
	server, order := trafficServer(t, map[string]http.HandlerFunc{
		"views": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`not json`))
		},
	})
	defer server.Close()

	client, _, restore := newTestClient(server.URL)
	defer restore()

	data := client.CollectTraffic(context.Background(), "testrepo")

	assert.Nil(t, data.Views)
	require.NotNil(t, data.Clones)
	assert.Equal(t, []string{"views", "clones", "referrers", "paths"}, *order)
}

func TestClient_CollectTraffic_Idempotent(t *testing.T) {
	server, _ := trafficServer(t, nil)
	defer server.Close()

	client, _, restore := newTestClient(server.URL)
	defer restore()

	first := client.CollectTraffic(context.Background(), "testrepo")
	second := client.CollectTraffic(context.Background(), "testrepo")

	assert.Equal(t, first, second)
}

func TestClient_GetRepoViews_ErrorOnNonSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client, _, restore := newTestClient(server.URL)
	defer restore()

	views, err := client.GetRepoViews(context.Background(), "testrepo")

	require.Error(t, err)
	assert.Nil(t, views)
	assert.Contains(t, err.Error(), "status 403")
	assert.Contains(t, err.Error(), "testuser/testrepo")
}
