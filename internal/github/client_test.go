package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sleepRecorder captures every wait the client would perform so tests run
// instantly and can assert exact durations.
type sleepRecorder struct {
	sleeps []time.Duration
}

func (s *sleepRecorder) Sleep(d time.Duration) {
	s.sleeps = append(s.sleeps, d)
}

func newTestClient(serverURL string) (*Client, *sleepRecorder, func()) {
	client := NewClient("test-token", "testuser")
	rec := &sleepRecorder{}
	client.sleep = rec.Sleep
	client.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	originalBaseURL := baseURL
	baseURL = serverURL
	restore := func() { baseURL = originalBaseURL }

	return client, rec, restore
}

// flakyTransport fails the round trip while failures remain, then delegates
// to the default transport.
type flakyTransport struct {
	failures int
	calls    int
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset by peer")
	}
	return http.DefaultTransport.RoundTrip(req)
}

// patternTransport fails on the call numbers listed in failOn (1-based).
type patternTransport struct {
	failOn map[int]bool
	calls  int
}

func (p *patternTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	p.calls++
	if p.failOn[p.calls] {
		return nil, errors.New("read timeout")
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestNewClient(t *testing.T) {
	client := NewClient("test-token", "testuser")

	assert.NotNil(t, client)
	assert.Equal(t, "test-token", client.token)
	assert.Equal(t, "testuser", client.Username())
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
	assert.Equal(t, DefaultRetryConfig(), client.cfg)
}

func TestClient_Get_SetsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message": "ok"}`))
	}))
	defer server.Close()

	client, rec, restore := newTestClient(server.URL)
	defer restore()

	resp, err := client.Get(context.Background(), "/test", nil)

	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Empty(t, rec.sleeps)
}

func TestClient_Get_NonSuccessStatusIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, _, restore := newTestClient(server.URL)
	defer restore()

	resp, err := client.Get(context.Background(), "/missing", nil)

	// 4xx/5xx is a terminal response for the caller to interpret, never a
	// transport error and never retried.
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClient_Get_429WaitsAndReplaysWithoutConsumingRetries(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests <= 5 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, rec, restore := newTestClient(server.URL)
	defer restore()

	resp, err := client.Get(context.Background(), "/test", nil)

	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, 6, requests)
	require.Len(t, rec.sleeps, 5)
	for _, wait := range rec.sleeps {
		assert.Equal(t, 7*time.Second, wait)
	}
}

func TestClient_Get_429DefaultsTo60sWithoutRetryAfter(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, rec, restore := newTestClient(server.URL)
	defer restore()

	_, err := client.Get(context.Background(), "/test", nil)

	require.NoError(t, err)
	require.Len(t, rec.sleeps, 1)
	assert.Equal(t, 60*time.Second, rec.sleeps[0])
}

func TestClient_Get_ThrottlesWhenRemainingBelowThreshold(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name          string
		remaining     string
		reset         string
		status        int
		expectedSleep []time.Duration
	}{
		{
			name:          "sleeps until reset plus margin",
			remaining:     "10",
			reset:         strconv.FormatInt(now.Add(100*time.Second).Unix(), 10),
			status:        http.StatusOK,
			expectedSleep: []time.Duration{105 * time.Second},
		},
		{
			name:          "reset in the past clamps to margin only",
			remaining:     "10",
			reset:         strconv.FormatInt(now.Add(-30*time.Second).Unix(), 10),
			status:        http.StatusOK,
			expectedSleep: []time.Duration{5 * time.Second},
		},
		{
			name:          "no reset header falls back to 60s",
			remaining:     "10",
			status:        http.StatusOK,
			expectedSleep: []time.Duration{60 * time.Second},
		},
		{
			name:          "throttles on error statuses too",
			remaining:     "10",
			reset:         strconv.FormatInt(now.Add(100*time.Second).Unix(), 10),
			status:        http.StatusForbidden,
			expectedSleep: []time.Duration{105 * time.Second},
		},
		{
			name:      "remaining at threshold does not sleep",
			remaining: "50",
			status:    http.StatusOK,
		},
		{
			name:      "plenty of budget does not sleep",
			remaining: "4999",
			status:    http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-RateLimit-Remaining", tt.remaining)
				if tt.reset != "" {
					w.Header().Set("X-RateLimit-Reset", tt.reset)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client, rec, restore := newTestClient(server.URL)
			defer restore()

			resp, err := client.Get(context.Background(), "/test", nil)

			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.expectedSleep, rec.sleeps)
		})
	}
}

func TestClient_Get_NetworkErrorBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, rec, restore := newTestClient(server.URL)
	defer restore()

	ft := &flakyTransport{failures: 10}
	client.httpClient.Transport = ft

	_, err := client.Get(context.Background(), "/test", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	// Three attempts total, backing off 2s then 4s between them. The third
	// failure is terminal: no fourth attempt, no third sleep.
	assert.Equal(t, 3, ft.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.sleeps)
}

func TestClient_Get_BackoffResetsAfterSuccessfulAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, rec, restore := newTestClient(server.URL)
	defer restore()

	// Call 1 fails then succeeds, call 3 fails then succeeds. Both retry
	// waits must start from the base delay: a prior failure burst must not
	// inflate the backoff of an unrelated later call.
	pt := &patternTransport{failOn: map[int]bool{1: true, 3: true}}
	client.httpClient.Transport = pt

	_, err := client.Get(context.Background(), "/first", nil)
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "/second", nil)
	require.NoError(t, err)

	assert.Equal(t, 4, pt.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, rec.sleeps)
}

func TestClient_Get_QueryParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		assert.Equal(t, "owner", r.URL.Query().Get("type"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client, _, restore := newTestClient(server.URL)
	defer restore()

	query := url.Values{"per_page": {"100"}, "type": {"owner"}}
	resp, err := client.Get(context.Background(), "/user/repos", query)

	require.NoError(t, err)
	assert.True(t, resp.OK())
}

func TestClient_Get_CustomRetryConfig(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:        2,
		BaseBackoff:        time.Second,
		RemainingThreshold: 5,
		ResetMargin:        time.Second,
		DefaultWait:        10 * time.Second,
	}
	client := NewClientWithConfig("test-token", "testuser", cfg)
	rec := &sleepRecorder{}
	client.sleep = rec.Sleep

	ft := &flakyTransport{failures: 10}
	client.httpClient.Transport = ft

	_, err := client.Get(context.Background(), "/test", nil)

	require.Error(t, err)
	assert.Equal(t, 2, ft.calls)
	assert.Equal(t, []time.Duration{time.Second}, rec.sleeps)
}

func TestClient_Get_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _, restore := newTestClient(server.URL)
	defer restore()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, "/slow", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("after %d attempts", client.cfg.MaxAttempts))
}
