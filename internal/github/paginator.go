package github

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/LiteObject/github-traffic-monitor/pkg/logger"
)

const defaultPageSize = 100

// fetchAllPages walks a paged list endpoint, page=1 upward, until the
// server returns an empty page. A transport failure, a non-200 status or a
// malformed page stops the walk; whatever was collected up to that point is
// returned as a partial result. Retrying is the transport's job, not ours.
func (c *Client) fetchAllPages(ctx context.Context, path string, query url.Values, pageSize int) []json.RawMessage {
	var items []json.RawMessage
	page := 1

	for {
		params := make(url.Values, len(query)+2)
		for key, values := range query {
			params[key] = values
		}
		params.Set("per_page", strconv.Itoa(pageSize))
		params.Set("page", strconv.Itoa(page))

		resp, err := c.Get(ctx, path, params)
		if err != nil {
			logger.Warn("pagination of %s stopped at page %d: %v (keeping %d items)", path, page, err, len(items))
			return items
		}

		if !resp.OK() {
			logger.Warn("pagination of %s stopped at page %d: status %d (keeping %d items)", path, page, resp.StatusCode, len(items))
			return items
		}

		var pageItems []json.RawMessage
		if err := json.Unmarshal(resp.Body, &pageItems); err != nil {
			logger.Warn("pagination of %s stopped at page %d: malformed page: %v (keeping %d items)", path, page, err, len(items))
			return items
		}

		if len(pageItems) == 0 {
			return items
		}

		items = append(items, pageItems...)
		page++
		c.sleep(c.pageDelay)
	}
}

// ListOwnedRepositories returns every repository owned by the configured
// user, in the order the API reports them. A partial or empty result is
// possible when enumeration fails mid-flight; the caller treats both as
// normal outcomes.
func (c *Client) ListOwnedRepositories(ctx context.Context) []Repository {
	query := url.Values{}
	query.Set("type", "owner")

	raw := c.fetchAllPages(ctx, "/user/repos", query, defaultPageSize)

	repos := make([]Repository, 0, len(raw))
	for _, item := range raw {
		var repo Repository
		if err := json.Unmarshal(item, &repo); err != nil {
			logger.Warn("skipping repository entry with malformed body: %v", err)
			continue
		}
		repos = append(repos, repo)
	}

	return repos
}
