package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/blackmichael/mastodon-triage/internal/domain"
)

// Client is a minimal Mastodon API client. Timeline reads are anonymous;
// actions (follow, favourite) require a per-server access token.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new Mastodon API client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PublicTimeline fetches one page of a server's local public timeline. The
// query's MinID or MaxID bounds the page strictly-after or strictly-before
// that post; with neither set the server returns its most recent page.
func (c *Client) PublicTimeline(ctx context.Context, q domain.TimelineQuery) ([]*domain.RemoteStatus, error) {
	params := url.Values{}
	params.Set("local", "true")
	params.Set("limit", strconv.Itoa(q.Limit))
	if q.MinID != "" {
		params.Set("min_id", q.MinID)
	}
	if q.MaxID != "" {
		params.Set("max_id", q.MaxID)
	}

	var statuses []*status
	endpoint := q.BaseURL + "/api/v1/timelines/public?" + params.Encode()
	if err := c.get(ctx, endpoint, "", &statuses); err != nil {
		return nil, fmt.Errorf("get public timeline: %w", err)
	}

	remote := make([]*domain.RemoteStatus, len(statuses))
	for i, st := range statuses {
		remote[i] = st.toDomain()
	}
	return remote, nil
}

// LookupAccount resolves an account by its webfinger-style name.
func (c *Client) LookupAccount(ctx context.Context, baseURL, acct string) (*domain.RemoteAccount, error) {
	params := url.Values{}
	params.Set("acct", acct)

	var a account
	endpoint := baseURL + "/api/v1/accounts/lookup?" + params.Encode()
	if err := c.get(ctx, endpoint, "", &a); err != nil {
		return nil, fmt.Errorf("lookup account %s: %w", acct, err)
	}

	remote := a.toDomain()
	return &remote, nil
}

// Follow follows an account on behalf of the token's owner.
func (c *Client) Follow(ctx context.Context, baseURL, token, accountID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/accounts/%s/follow", baseURL, url.PathEscape(accountID))
	if err := c.post(ctx, endpoint, token, nil); err != nil {
		return fmt.Errorf("follow account %s: %w", accountID, err)
	}
	return nil
}

// Favourite favourites a status on behalf of the token's owner.
func (c *Client) Favourite(ctx context.Context, baseURL, token, statusID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/statuses/%s/favourite", baseURL, url.PathEscape(statusID))
	if err := c.post(ctx, endpoint, token, nil); err != nil {
		return fmt.Errorf("favourite status %s: %w", statusID, err)
	}
	return nil
}

// StatusContext fetches the reply tree around a status.
func (c *Client) StatusContext(ctx context.Context, baseURL, statusID string) (*StatusContext, error) {
	var raw struct {
		Ancestors   []*status `json:"ancestors"`
		Descendants []*status `json:"descendants"`
	}

	endpoint := fmt.Sprintf("%s/api/v1/statuses/%s/context", baseURL, url.PathEscape(statusID))
	if err := c.get(ctx, endpoint, "", &raw); err != nil {
		return nil, fmt.Errorf("get status context %s: %w", statusID, err)
	}

	sc := &StatusContext{
		Ancestors:   make([]*domain.RemoteStatus, len(raw.Ancestors)),
		Descendants: make([]*domain.RemoteStatus, len(raw.Descendants)),
	}
	for i, st := range raw.Ancestors {
		sc.Ancestors[i] = st.toDomain()
	}
	for i, st := range raw.Descendants {
		sc.Descendants[i] = st.toDomain()
	}
	return sc, nil
}

// StatusContext is the reply tree around one status.
type StatusContext struct {
	Ancestors   []*domain.RemoteStatus `json:"ancestors"`
	Descendants []*domain.RemoteStatus `json:"descendants"`
}

func (c *Client) get(ctx context.Context, endpoint, token string, result any) error {
	return c.do(ctx, http.MethodGet, endpoint, token, result)
}

func (c *Client) post(ctx context.Context, endpoint, token string, result any) error {
	return c.do(ctx, http.MethodPost, endpoint, token, result)
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
