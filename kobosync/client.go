package kobosync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/survey_backend/config"
	"github.com/mmdatafocus/survey_backend/submission"
	"golang.org/x/time/rate"
)

// APIError is returned for any non-2xx KoboToolbox response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kobo api error %d: %s", e.StatusCode, e.Body)
}

// Asset is a KoboToolbox form.
type Asset struct {
	UID             string `json:"uid"`
	Name            string `json:"name"`
	AssetType       string `json:"asset_type"`
	DateCreated     string `json:"date_created"`
	DateModified    string `json:"date_modified"`
	HasDeployment   bool   `json:"has_deployment"`
	DeploymentCount int    `json:"deployment__submission_count"`
}

// Client talks to the KoboToolbox v2 API.
type Client struct {
	baseURL  string
	token    string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client, keeping its own timeout.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

func NewClient(cfg config.KoboConfig, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("kobo api token is empty")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if baseURL == "" {
		baseURL = "https://kf.kobotoolbox.org"
	}
	rateLimitPerMin := cfg.RateLimitPerMin
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 60
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:  baseURL,
		token:    cfg.APIToken,
		pageSize: pageSize,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rateLimitPerMin)), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type listResponse struct {
	Count   int               `json:"count"`
	Next    *string           `json:"next"`
	Results []json.RawMessage `json:"results"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dest interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Assets lists the forms visible to the token.
func (c *Client) Assets(ctx context.Context) ([]Asset, error) {
	var resp struct {
		Results []Asset `json:"results"`
	}
	if err := c.get(ctx, "/api/v2/assets/", url.Values{"format": {"json"}}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) Asset(ctx context.Context, assetUID string) (Asset, error) {
	var asset Asset
	err := c.get(ctx, "/api/v2/assets/"+url.PathEscape(assetUID)+"/", url.Values{"format": {"json"}}, &asset)
	return asset, err
}

// SubmissionCount returns the total number of submissions of the form.
func (c *Client) SubmissionCount(ctx context.Context, assetUID string) (int, error) {
	var resp listResponse
	params := url.Values{"format": {"json"}, "limit": {"1"}}
	if err := c.get(ctx, dataPath(assetUID), params, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Submissions fetches every submission of the form, following start/limit
// pagination until the reported count is reached.
func (c *Client) Submissions(ctx context.Context, assetUID string) ([]submission.Value, error) {
	return c.Query(ctx, assetUID, nil)
}

// SubmissionsSince fetches submissions whose _submission_time is at or after
// since.
func (c *Client) SubmissionsSince(ctx context.Context, assetUID string, since time.Time) ([]submission.Value, error) {
	return c.Query(ctx, assetUID, map[string]any{
		"_submission_time": map[string]any{"$gte": since.UTC().Format("2006-01-02T15:04:05")},
	})
}

// Query fetches submissions matching a Kobo (Mongo style) query.
func (c *Client) Query(ctx context.Context, assetUID string, query map[string]any) ([]submission.Value, error) {
	if strings.TrimSpace(assetUID) == "" {
		return nil, ErrNoAssetUID
	}
	var queryJSON string
	if len(query) > 0 {
		b, err := json.Marshal(query)
		if err != nil {
			return nil, err
		}
		queryJSON = string(b)
	}

	var out []submission.Value
	start := 0
	for {
		params := url.Values{}
		params.Set("format", "json")
		params.Set("start", strconv.Itoa(start))
		params.Set("limit", strconv.Itoa(c.pageSize))
		if queryJSON != "" {
			params.Set("query", queryJSON)
		}

		var resp listResponse
		if err := c.get(ctx, dataPath(assetUID), params, &resp); err != nil {
			return out, err
		}
		for i, raw := range resp.Results {
			v, err := submission.ParseJSON(raw)
			if err != nil {
				return out, fmt.Errorf("decode submission %d: %w", start+i, err)
			}
			out = append(out, v)
		}

		// The server may return fewer rows than asked for, so a short page
		// does not mean the last one.
		start += len(resp.Results)
		if len(resp.Results) == 0 || (resp.Count > 0 && start >= resp.Count) || (resp.Count == 0 && resp.Next == nil) {
			return out, nil
		}
	}
}

func dataPath(assetUID string) string {
	return "/api/v2/assets/" + url.PathEscape(assetUID) + "/data/"
}
