// Package feed fetches disaster records from the ReliefWeb public API.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crisiswatch/crisiswatch/engine/domain"
	"github.com/crisiswatch/crisiswatch/pkg/fn"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the ReliefWeb disasters endpoint with the slim list
// profile preset.
const DefaultBaseURL = "https://api.reliefweb.int/v1/disasters"

// Client fetches the disaster listing over HTTP.
type Client struct {
	baseURL string
	appName string
	limiter *rate.Limiter
	client  *http.Client
	retry   fn.RetryOpts
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the upstream endpoint, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRetry overrides the retry policy for the listing fetch.
func WithRetry(opts fn.RetryOpts) Option {
	return func(c *Client) { c.retry = opts }
}

// NewClient creates a feed client. appName identifies this consumer to
// ReliefWeb as their API terms require.
func NewClient(appName string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		appName: appName,
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		client:  &http.Client{Timeout: 30 * time.Second},
		retry: fn.RetryOpts{
			MaxAttempts: 3,
			InitialWait: 2 * time.Second,
			MaxWait:     15 * time.Second,
			Jitter:      true,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch retrieves the latest disaster listing. A failure here is fatal to an
// ingestion run: there is no partial batch to salvage.
func (c *Client) Fetch(ctx context.Context) ([]Disaster, error) {
	url := fmt.Sprintf("%s?appname=%s&profile=list&preset=latest&slim=1", c.baseURL, c.appName)

	result := fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[[]Disaster] {
		return fn.FromPair(c.fetchOnce(ctx, url))
	})

	disasters, err := result.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFetchFailed, err)
	}
	return disasters, nil
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]Disaster, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "crisiswatch/1.0 (disaster alert aggregation)")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, c.baseURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var lr listResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	out := make([]Disaster, 0, len(lr.Data))
	for _, raw := range lr.Data {
		if raw.ID == "" {
			continue
		}
		out = append(out, raw.toDisaster())
	}
	return out, nil
}

// typeList accepts both shapes ReliefWeb serves for the type field:
// ["Flood"] in the slim profile and [{"name":"Flood"}] in the full one.
type typeList []string

func (t *typeList) UnmarshalJSON(data []byte) error {
	var plain []string
	if err := json.Unmarshal(data, &plain); err == nil {
		*t = plain
		return nil
	}
	var named []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &named); err != nil {
		return err
	}
	out := make([]string, 0, len(named))
	for _, n := range named {
		if n.Name != "" {
			out = append(out, n.Name)
		}
	}
	*t = out
	return nil
}
