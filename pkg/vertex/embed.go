// Package vertex provides a text-embedding client for a Vertex-style
// prediction endpoint. One configured project/region/model serves every
// request; deployment specifics live in Config, not in request construction.
package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/crisiswatch/crisiswatch/engine/domain"
)

// TokenSource supplies a bearer token for the prediction call. Injected so
// tests can run against plain httptest servers.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields tok.
func StaticToken(tok string) TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

// Config identifies the embedding deployment.
type Config struct {
	ProjectID string
	Region    string
	ModelName string
	// BaseURL overrides the endpoint host, mainly for tests. When empty the
	// regional aiplatform host is used.
	BaseURL string
}

// Validate fails fast on missing deployment identifiers.
func (c Config) Validate() error {
	if c.ProjectID == "" {
		return domain.NewConfigError("projectId", "required")
	}
	if c.Region == "" {
		return domain.NewConfigError("region", "required")
	}
	if c.ModelName == "" {
		return domain.NewConfigError("modelName", "required")
	}
	return nil
}

func (c Config) endpoint() string {
	base := c.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com", c.Region)
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		strings.TrimRight(base, "/"), c.ProjectID, c.Region, c.ModelName)
}

// EmbedClient calls the prediction endpoint over HTTP.
type EmbedClient struct {
	cfg    Config
	tokens TokenSource
	client *http.Client
}

// NewEmbedClient creates an embedding client. The config must already be
// validated by the caller.
func NewEmbedClient(cfg Config, tokens TokenSource) *EmbedClient {
	return &EmbedClient{
		cfg:    cfg,
		tokens: tokens,
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

type predictRequest struct {
	Instances []instance `json:"instances"`
}

type instance struct {
	Content string `json:"content"`
}

type predictResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// Embed returns the embedding vector for text. Every failure mode, transport
// error, non-200 status, or a response with no values, maps to
// domain.ErrEmbeddingUnavailable; retry policy belongs to the caller.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input text", domain.ErrEmbeddingUnavailable)
	}

	body, _ := json.Marshal(predictRequest{Instances: []instance{{Content: text}}})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrEmbeddingUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		tok, err := c.tokens(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: token: %v", domain.ErrEmbeddingUnavailable, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrEmbeddingUnavailable, resp.StatusCode)
	}

	var pr predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrEmbeddingUnavailable, err)
	}
	if len(pr.Predictions) == 0 || len(pr.Predictions[0].Embeddings.Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding values in response", domain.ErrEmbeddingUnavailable)
	}
	return pr.Predictions[0].Embeddings.Values, nil
}
