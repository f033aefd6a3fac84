package vertex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crisiswatch/crisiswatch/engine/domain"
)

func testConfig(baseURL string) Config {
	return Config{
		ProjectID: "demo-project",
		Region:    "us-central1",
		ModelName: "textembedding-gecko@001",
		BaseURL:   baseURL,
	}
}

func TestConfigValidate(t *testing.T) {
	if err := testConfig("").Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for _, tt := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"projectId", func(c *Config) { c.ProjectID = "" }},
		{"region", func(c *Config) { c.Region = "" }},
		{"modelName", func(c *Config) { c.ModelName = "" }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("")
			tt.mutate(&cfg)
			var ce *domain.ConfigError
			if err := cfg.Validate(); !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestEmbed(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"predictions": []map[string]any{
				{"embeddings": map[string]any{"values": []float32{0.1, 0.2, 0.3}}},
			},
		})
	}))
	defer srv.Close()

	c := NewEmbedClient(testConfig(srv.URL), StaticToken("tok-123"))
	vec, err := c.Embed(context.Background(), "flood in region A")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("vector = %v", vec)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	want := "/v1/projects/demo-project/locations/us-central1/publishers/google/models/textembedding-gecko@001:predict"
	if gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if len(gotBody.Instances) != 1 || gotBody.Instances[0].Content != "flood in region A" {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestEmbedFailureModes(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "backend down", http.StatusBadGateway)
		}},
		{"empty predictions", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"predictions":[]}`))
		}},
		{"missing values", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"predictions":[{"embeddings":{}}]}`))
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewEmbedClient(testConfig(srv.URL), StaticToken("tok"))
			_, err := c.Embed(context.Background(), "some text")
			if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
				t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
			}
		})
	}
}

func TestEmbedEmptyText(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewEmbedClient(testConfig(srv.URL), nil)
	if _, err := c.Embed(context.Background(), "   "); !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if called {
		t.Error("no request should be issued for empty text")
	}
}

func TestEmbedTokenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewEmbedClient(testConfig(srv.URL), func(context.Context) (string, error) {
		return "", errors.New("metadata server unreachable")
	})
	if _, err := c.Embed(context.Background(), "text"); !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}
