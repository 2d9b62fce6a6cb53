package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"soup/config"
	"soup/internal/domain"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc, opts ...Option) *OpenAIEmbedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("SOUP_TEST_KEY", "sk-test")
	e, err := NewOpenAICompatibleEmbedder("SOUP_TEST_KEY", "text-embedding-3-small", srv.URL, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Input) != 1 || req.Input[0] != "happy" {
			t.Errorf("unexpected input %v", req.Input)
		}
		if req.Model != "text-embedding-3-small" {
			t.Errorf("unexpected model %s", req.Model)
		}
		json.NewEncoder(w).Encode(embeddingResponse{
			Data: []embeddingData{{Embedding: []float32{0.6, 0.8}, Index: 0}},
		})
	}, WithDimension(2))

	vec, err := e.Embed(context.Background(), "happy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.6 || vec[1] != 0.8 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestOpenAIEmbedder_ProviderErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`, 429},
		{"server error", http.StatusInternalServerError, `oops`, 500},
		{"malformed json", http.StatusOK, `{not json`, 0},
		{"api error in body", http.StatusOK, `{"error":{"message":"bad input"}}`, 0},
		{"wrong dimension", http.StatusOK, `{"data":[{"embedding":[1,2,3],"index":0}]}`, 0},
		{"no data", http.StatusOK, `{"data":[]}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, WithDimension(2))

			_, err := e.Embed(context.Background(), "x")
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, domain.ErrProvider) {
				t.Errorf("expected provider error, got %v", err)
			}
			var perr *domain.ProviderError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ProviderError, got %T", err)
			}
			if perr.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, perr.StatusCode)
			}
			if err.Error() == "" {
				t.Error("expected a human-readable message")
			}
		})
	}
}

func TestOpenAIEmbedder_Timeout(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, WithTimeout(50*time.Millisecond), WithDimension(2))

	_, err := e.Embed(context.Background(), "slow")
	if !errors.Is(err, domain.ErrProvider) {
		t.Errorf("expected provider error on timeout, got %v", err)
	}
}

func TestNewOpenAIEmbedder_MissingKey(t *testing.T) {
	t.Setenv("SOUP_MISSING_KEY", "")
	if _, err := NewOpenAIEmbedder("SOUP_MISSING_KEY", "text-embedding-3-small"); err == nil {
		t.Error("expected error when API key is missing")
	}
}

func TestNew_Providers(t *testing.T) {
	cfg := config.DefaultConfig().Embedding
	cfg.Provider = "mock"
	cfg.Dimension = 16

	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimension() != 16 || e.ModelName() != "mock" {
		t.Errorf("unexpected embedder %s/%d", e.ModelName(), e.Dimension())
	}

	cfg.Provider = "ollama"
	cfg.Model = "all-minilm"
	cfg.Dimension = 0
	e, err = New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimension() != 384 {
		t.Errorf("expected all-minilm dimension 384, got %d", e.Dimension())
	}

	cfg.Provider = "unknown"
	if _, err := New(cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNew_DimensionFromLoadedConfig(t *testing.T) {
	t.Setenv("SOUP_TEST_KEY", "sk-test")

	tests := []struct {
		name string
		yaml string
		want int
	}{
		{"ollama model table", "embedding:\n  provider: ollama\n  model: all-minilm\n", 384},
		{"openai model table", "embedding:\n  model: text-embedding-3-large\n  api_key_env: SOUP_TEST_KEY\n", 3072},
		{"default model", "embedding:\n  api_key_env: SOUP_TEST_KEY\n", 1536},
		{"explicit override", "embedding:\n  provider: ollama\n  model: custom-embed\n  dimension: 512\n", 512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "soup.yaml"), []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			cfg, err := config.LoadFromDir(dir)
			if err != nil {
				t.Fatal(err)
			}

			e, err := New(cfg.Embedding)
			if err != nil {
				t.Fatal(err)
			}
			if e.Dimension() != tt.want {
				t.Errorf("expected dimension %d, got %d", tt.want, e.Dimension())
			}
		})
	}
}

func TestOpenAIEmbedder_BadBaseURL(t *testing.T) {
	t.Setenv("SOUP_TEST_KEY", "sk-test")
	e, err := NewOpenAICompatibleEmbedder("SOUP_TEST_KEY", "text-embedding-3-small", "://no-scheme")
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Embed(context.Background(), "happy")
	var perr *domain.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *domain.ProviderError, got %T: %v", err, err)
	}
	if !errors.Is(err, domain.ErrProvider) {
		t.Error("request construction failures must match ErrProvider")
	}
}
