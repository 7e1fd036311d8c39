package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/cogmem/cache"
	"github.com/cogmem/cogmem/types"
)

func newTestServer(t *testing.T, healthy bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/embedding", func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	})
	mux.HandleFunc("/embedding/batch", func(w http.ResponseWriter, r *http.Request) {
		var req embedBatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embedBatchResponse{}
		for range req.Texts {
			resp.Embeddings = append(resp.Embeddings, []float32{0.4, 0.5})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return httptest.NewServer(mux)
}

func TestNewHTTPProvider_FailsFastWhenUnreachable(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPProvider(context.Background(), HTTPConfig{
		BaseURL:   "http://127.0.0.1:1", // nothing listening
		Dimension: 3,
		Timeout:   500 * time.Millisecond,
	}, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrEmbeddingUnavailable, types.GetErrorCode(err))
}

func TestNewHTTPProvider_FailsFastOnUnhealthyServer(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, false)
	defer srv.Close()

	_, err := NewHTTPProvider(context.Background(), HTTPConfig{BaseURL: srv.URL, Dimension: 3}, nil)
	require.Error(t, err)
}

func TestHTTPProvider_Embed(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, true)
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{BaseURL: srv.URL, Dimension: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Dimension())

	v, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, types.Vector{0.1, 0.2, 0.3}, v)
}

func TestHTTPProvider_Embed_CachedHitSkipsRequest(t *testing.T) {
	t.Parallel()

	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/embedding", func(w http.ResponseWriter, r *http.Request) {
		requests++
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{BaseURL: srv.URL, Dimension: 3}, nil)
	require.NoError(t, err)
	p.SetCache(cache.NewManager(100, nil, nil, nil))

	ctx := types.WithProjectID(context.Background(), "proj-1")
	first, err := p.Embed(ctx, "hello")
	require.NoError(t, err)
	second, err := p.Embed(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, requests, "second call should be served from cache")
}

func TestHTTPProvider_Embed_NoProjectIDBypassesCache(t *testing.T) {
	t.Parallel()

	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/embedding", func(w http.ResponseWriter, r *http.Request) {
		requests++
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{BaseURL: srv.URL, Dimension: 3}, nil)
	require.NoError(t, err)
	p.SetCache(cache.NewManager(100, nil, nil, nil))

	_, err = p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, requests, "without a project id in context, caching is skipped")
}

func TestHTTPProvider_EmbedBatch(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, true)
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{BaseURL: srv.URL, Dimension: 2}, nil)
	require.NoError(t, err)

	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, types.Vector{0.4, 0.5}, vectors[0])
}

func TestHTTPProvider_EmbedSurfacesUpstreamError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/embedding", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{BaseURL: srv.URL, Dimension: 2}, nil)
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, types.ErrEmbeddingUnavailable, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}
