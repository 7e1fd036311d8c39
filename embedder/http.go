package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cogmem/cogmem/cache"
	"github.com/cogmem/cogmem/internal/pool"
	"github.com/cogmem/cogmem/internal/tlsutil"
	"github.com/cogmem/cogmem/types"
)

// HTTPConfig configures the default HTTP embedding provider.
type HTTPConfig struct {
	BaseURL   string
	Dimension int
	Timeout   time.Duration
}

// HTTPProvider is the default Embedder: a plain HTTP service exposing
// POST /embedding and GET /health.
type HTTPProvider struct {
	client    *http.Client
	baseURL   string
	dimension int
	logger    *zap.Logger

	cache *cache.Manager // nil disables caching
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedBatchRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type embedBatchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewHTTPProvider constructs the HTTP provider and fails fast if the
// service is unreachable, per spec.md §6: "If unreachable at startup:
// fail-fast unless a mock embedder is explicitly configured."
func NewHTTPProvider(ctx context.Context, cfg HTTPConfig, logger *zap.Logger) (*HTTPProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	p := &HTTPProvider{
		client:    tlsutil.SecureHTTPClient(timeout),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		dimension: cfg.Dimension,
		logger:    logger.With(zap.String("component", "embedder_http")),
	}

	if err := p.HealthCheck(ctx); err != nil {
		return nil, types.NewError(types.ErrEmbeddingUnavailable, "embedder unreachable at startup").
			WithCause(err).
			WithProvider(p.baseURL)
	}
	return p, nil
}

// HealthCheck probes GET /health.
func (p *HTTPProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("embedder health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (p *HTTPProvider) Dimension() int { return p.dimension }

// SetCache wires a per-project cache tier in front of Embed: a hit skips
// the HTTP round trip entirely (spec.md §5's per-project embedding LRU).
// Nil disables caching, the zero-value behavior.
func (p *HTTPProvider) SetCache(c *cache.Manager) {
	p.cache = c
}

// Embed calls POST /embedding with {"text": ...} and expects
// {"embedding": [...]}. When a cache is wired and the request context
// carries a project id (types.WithProjectID), a cached embedding for text
// short-circuits the call; a computed embedding is written back on a miss.
func (p *HTTPProvider) Embed(ctx context.Context, text string) (types.Vector, error) {
	projectID, hasProject := types.ProjectID(ctx)
	if p.cache != nil && hasProject {
		if v, ok := p.cache.GetEmbedding(ctx, projectID, text); ok {
			return v, nil
		}
	}

	buf := pool.ByteBufferPool.Get()
	if err := json.NewEncoder(buf).Encode(embedRequest{Text: text}); err != nil {
		pool.ByteBufferPool.Put(buf)
		return nil, types.NewError(types.ErrInternalError, "marshal embed request").WithCause(err)
	}
	respBody, err := p.doPost(ctx, "/embedding", buf.Bytes())
	pool.ByteBufferPool.Put(buf)
	if err != nil {
		return nil, err
	}

	var out embedResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, types.NewError(types.ErrEmbeddingUnavailable, "malformed embedder response").WithCause(err)
	}
	vec := types.Vector(out.Embedding)

	if p.cache != nil && hasProject {
		p.cache.PutEmbedding(ctx, projectID, text, vec)
	}
	return vec, nil
}

// EmbedBatch calls the batch form of the same endpoint.
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([]types.Vector, error) {
	buf := pool.ByteBufferPool.Get()
	if err := json.NewEncoder(buf).Encode(embedBatchRequest{Texts: texts}); err != nil {
		pool.ByteBufferPool.Put(buf)
		return nil, types.NewError(types.ErrInternalError, "marshal batch embed request").WithCause(err)
	}
	respBody, err := p.doPost(ctx, "/embedding/batch", buf.Bytes())
	pool.ByteBufferPool.Put(buf)
	if err != nil {
		return nil, err
	}

	var out embedBatchResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, types.NewError(types.ErrEmbeddingUnavailable, "malformed embedder batch response").WithCause(err)
	}
	vectors := make([]types.Vector, len(out.Embeddings))
	for i, e := range out.Embeddings {
		vectors[i] = types.Vector(e)
	}
	return vectors, nil
}

func (p *HTTPProvider) doPost(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build embedder request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrEmbeddingUnavailable, "embedder call failed").
			WithCause(err).
			WithRetryable(true).
			WithProvider(p.baseURL)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrEmbeddingUnavailable, "read embedder response").WithCause(err)
	}
	if resp.StatusCode >= 400 {
		return nil, types.NewError(types.ErrEmbeddingUnavailable, fmt.Sprintf("embedder returned status %d", resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500).
			WithProvider(p.baseURL)
	}
	return respBody, nil
}
