package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is a general-purpose text embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	ollamaProbeTimeout = 5 * time.Second
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host  string
	Model string

	// Dimensions overrides detection when > 0.
	Dimensions int
	BatchSize  int
	// Timeout bounds each HTTP request.
	Timeout    time.Duration
	MaxRetries int

	// RequestsPerSecond throttles /api/embed calls. Zero disables throttling.
	RequestsPerSecond float64

	// SkipHealthCheck skips model discovery and dimension detection.
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns the defaults used when config.yaml is silent.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:       DefaultOllamaHost,
		Model:      DefaultOllamaModel,
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultTimeout,
		MaxRetries: 3,
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaEmbedder calls Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	client  *http.Client
	cfg     OllamaConfig
	model   string
	dims    int
	limiter *rate.Limiter
	retry   perrors.RetryConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to Ollama, resolves the model against the
// installed list and detects the vector width.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	def := DefaultOllamaConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	retry := perrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	retry.ShouldRetry = perrors.IsRetryable

	e := &OllamaEmbedder{
		client: &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     10 * time.Second,
		}},
		cfg:     cfg,
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		limiter: rate.NewLimiter(limit, 1),
		retry:   retry,
	}

	if !cfg.SkipHealthCheck {
		model, err := e.resolveModel(ctx)
		if err != nil {
			e.client.CloseIdleConnections()
			return nil, err
		}
		e.model = model

		if e.dims == 0 {
			vecs, err := e.embedOnce(ctx, []string{"dimension probe"})
			if err != nil {
				e.client.CloseIdleConnections()
				return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
			}
			e.dims = len(vecs[0])
		}
	}

	slog.Debug("ollama_embedder_ready",
		slog.String("host", cfg.Host),
		slog.String("model", e.model),
		slog.Int("dimensions", e.dims))
	return e, nil
}

// resolveModel matches the configured model against /api/tags, accepting a
// bare name for a tagged install ("nomic-embed-text" for "nomic-embed-text:latest").
func (e *OllamaEmbedder) resolveModel(ctx context.Context) (string, error) {
	names, err := e.listModels(ctx)
	if err != nil {
		return "", err
	}

	want := strings.ToLower(e.cfg.Model)
	wantBase := strings.SplitN(want, ":", 2)[0]
	for _, name := range names {
		lower := strings.ToLower(name)
		if lower == want || strings.SplitN(lower, ":", 2)[0] == wantBase && !strings.Contains(want, ":") {
			return name, nil
		}
	}
	return "", perrors.New(perrors.ErrCodeEmbedUnavailable,
		fmt.Sprintf("model %q is not installed in Ollama", e.cfg.Model), nil).
		WithSuggestion("run: ollama pull " + e.cfg.Model)
}

func (e *OllamaEmbedder) listModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, ollamaProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeEmbedUnavailable, "failed to reach Ollama at "+e.cfg.Host, err).
			WithSuggestion("start Ollama with 'ollama serve' or set embeddings.provider: static")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, perrors.New(perrors.ErrCodeEmbedUnavailable,
			fmt.Sprintf("ollama /api/tags returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode /api/tags: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Embed implements Embedder.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch splits texts into BatchSize requests and concatenates the results.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, ErrEmbedderClosed
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		batch := texts[start:end]

		vecs, err := perrors.RetryWithResult(ctx, e.retry, func() ([][]float32, error) {
			return e.embedOnce(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// embedOnce performs one /api/embed call.
func (e *OllamaEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if reqCtx.Err() != nil {
			return nil, perrors.New(perrors.ErrCodeEmbedTimeout, "ollama embed request timed out", err)
		}
		return nil, perrors.New(perrors.ErrCodeEmbedUnavailable, "ollama embed request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		code := perrors.ErrCodeEmbedFailed
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			code = perrors.ErrCodeEmbedUnavailable
		}
		return nil, perrors.New(code,
			fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, perrors.New(perrors.ErrCodeEmbedFailed, "failed to decode embed response", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, perrors.New(perrors.ErrCodeEmbedFailed,
			fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(parsed.Embeddings), len(texts)), nil)
	}

	out := make([][]float32, len(parsed.Embeddings))
	for i, v := range parsed.Embeddings {
		if e.dims > 0 && len(v) != e.dims {
			return nil, perrors.New(perrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", e.dims, len(v)), nil)
		}
		out[i] = normalizeVector(toFloat32(v))
	}
	return out, nil
}

// Dimensions implements Embedder.
func (e *OllamaEmbedder) Dimensions() int { return e.dims }

// ModelName implements Embedder.
func (e *OllamaEmbedder) ModelName() string { return e.model }

// Available implements Embedder by listing models.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	_, err := e.listModels(ctx)
	return err == nil
}

// Close implements Embedder.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.client.CloseIdleConnections()
	}
	return nil
}
