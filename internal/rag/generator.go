package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
)

const (
	// DefaultModel is the generation model when config.yaml names none.
	DefaultModel = "llama3.2"

	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	defaultGenerateTimeout = 120 * time.Second
)

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// OllamaConfig configures OllamaGenerator.
type OllamaConfig struct {
	Host    string
	Model   string
	Timeout time.Duration
	// MaxRetries applies to unreachable hosts and 5xx responses.
	MaxRetries  int
	Temperature float64
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaGenerator calls Ollama's /api/generate with stream=false.
type OllamaGenerator struct {
	client *http.Client
	cfg    OllamaConfig
	retry  perrors.RetryConfig
}

var _ Generator = (*OllamaGenerator)(nil)

// NewOllamaGenerator applies defaults to cfg.
func NewOllamaGenerator(cfg OllamaConfig) *OllamaGenerator {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGenerateTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	retry := perrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	retry.ShouldRetry = perrors.IsRetryable

	return &OllamaGenerator{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		retry:  retry,
	}
}

// Model implements Generator.
func (g *OllamaGenerator) Model() string { return g.cfg.Model }

// Generate implements Generator.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return perrors.RetryWithResult(ctx, g.retry, func() (string, error) {
		return g.generateOnce(ctx, prompt)
	})
}

func (g *OllamaGenerator) generateOnce(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   g.cfg.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: g.cfg.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", perrors.New(perrors.ErrCodeEmbedUnavailable, "failed to reach Ollama at "+g.cfg.Host, err).
			WithSuggestion("start Ollama with 'ollama serve'")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		text := fmt.Sprintf("ollama /api/generate returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 {
			return "", perrors.New(perrors.ErrCodeEmbedUnavailable, text, nil)
		}
		e := perrors.New(perrors.ErrCodeGenerateFailed, text, nil)
		if resp.StatusCode == http.StatusNotFound {
			e = e.WithSuggestion("run: ollama pull " + g.cfg.Model)
		}
		return "", e
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", perrors.New(perrors.ErrCodeGenerateFailed, "failed to decode generate response", err)
	}
	return strings.TrimSpace(out.Response), nil
}
