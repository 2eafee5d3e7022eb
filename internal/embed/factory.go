package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	ProviderOllama ProviderType = "ollama"
	ProviderStatic ProviderType = "static"
)

// ProviderEnv overrides the configured provider.
const ProviderEnv = "PUBRAG_EMBEDDER"

// ParseProvider maps a config string to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch ProviderType(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderOllama, "":
		return ProviderOllama, nil
	case ProviderStatic:
		return ProviderStatic, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (supported: ollama, static)", s)
	}
}

// Options tunes NewEmbedder.
type Options struct {
	OllamaHost        string
	Dimensions        int
	BatchSize         int
	RequestsPerSecond float64
	Timeout           time.Duration

	// CacheSize wraps the embedder in an LRU when > 0.
	CacheSize int

	// AllowFallback switches to the static embedder when Ollama is unreachable.
	AllowFallback bool
}

// NewEmbedder builds the embedder for provider and model.
// PUBRAG_EMBEDDER, when set, takes precedence over provider.
func NewEmbedder(ctx context.Context, provider ProviderType, model string, opts Options) (Embedder, error) {
	if env := os.Getenv(ProviderEnv); env != "" {
		p, err := ParseProvider(env)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	var e Embedder
	switch provider {
	case ProviderStatic:
		e = NewStaticEmbedder(opts.Dimensions)

	case ProviderOllama, "":
		oe, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:              opts.OllamaHost,
			Model:             model,
			Dimensions:        opts.Dimensions,
			BatchSize:         opts.BatchSize,
			Timeout:           opts.Timeout,
			MaxRetries:        3,
			RequestsPerSecond: opts.RequestsPerSecond,
		})
		if err != nil {
			if !opts.AllowFallback {
				return nil, err
			}
			slog.Warn("embedder_fallback",
				slog.String("from", string(ProviderOllama)),
				slog.String("to", string(ProviderStatic)),
				slog.String("error", err.Error()))
			e = NewStaticEmbedder(opts.Dimensions)
		} else {
			e = oe
		}

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}

	if opts.CacheSize > 0 {
		e = NewCachedEmbedder(e, opts.CacheSize)
	}
	return e, nil
}
