package preflight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/pubrag/internal/embed"
)

const embedderProbeTimeout = 5 * time.Second

// OllamaProbe reports whether an Ollama server answers at host.
type OllamaProbe func(ctx context.Context, host, model string) error

// ProbeOllama is the default OllamaProbe. It lists the installed models
// without loading one.
func ProbeOllama(ctx context.Context, host, model string) error {
	e, err := embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
		Host:            host,
		Model:           model,
		Timeout:         embedderProbeTimeout,
		SkipHealthCheck: true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if !e.Available(ctx) {
		return fmt.Errorf("no response from %s/api/tags", strings.TrimRight(host, "/"))
	}
	return nil
}

func (c *Checker) runEmbedder(ctx context.Context) []CheckResult {
	return []CheckResult{c.CheckEmbedder(ctx)}
}

// CheckEmbedder warns when the configured Ollama server is unreachable.
// It never fails: the validation suite can run before Ollama is started.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	const name = "embedder"

	cfg := c.effectiveConfig().Embeddings
	if strings.EqualFold(cfg.Provider, string(embed.ProviderStatic)) {
		return pass(name, false, "static embedder (offline, no model download)")
	}

	ctx, cancel := context.WithTimeout(ctx, embedderProbeTimeout)
	defer cancel()

	if err := c.probeOllama(ctx, cfg.OllamaHost, cfg.ModelName); err != nil {
		r := warn(name, fmt.Sprintf("Ollama not reachable at %s", cfg.OllamaHost))
		r.Details = fmt.Sprintf("%v\nStart it with 'ollama serve' and 'ollama pull %s', or set %s=static",
			err, cfg.ModelName, embed.ProviderEnv)
		return r
	}
	return pass(name, false, fmt.Sprintf("Ollama reachable at %s (model %s)", cfg.OllamaHost, cfg.ModelName))
}
