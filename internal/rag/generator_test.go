package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
)

func TestOllamaGenerator_Generate(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Model: got.Model, Response: "\nAn answer.\n", Done: true})
	}))
	defer server.Close()

	g := NewOllamaGenerator(OllamaConfig{Host: server.URL + "/", Model: "qwen3", Temperature: 0.2})
	out, err := g.Generate(context.Background(), "prompt text")
	require.NoError(t, err)

	assert.Equal(t, "An answer.", out)
	assert.Equal(t, "qwen3", got.Model)
	assert.Equal(t, "prompt text", got.Prompt)
	assert.False(t, got.Stream)
	assert.InDelta(t, 0.2, got.Options.Temperature, 1e-9)
	assert.Equal(t, "qwen3", g.Model())
}

func TestOllamaGenerator_Defaults(t *testing.T) {
	g := NewOllamaGenerator(OllamaConfig{MaxRetries: -1})
	assert.Equal(t, DefaultModel, g.Model())
	assert.Equal(t, DefaultOllamaHost, g.cfg.Host)
	assert.Equal(t, defaultGenerateTimeout, g.cfg.Timeout)
	assert.Equal(t, 0, g.retry.MaxRetries)
}

func TestOllamaGenerator_StatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantCode   string
		wantSugg   string
		wantCalls  int32
		maxRetries int
	}{
		{name: "missing model", status: http.StatusNotFound, wantCode: perrors.ErrCodeGenerateFailed, wantSugg: "ollama pull llama3.2", wantCalls: 1, maxRetries: 2},
		{name: "bad request", status: http.StatusBadRequest, wantCode: perrors.ErrCodeGenerateFailed, wantCalls: 1, maxRetries: 2},
		{name: "server error retried", status: http.StatusInternalServerError, wantCode: perrors.ErrCodeEmbedUnavailable, wantCalls: 3, maxRetries: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			g := NewOllamaGenerator(OllamaConfig{Host: server.URL, MaxRetries: tt.maxRetries})
			g.retry.InitialDelay = time.Millisecond
			g.retry.Jitter = false

			_, err := g.Generate(context.Background(), "p")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, perrors.GetCode(err))
			assert.Contains(t, err.Error(), "nope")
			assert.Equal(t, tt.wantCalls, calls.Load())

			if tt.wantSugg != "" {
				var pe *perrors.PubError
				require.ErrorAs(t, err, &pe)
				assert.Contains(t, pe.Suggestion, tt.wantSugg)
			}
		})
	}
}

func TestOllamaGenerator_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	_, err := NewOllamaGenerator(OllamaConfig{Host: server.URL}).Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeGenerateFailed, perrors.GetCode(err))
}

func TestOllamaGenerator_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	g := NewOllamaGenerator(OllamaConfig{Host: url, MaxRetries: 0})
	_, err := g.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeEmbedUnavailable, perrors.GetCode(err))
	assert.True(t, perrors.IsRetryable(err))
}
