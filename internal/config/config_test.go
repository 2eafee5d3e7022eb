package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
)

// clearEnv unsets every variable the loader reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"NEO4J_URI", "NEO4J_USER", "NEO4J_PASSWORD", "NEO4J_DATABASE",
		"PUBRAG_EMBEDDER", "PUBRAG_EMBED_MODEL", "PUBRAG_OLLAMA_HOST",
		"PUBRAG_PERSIST_DIR", "PUBRAG_LOG_LEVEL", "PUBRAG_BATCH_SIZE",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeWorkspace(t *testing.T, yamlBody, envBody string) string {
	t.Helper()
	root := t.TempDir()
	if yamlBody != "" {
		require.NoError(t, os.MkdirAll(filepath.Join(root, ConfigDir), 0o755))
		require.NoError(t, os.WriteFile(ConfigPath(root), []byte(yamlBody), 0o644))
	}
	if envBody != "" {
		require.NoError(t, os.WriteFile(EnvPath(root), []byte(envBody), 0o600))
	}
	return root
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, "neo4j", cfg.Neo4j.User)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.ModelName)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, "sqlite", cfg.VectorStore.BM25Backend)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.InDelta(t, 1.0, cfg.Search.BM25Weight+cfg.Search.SemanticWeight, 0.001)
	assert.True(t, cfg.Search.QueryLog)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	root := writeWorkspace(t, `
neo4j:
  uri: bolt://graph:7687
  user: reader
embeddings:
  model_name: mxbai-embed-large
  batch_size: 16
vector_store:
  persist_dir: /var/lib/pubrag
`, "")

	s, err := Load(root)
	require.NoError(t, err)

	v, ok := s.Get("neo4j", "uri")
	require.True(t, ok)
	assert.Equal(t, "bolt://graph:7687", v)
	assert.Equal(t, "reader", s.GetString("neo4j", "user"))
	assert.Equal(t, 16, s.GetInt("embeddings", "batch_size", 0))
	assert.Equal(t, "mxbai-embed-large", s.GetString("embeddings", "model_name"))
	assert.Equal(t, "/var/lib/pubrag", s.Config().ResolvePersistDir(root))

	// Untouched keys keep defaults but are not "defined".
	assert.Equal(t, "sqlite", s.GetString("vector_store", "bm25_backend"))
	assert.Equal(t, SourceFile, s.Source("neo4j", "uri"))
	assert.Equal(t, SourceDefault, s.Source("vector_store", "bm25_backend"))
	assert.False(t, s.Defined("vector_store", "bm25_backend"))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	root := writeWorkspace(t, "neo4j:\n  password: from-file\n", "")
	t.Setenv("NEO4J_PASSWORD", "from-env")
	t.Setenv("PUBRAG_BATCH_SIZE", "8")

	s, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "from-env", s.GetString("neo4j", "password"))
	assert.Equal(t, SourceEnv, s.Source("neo4j", "password"))
	assert.Equal(t, 8, s.Config().Embeddings.BatchSize)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeConfigNotFound, perrors.GetCode(err))
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	root := writeWorkspace(t, "neo4j: [unclosed\n", "")
	_, err := Load(root)
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeConfigInvalid, perrors.GetCode(err))
}

func TestGet_UnknownKeys(t *testing.T) {
	clearEnv(t)
	root := writeWorkspace(t, "neo4j:\n  uri: bolt://x:7687\n", "")
	s, err := Load(root)
	require.NoError(t, err)

	_, ok := s.Get("nope", "uri")
	assert.False(t, ok)
	_, ok = s.Get("neo4j", "nope")
	assert.False(t, ok)
	assert.Equal(t, "", s.GetString("neo4j", "nope"))
	assert.Equal(t, 7, s.GetInt("neo4j", "nope", 7))
	assert.Contains(t, s.Sections(), "embeddings")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"empty uri", func(c *Config) { c.Neo4j.URI = " " }, "neo4j.uri"},
		{"empty model", func(c *Config) { c.Embeddings.ModelName = "" }, "embeddings.model_name"},
		{"zero batch", func(c *Config) { c.Embeddings.BatchSize = 0 }, "batch_size"},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "mlx" }, "provider"},
		{"bad backend", func(c *Config) { c.VectorStore.BM25Backend = "lucene" }, "bm25_backend"},
		{"weights out of range", func(c *Config) { c.Search.BM25Weight = 1.5 }, "bm25_weight"},
		{"weights do not sum", func(c *Config) { c.Search.BM25Weight = 0.2 }, "must equal 1.0"},
		{"depth too deep", func(c *Config) { c.RAG.SubgraphDepth = 3 }, "subgraph_depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDotEnv_DoesNotOverrideProcessEnv(t *testing.T) {
	clearEnv(t)
	root := writeWorkspace(t, "", "NEO4J_PASSWORD=secret\nNEO4J_USER=dotenv-user\n")
	t.Setenv("NEO4J_USER", "shell-user")

	loaded, err := LoadDotEnv(root)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "secret", os.Getenv("NEO4J_PASSWORD"))
	assert.Equal(t, "shell-user", os.Getenv("NEO4J_USER"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	loaded, err := LoadDotEnv(t.TempDir())
	assert.NoError(t, err)
	assert.False(t, loaded)
}

func TestReadDotEnv(t *testing.T) {
	root := writeWorkspace(t, "", "NEO4J_PASSWORD=\n")
	values, err := ReadDotEnv(root)
	require.NoError(t, err)

	v, ok := values["NEO4J_PASSWORD"]
	assert.True(t, ok)
	assert.Empty(t, v)

	_, err = ReadDotEnv(t.TempDir())
	assert.Error(t, err)
}

func TestFindWorkspaceRoot(t *testing.T) {
	root := writeWorkspace(t, "neo4j:\n  uri: bolt://x\n", "")
	nested := filepath.Join(root, "rag", "prompts")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := FindWorkspaceRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	lonely := t.TempDir()
	got, err = FindWorkspaceRoot(lonely)
	require.NoError(t, err)
	assert.Equal(t, lonely, got)
}

func TestWriteTemplate(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()

	written, err := WriteTemplate(ConfigPath(root), false)
	require.NoError(t, err)
	assert.True(t, written)

	// The template itself must load cleanly.
	s, err := Load(root)
	require.NoError(t, err)
	assert.True(t, s.Defined("neo4j", "uri"))
	assert.True(t, s.Defined("embeddings", "model_name"))

	written, err = WriteTemplate(ConfigPath(root), false)
	require.NoError(t, err)
	assert.False(t, written, "existing file must not be overwritten")

	written, err = WriteEnvTemplate(filepath.Join(root, ".env.example"), false)
	require.NoError(t, err)
	assert.True(t, written)
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	cfg := NewConfig()
	cfg.Neo4j.URI = "neo4j://cluster:7687"
	require.NoError(t, cfg.WriteYAML(ConfigPath(root)))

	s, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "neo4j://cluster:7687", s.Config().Neo4j.URI)
}

func TestNeo4jConfig_ClientConfig(t *testing.T) {
	n := NewConfig().Neo4j
	n.Password = "secret"
	n.Database = "pubs"
	n.MaxPoolSize = 8
	n.ConnectTimeout = "5s"

	cc, err := n.ClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "bolt://localhost:7687", cc.URI)
	assert.Equal(t, "secret", cc.Password)
	assert.Equal(t, "pubs", cc.Database)
	assert.Equal(t, 8, cc.MaxPoolSize)
	assert.Equal(t, 5*time.Second, cc.ConnectTimeout)

	n.ConnectTimeout = "soon"
	_, err = n.ClientConfig()
	assert.Error(t, err)
}
