// Package config loads pubrag settings from config/config.yaml, the .env file
// and the process environment.
//
// Precedence, lowest to highest:
//  1. Defaults (NewConfig)
//  2. config/config.yaml under the workspace root
//  3. Environment variables (NEO4J_*, PUBRAG_*), including those loaded from .env
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
	"github.com/Aman-CERP/pubrag/internal/graph"
)

const (
	// ConfigDir is the workspace directory holding config.yaml.
	ConfigDir = "config"
	// ConfigFile is the settings file name inside ConfigDir.
	ConfigFile = "config.yaml"
	// EnvFile is the dotenv file at the workspace root.
	EnvFile = ".env"
)

// Config is the typed view of config/config.yaml.
type Config struct {
	Neo4j       Neo4jConfig       `yaml:"neo4j" json:"neo4j"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	VectorStore VectorStoreConfig `yaml:"vector_store" json:"vector_store"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	RAG         RAGConfig         `yaml:"rag" json:"rag"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// Neo4jConfig holds graph database connection settings.
type Neo4jConfig struct {
	URI      string `yaml:"uri" json:"uri"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"-"`
	Database string `yaml:"database,omitempty" json:"database,omitempty"`

	MaxPoolSize int `yaml:"max_pool_size" json:"max_pool_size"`
	// ConnectTimeout is a Go duration string, e.g. "30s".
	ConnectTimeout string `yaml:"connect_timeout" json:"connect_timeout"`
}

// EmbeddingsConfig selects and tunes the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" or "static".
	Provider  string `yaml:"provider" json:"provider"`
	ModelName string `yaml:"model_name" json:"model_name"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
	// Dimensions of 0 means detect from the model.
	Dimensions        int     `yaml:"dimensions" json:"dimensions"`
	OllamaHost        string  `yaml:"ollama_host" json:"ollama_host"`
	CacheSize         int     `yaml:"cache_size" json:"cache_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// VectorStoreConfig locates the persisted indexes.
type VectorStoreConfig struct {
	// PersistDir is relative to the workspace root unless absolute.
	PersistDir string `yaml:"persist_dir" json:"persist_dir"`
	Collection string `yaml:"collection" json:"collection"`
	// BM25Backend is "sqlite" or "bleve".
	BM25Backend string `yaml:"bm25_backend" json:"bm25_backend"`
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	BM25Weight     float64 `yaml:"bm25_weight" json:"bm25_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	RRFConstant    int     `yaml:"rrf_constant" json:"rrf_constant"`
	DefaultLimit   int     `yaml:"default_limit" json:"default_limit"`
	// QueryLog records queries to telemetry.db in the persist dir.
	QueryLog bool `yaml:"query_log" json:"query_log"`
}

// RAGConfig tunes answer generation.
type RAGConfig struct {
	Model                  string `yaml:"model" json:"model"`
	MaxContextPublications int    `yaml:"max_context_publications" json:"max_context_publications"`
	SubgraphDepth          int    `yaml:"subgraph_depth" json:"subgraph_depth"`
}

// LoggingConfig overrides the logging defaults.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file,omitempty" json:"file,omitempty"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Neo4j: Neo4jConfig{
			URI:            "bolt://localhost:7687",
			User:           "neo4j",
			MaxPoolSize:    50,
			ConnectTimeout: "30s",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			ModelName:  "nomic-embed-text",
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
			CacheSize:  1000,
		},
		VectorStore: VectorStoreConfig{
			PersistDir:  filepath.Join("data", "vector_store"),
			Collection:  "publications",
			BM25Backend: "sqlite",
		},
		Search: SearchConfig{
			BM25Weight:     0.35,
			SemanticWeight: 0.65,
			RRFConstant:    60,
			DefaultLimit:   10,
			QueryLog:       true,
		},
		RAG: RAGConfig{
			Model:                  "llama3.2",
			MaxContextPublications: 5,
			SubgraphDepth:          1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ClientConfig converts the section for graph.NewNeo4jClient.
func (n Neo4jConfig) ClientConfig() (graph.ClientConfig, error) {
	cc := graph.DefaultClientConfig(n.URI, n.User, n.Password)
	cc.Database = n.Database
	if n.MaxPoolSize > 0 {
		cc.MaxPoolSize = n.MaxPoolSize
	}
	if strings.TrimSpace(n.ConnectTimeout) != "" {
		d, err := time.ParseDuration(n.ConnectTimeout)
		if err != nil {
			return cc, pErr(fmt.Sprintf("neo4j.connect_timeout: %v", err))
		}
		cc.ConnectTimeout = d
	}
	return cc, nil
}

// ConfigPath returns <root>/config/config.yaml.
func ConfigPath(root string) string {
	return filepath.Join(root, ConfigDir, ConfigFile)
}

// EnvPath returns <root>/.env.
func EnvPath(root string) string {
	return filepath.Join(root, EnvFile)
}

// ResolvePersistDir returns the persist dir as an absolute path under root.
func (c *Config) ResolvePersistDir(root string) string {
	if filepath.IsAbs(c.VectorStore.PersistDir) {
		return c.VectorStore.PersistDir
	}
	return filepath.Join(root, c.VectorStore.PersistDir)
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Neo4j.URI) == "" {
		return pErr("neo4j.uri must not be empty")
	}
	if strings.TrimSpace(c.Embeddings.ModelName) == "" {
		return pErr("embeddings.model_name must not be empty")
	}
	if c.Embeddings.BatchSize <= 0 {
		return pErr(fmt.Sprintf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize))
	}
	if c.Embeddings.Dimensions < 0 {
		return pErr(fmt.Sprintf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions))
	}
	if c.Embeddings.RequestsPerSecond < 0 {
		return pErr("embeddings.requests_per_second must be non-negative")
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "ollama", "static":
	default:
		return pErr(fmt.Sprintf("embeddings.provider must be 'ollama' or 'static', got %q", c.Embeddings.Provider))
	}

	switch strings.ToLower(c.VectorStore.BM25Backend) {
	case "sqlite", "bleve":
	default:
		return pErr(fmt.Sprintf("vector_store.bm25_backend must be 'sqlite' or 'bleve', got %q", c.VectorStore.BM25Backend))
	}
	if strings.TrimSpace(c.VectorStore.PersistDir) == "" {
		return pErr("vector_store.persist_dir must not be empty")
	}

	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return pErr(fmt.Sprintf("search.bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight))
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return pErr(fmt.Sprintf("search.semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight))
	}
	if sum := c.Search.BM25Weight + c.Search.SemanticWeight; math.Abs(sum-1.0) > 0.01 {
		return pErr(fmt.Sprintf("search.bm25_weight + search.semantic_weight must equal 1.0, got %.2f", sum))
	}
	if c.Search.RRFConstant <= 0 {
		return pErr(fmt.Sprintf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant))
	}

	if c.RAG.SubgraphDepth < 0 || c.RAG.SubgraphDepth > 2 {
		return pErr(fmt.Sprintf("rag.subgraph_depth must be 0, 1 or 2, got %d", c.RAG.SubgraphDepth))
	}

	return nil
}

func pErr(msg string) error {
	return perrors.ConfigError(msg, nil)
}

// applyEnvOverrides copies NEO4J_* and PUBRAG_* variables onto c and
// returns the section.key names they set.
func (c *Config) applyEnvOverrides() []string {
	var set []string
	str := func(env, name string, dst *string) {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*dst = v
			set = append(set, name)
		}
	}

	str("NEO4J_URI", "neo4j.uri", &c.Neo4j.URI)
	str("NEO4J_USER", "neo4j.user", &c.Neo4j.User)
	str("NEO4J_PASSWORD", "neo4j.password", &c.Neo4j.Password)
	str("NEO4J_DATABASE", "neo4j.database", &c.Neo4j.Database)
	str("PUBRAG_EMBEDDER", "embeddings.provider", &c.Embeddings.Provider)
	str("PUBRAG_EMBED_MODEL", "embeddings.model_name", &c.Embeddings.ModelName)
	str("PUBRAG_OLLAMA_HOST", "embeddings.ollama_host", &c.Embeddings.OllamaHost)
	str("PUBRAG_PERSIST_DIR", "vector_store.persist_dir", &c.VectorStore.PersistDir)
	str("PUBRAG_LOG_LEVEL", "logging.level", &c.Logging.Level)

	if v := os.Getenv("PUBRAG_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embeddings.BatchSize = n
			set = append(set, "embeddings.batch_size")
		}
	}
	return set
}

// WriteYAML writes c to path, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// FindWorkspaceRoot walks up from start to the first directory containing
// config/config.yaml or .env. It returns the absolute start when none is found.
func FindWorkspaceRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dir := abs
	for {
		if fileExists(ConfigPath(dir)) || fileExists(EnvPath(dir)) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
