package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/pubrag/internal/config"
)

// PasswordEnv is the variable the graph connection authenticates with.
const PasswordEnv = "NEO4J_PASSWORD"

// RequiredDirectories must exist under the workspace root. pubrag init
// creates them.
var RequiredDirectories = []string{
	"embeddings",
	"vector_store",
	"hybrid_search",
	"subgraph_extraction",
	"rag",
	"config",
	"tests",
	"scripts",
}

func (c *Checker) runFiles() []CheckResult {
	return []CheckResult{
		c.CheckEnvFile(),
		c.CheckEnvVariables(),
		c.CheckConfigFile(),
		c.CheckConfigLoads(),
		c.CheckDirectoryStructure(),
	}
}

func (c *Checker) abs(path string) string {
	if a, err := filepath.Abs(path); err == nil {
		return a
	}
	return path
}

// CheckEnvFile requires <root>/.env.
func (c *Checker) CheckEnvFile() CheckResult {
	const name = "env_file"

	path := config.EnvPath(c.root)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fail(name, true, ".env file not found. Copy from .env.example")
	}
	return pass(name, true, ".env file found at: "+c.abs(path))
}

// CheckEnvVariables requires a non-empty NEO4J_PASSWORD in the process
// environment or the .env file. The process environment wins, as it does
// when .env is loaded.
func (c *Checker) CheckEnvVariables() CheckResult {
	const name = "env_variables"

	value, ok := c.lookupEnv(PasswordEnv)
	if !ok {
		if values, err := config.ReadDotEnv(c.root); err == nil {
			value, ok = values[PasswordEnv]
		}
	}

	if !ok {
		return fail(name, true, PasswordEnv+" not set in .env")
	}
	if value == "" {
		return fail(name, true, PasswordEnv+" is empty")
	}
	return pass(name, true, "Environment variables loaded successfully")
}

// CheckConfigFile requires <root>/config/config.yaml.
func (c *Checker) CheckConfigFile() CheckResult {
	const name = "config_file"

	path := config.ConfigPath(c.root)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fail(name, true, "config/config.yaml not found")
	}
	return pass(name, true, "Config file found at: "+c.abs(path))
}

// CheckConfigLoads loads the settings and requires neo4j.uri and
// embeddings.model_name to be set by the file or the environment.
func (c *Checker) CheckConfigLoads() CheckResult {
	const name = "config_loads"

	s, err := c.loadSettings()
	if err != nil {
		return fail(name, true, fmt.Sprintf("failed to load config: %v", err))
	}

	uri := s.GetString("neo4j", "uri")
	if !s.Defined("neo4j", "uri") || uri == "" {
		return fail(name, true, "neo4j.uri not in config")
	}
	model := s.GetString("embeddings", "model_name")
	if !s.Defined("embeddings", "model_name") || model == "" {
		return fail(name, true, "embeddings.model_name not in config")
	}

	r := pass(name, true, fmt.Sprintf("Neo4j URI: %s, Embedding model: %s", uri, model))
	r.Details = fmt.Sprintf("Neo4j URI: %s\nEmbedding model: %s", uri, model)
	return r
}

// CheckDirectoryStructure requires every RequiredDirectories entry to be a
// directory. The message names the first problem; Details lists all of them.
func (c *Checker) CheckDirectoryStructure() CheckResult {
	const name = "directory_structure"

	var problems []string
	for _, dir := range RequiredDirectories {
		info, err := os.Stat(filepath.Join(c.root, dir))
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("Directory '%s' not found", dir))
		case !info.IsDir():
			problems = append(problems, fmt.Sprintf("'%s' is not a directory", dir))
		}
	}

	if len(problems) > 0 {
		r := fail(name, true, problems[0])
		r.Details = strings.Join(problems, "\n")
		return r
	}
	return pass(name, true, "All required directories exist")
}
