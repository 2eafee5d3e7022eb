package cmd

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pubrag/internal/config"
)

func TestConfigShow_RedactsPassword(t *testing.T) {
	// Given: a password and a URI override in .env
	root := testWorkspace(t, "NEO4J_PASSWORD=hunter2\nNEO4J_URI=bolt://graph:7687\n")

	// When: showing the effective configuration
	out, err := execute(t, "--root", root, "config", "show")

	// Then: the override is visible, the password is not
	require.NoError(t, err)
	assert.Contains(t, out, "bolt://graph:7687")
	assert.Contains(t, out, redacted)
	assert.Contains(t, out, "From environment:")
	assert.Contains(t, out, "neo4j.uri")
	assert.NotContains(t, out, "hunter2")
}

func TestConfigShow_JSON(t *testing.T) {
	root := testWorkspace(t, "NEO4J_PASSWORD=hunter2\n")

	out, err := execute(t, "--root", root, "config", "show", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")

	var got config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "bolt://localhost:7687", got.Neo4j.URI)
	assert.Equal(t, "nomic-embed-text", got.Embeddings.ModelName)
}

func TestConfigGet(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{"file value", []string{"neo4j", "user"}, "neo4j\n", ""},
		{"with source", []string{"embeddings", "model_name", "--source"}, "nomic-embed-text\t(file)\n", ""},
		{"env value", []string{"neo4j", "uri", "--source"}, "bolt://graph:7687\t(env)\n", ""},
		{"password redacted", []string{"neo4j", "password"}, redacted + "\n", ""},
		{"unknown key", []string{"neo4j", "nope"}, "", "neo4j.nope is not set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := testWorkspace(t, "NEO4J_PASSWORD=hunter2\nNEO4J_URI=bolt://graph:7687\n")

			out, err := execute(t, append([]string{"--root", root, "config", "get"}, tt.args...)...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestConfigInit_KeepsExisting(t *testing.T) {
	// Given: a workspace whose config was edited
	root := testWorkspace(t, "")
	path := config.ConfigPath(root)
	require.NoError(t, os.WriteFile(path, []byte("neo4j:\n  uri: bolt://edited:7687\n"), 0o644))

	// When: running init without --force
	out, err := execute(t, "--root", root, "config", "init")
	require.NoError(t, err)

	// Then: the edit survives
	assert.Contains(t, out, "Configuration already exists")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bolt://edited:7687")

	// When: forcing
	out, err = execute(t, "--root", root, "config", "init", "--force")
	require.NoError(t, err)

	// Then: the template is back
	assert.Contains(t, out, "Created configuration")
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bolt://localhost:7687")
}

func TestConfigPath(t *testing.T) {
	root := testWorkspace(t, "")

	out, err := execute(t, "--root", root, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, config.ConfigPath(root)+"\n", out)
}
