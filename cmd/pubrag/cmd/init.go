package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pubrag/internal/config"
	"github.com/Aman-CERP/pubrag/internal/output"
	"github.com/Aman-CERP/pubrag/internal/preflight"
)

// EnvExampleFile is the dotenv template written next to .env.
const EnvExampleFile = ".env.example"

// MCPServerConfig is one server entry in .mcp.json.
type MCPServerConfig struct {
	Type    string   `json:"type,omitempty"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`
}

// MCPConfig is the root of .mcp.json.
type MCPConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

func newInitCmd() *cobra.Command {
	var (
		force    bool
		writeMCP bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a pubrag workspace",
		Long: `Create the workspace layout that 'pubrag validate' expects:

  embeddings/ vector_store/ hybrid_search/ subgraph_extraction/ rag/
  config/ tests/ scripts/
  config/config.yaml   from the built-in template
  .env.example         copy to .env and set NEO4J_PASSWORD

Existing files are kept unless --force is given. Directories are never removed.`,
		Example: `  # Scaffold the current directory
  pubrag init

  # Scaffold another directory and register 'pubrag serve' in .mcp.json
  pubrag init --root ~/work/pubs --mcp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force, writeMCP)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config/config.yaml and .env.example")
	cmd.Flags().BoolVar(&writeMCP, "mcp", false, "Also write .mcp.json registering 'pubrag serve'")

	return cmd
}

func runInit(cmd *cobra.Command, force, writeMCP bool) error {
	out := output.New(cmd.OutOrStdout())

	root := rootDir
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	created := 0
	for _, d := range preflight.RequiredDirectories {
		path := filepath.Join(root, d)
		if info, err := os.Stat(path); err == nil {
			if !info.IsDir() {
				return fmt.Errorf("'%s' exists and is not a directory", d)
			}
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		created++
	}
	out.Successf("Workspace directories ready (%d created)", created)

	report := func(path string, written bool) {
		rel, _ := filepath.Rel(root, path)
		if written {
			out.Successf("Wrote %s", rel)
		} else {
			out.Statusf("⏭️ ", "Kept existing %s", rel)
		}
	}

	cfgPath := config.ConfigPath(root)
	written, err := config.WriteTemplate(cfgPath, force)
	if err != nil {
		return err
	}
	report(cfgPath, written)

	envPath := filepath.Join(root, EnvExampleFile)
	written, err = config.WriteEnvTemplate(envPath, force)
	if err != nil {
		return err
	}
	report(envPath, written)

	if writeMCP {
		mcpPath := filepath.Join(root, ".mcp.json")
		written, err := writeMCPConfig(mcpPath, root, force)
		if err != nil {
			return err
		}
		report(mcpPath, written)
	}

	out.Newline()
	out.Status("📋", "Next steps:")
	if _, err := os.Stat(config.EnvPath(root)); err != nil {
		out.Status("", "  1. cp .env.example .env and set NEO4J_PASSWORD")
	} else {
		out.Status("", "  1. Check NEO4J_PASSWORD in .env")
	}
	out.Status("", "  2. pubrag validate")
	out.Status("", "  3. pubrag index")
	return nil
}

// writeMCPConfig adds a pubrag entry to .mcp.json, keeping other servers.
func writeMCPConfig(path, root string, force bool) (bool, error) {
	cfg := MCPConfig{MCPServers: map[string]MCPServerConfig{}}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return false, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if cfg.MCPServers == nil {
			cfg.MCPServers = map[string]MCPServerConfig{}
		}
		if _, ok := cfg.MCPServers["pubrag"]; ok && !force {
			return false, nil
		}
	}

	cfg.MCPServers["pubrag"] = MCPServerConfig{
		Type:    "stdio",
		Command: "pubrag",
		Args:    []string{"serve"},
		Cwd:     root,
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
