package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/pubrag/internal/config"
	"github.com/Aman-CERP/pubrag/internal/output"
)

const redacted = "********"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the workspace configuration",
		Long: `Inspect or create config/config.yaml.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. config/config.yaml
  3. Environment variables, including those loaded from .env
     (NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD, NEO4J_DATABASE, PUBRAG_EMBEDDER,
      PUBRAG_EMBED_MODEL, PUBRAG_OLLAMA_HOST, PUBRAG_PERSIST_DIR, PUBRAG_LOG_LEVEL)`,
		Example: `  # Show the effective configuration
  pubrag config show

  # Read one setting
  pubrag config get neo4j uri

  # Write config/config.yaml from the template
  pubrag config init`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config/config.yaml from the template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the configuration after defaults, config/config.yaml and the environment are merged. The Neo4j password is redacted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	var showSource bool

	cmd := &cobra.Command{
		Use:   "get <section> <key>",
		Short: "Print one setting",
		Example: `  pubrag config get embeddings model_name
  pubrag config get neo4j uri --source`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd, args[0], args[1], showSource)
		},
	}

	cmd.Flags().BoolVar(&showSource, "source", false, "Also print where the value came from (default, file, env)")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := workspaceRoot()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), config.ConfigPath(root))
			return nil
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	root, err := workspaceRoot()
	if err != nil {
		return err
	}

	path := config.ConfigPath(root)
	written, err := config.WriteTemplate(path, force)
	if err != nil {
		return err
	}
	if !written {
		out.Warning("Configuration already exists")
		out.Statusf("📁", "Location: %s", path)
		out.Status("💡", "Use --force to overwrite it with the template")
		return nil
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Set neo4j.uri and embeddings.model_name")
	out.Status("", "  2. Put NEO4J_PASSWORD in .env")
	out.Status("", "  3. Run 'pubrag validate'")
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool) error {
	ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	cfg := *ws.config()
	if cfg.Neo4j.Password != "" {
		cfg.Neo4j.Password = redacted
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(cfg)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	out.Statusf("📁", "Source: %s", config.ConfigPath(ws.root))
	if env := envOverrides(ws.settings); len(env) > 0 {
		out.Statusf("🌱", "From environment: %s", strings.Join(env, ", "))
	}
	out.Newline()
	out.Code(string(data))
	return nil
}

func runConfigGet(cmd *cobra.Command, section, key string, showSource bool) error {
	ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	if _, ok := ws.settings.Get(section, key); !ok {
		return fmt.Errorf("%s.%s is not set", section, key)
	}

	value := ws.settings.GetString(section, key)
	if section == "neo4j" && key == "password" && value != "" {
		value = redacted
	}
	if showSource {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t(%s)\n", value, ws.settings.Source(section, key))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

// envOverrides lists the section.key settings taken from the environment.
func envOverrides(s *config.Settings) []string {
	var keys []string
	for _, sk := range knownEnvKeys {
		if s.Source(sk[0], sk[1]) == config.SourceEnv {
			keys = append(keys, sk[0]+"."+sk[1])
		}
	}
	sort.Strings(keys)
	return keys
}

var knownEnvKeys = [][2]string{
	{"neo4j", "uri"},
	{"neo4j", "user"},
	{"neo4j", "password"},
	{"neo4j", "database"},
	{"embeddings", "provider"},
	{"embeddings", "model_name"},
	{"embeddings", "batch_size"},
	{"embeddings", "ollama_host"},
	{"vector_store", "persist_dir"},
	{"logging", "level"},
}
