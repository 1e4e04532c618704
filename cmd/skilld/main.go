// Package main implements the skilld CLI and daemon.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skilld/internal/config"
	"github.com/fyrsmithlabs/skilld/internal/detect"
	"github.com/fyrsmithlabs/skilld/internal/hierarchy"
	"github.com/fyrsmithlabs/skilld/internal/logging"
	"github.com/fyrsmithlabs/skilld/internal/skillbook"
	"github.com/fyrsmithlabs/skilld/internal/store"
)

var (
	// configPath is the config file location; empty uses the default.
	configPath string
	// workDir is the project directory used for context detection.
	workDir string
	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "skilld",
	Short: "Hierarchical skillbook for coding agents",
	Long: `skilld stores learned coding skills in a layered hierarchy
(global, language, framework, project) and serves the merged view for the
current project context.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/skilld/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&workDir, "dir", ".", "project directory for context detection")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(promoteCmd)
}

// bootstrap loads config, builds the logger, and returns a skillbook
// service loaded for the detected project context.
func bootstrap() (*config.Config, *zap.Logger, *skillbook.Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.ToLogging())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	svc, err := skillbook.NewService(
		hierarchy.DefaultConfig(cfg.Skillbook.BaseDir),
		store.New(logger),
		logger,
		skillbook.WithThreshold(cfg.Skillbook.DedupThreshold),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create skillbook service: %w", err)
	}

	pctx := detect.Detect(workDir)
	if _, err := svc.LoadHierarchical(pctx); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load skillbooks: %w", err)
	}

	return cfg, logger, svc, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
