package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HendryAvila/blueprint/internal/config"
	"github.com/HendryAvila/blueprint/internal/logging"
	"github.com/HendryAvila/blueprint/internal/server"
)

// cli carries what every subcommand needs once the root has loaded config.
type cli struct {
	cfgFile  string
	logLevel string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "blueprint",
		Short: "Turn plain-language requirements into validated module structures",
		Long: `Blueprint predicts the structure of a data-capture module (sections, fields,
workflow steps) from a requirement written in plain language, validates and
repairs it, and learns from what users accept, modify or reject.

Run "blueprint serve" from your AI tool's MCP config:

  {
    "mcpServers": {
      "blueprint": { "command": "blueprint", "args": ["serve"] }
    }
  }`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.load,
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.blueprint.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(c),
		newHTTPCmd(c),
		newPredictCmd(c),
		newPatternsCmd(c),
		newVersionCmd(),
	)
	return root
}

// load reads configuration and builds the logger.
func (c *cli) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	c.cfg, c.logger = cfg, logger
	return nil
}

// withApp builds the application, runs fn and releases everything.
func (c *cli) withApp(ctx context.Context, fn func(*server.App) error) error {
	app, cleanup, err := server.New(ctx, c.cfg, c.logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()
	defer func() { _ = c.logger.Sync() }()
	return fn(app)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Version needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blueprint v%s\n", server.Version)
		},
	}
}
