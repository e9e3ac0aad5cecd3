package main

import (
	"fmt"

	"github.com/nvandessel/solirona/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve the simulation over the Model Context Protocol (stdio)",
		Long: `Start an MCP server on stdin/stdout exposing the solirona_* tools and the
solirona://state resource. Tool calls are appended to audit.jsonl in the data
directory.

Logs go to stderr so they do not corrupt the protocol stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			dataDir, err := cfg.ResolvedDataDir()
			if err != nil {
				return err
			}

			engine, err := newEngine(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating engine: %w", err)
			}

			srv, err := mcp.NewServer(&mcp.Config{
				Name:     "solirona",
				Version:  version,
				Engine:   engine,
				AuditDir: dataDir,
				Logger:   logger,
			})
			if err != nil {
				return fmt.Errorf("creating MCP server: %w", err)
			}

			if autorun, _ := cmd.Flags().GetBool("autorun"); autorun {
				engine.Start(cfg.Simulation.TickInterval)
				defer engine.Stop()
			}

			logger.Info("mcp server starting", "nodes", engine.Len(), "running", engine.Running())
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().Bool("autorun", false, "Tick automatically at simulation.tick_interval")
	return cmd
}
