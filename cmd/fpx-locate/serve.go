package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	mcpserver "github.com/fiberplane/fpx-sub000/pkg/mcp"
	"github.com/fiberplane/fpx-sub000/pkg/mcplog"
	"github.com/fiberplane/fpx-sub000/pkg/workspace"
)

func (c *cli) serveCommand() *cobra.Command {
	var (
		watch   bool
		logFile string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start an MCP server exposing locate_route, locate_handler and list_routes.
Tool calls without code or paths analyze the workspace root. With --watch,
changed files are re-read on the next call.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wsCfg, err := c.workspaceConfig()
			if err != nil {
				return err
			}
			root, err := filepath.Abs(c.root())
			if err != nil {
				return fmt.Errorf("failed to resolve root: %w", err)
			}

			loc, files, err := c.newLocator()
			if err != nil {
				return err
			}
			defer files.Close()
			defer loc.Close()

			var callLog *mcplog.Logger
			if logFile != "" {
				callLog, err = mcplog.NewLogger(logFile)
				if err != nil {
					return fmt.Errorf("failed to open call log: %w", err)
				}
				defer callLog.Close()
			}

			if watch {
				w, err := workspace.NewWatcher(wsCfg, files, func(changed []string) {
					loc.Purge()
					c.logger.Info("workspace changed", "files", len(changed))
				}, c.logger)
				if err != nil {
					return err
				}
				if err := w.Start(root); err != nil {
					return err
				}
				defer w.Stop()
			}

			srv := mcpserver.NewServer(loc, files, mcpserver.Options{
				Root:      root,
				Workspace: wsCfg,
				CallLog:   callLog,
				Version:   version,
				Logger:    c.logger,
			})
			c.logger.Info("serving MCP on stdio", "root", root, "watch", watch)
			if err := srv.ServeStdio(); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "watch the root for changes")
	cmd.Flags().StringVar(&logFile, "log-file", "", "append a JSONL record of every tool call to this file")
	return cmd
}

func (c *cli) callsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "calls <log-file>",
		Short: "Summarize a tool call log written by serve --log-file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := mcplog.ReadEntries(args[0])
			if err != nil {
				return err
			}
			summaries := mcplog.Summarize(entries)
			if c.jsonOutput() {
				return writeJSON(c.out, summaries)
			}
			printCallSummary(c.out, summaries)
			return nil
		},
	}
}
