package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/blueprint/internal/httpapi"
	"github.com/HendryAvila/blueprint/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(app *server.App) error {
				// Logs go to stderr; stdout belongs to the protocol.
				return mcpserver.ServeStdio(app.MCP)
			})
		},
	}
}

func newHTTPCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Start the JSON/HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return c.withApp(ctx, func(app *server.App) error {
				hc := httpapi.DefaultConfig()
				hc.Addr = c.cfg.HTTP.Addr
				if addr != "" {
					hc.Addr = addr
				}
				srv, err := httpapi.NewServer(app.Manager, app.Logger, hc)
				if err != nil {
					return err
				}
				if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}
