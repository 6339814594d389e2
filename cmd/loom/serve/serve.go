// Package servecmder provides the serve command for running the loom API
// server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storyloom/loom/api"
	apimcp "github.com/storyloom/loom/api/mcp"
	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/logger"
)

type serveCommander struct {
	listen    string
	mcp       bool
	configDir string
	debug     bool
	logger    *zap.Logger
}

const serveLongDesc string = `Run the loom API server for inspecting projects, chapters, and the
memory layer over HTTP.

The server exposes read endpoints under /v1 and, unless disabled, an MCP
endpoint at /mcp so agents can search story memories and list open
foreshadows as tools.`

const serveShortDesc string = "Run the loom API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %v", err)
			}

			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", ":8081", "Address for API server to listen on")
	cmd.Flags().BoolVar(&cmder.mcp, "mcp", true, "Expose the MCP endpoint at /mcp")

	return cmd
}

func (c *serveCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	s, err := stack.Open(context.Background(), c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer s.Close()

	var mcpServer *apimcp.Server
	if c.mcp {
		mcpServer, err = apimcp.NewServer(apimcp.Config{
			Store:     s.Store,
			Retriever: s.NewRetriever(),
			Logger:    c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
	}

	apiConfig := api.Config{
		ListenAddr: c.listen,
	}
	server := api.NewServer(apiConfig, s.Store, s.NewRetriever(), mcpServer, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}
