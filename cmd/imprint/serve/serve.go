// Package servecmder provides the serve command running the API server and
// pipeline workers.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soulprintco/imprint/api"
	"github.com/soulprintco/imprint/pkg/config"
	"github.com/soulprintco/imprint/pkg/logger"
)

type ServeCommander struct {
	listen    string
	configDir string
	debug     bool
	logger    *zap.Logger
}

const serveLongDesc string = `Run the imprint API server and pipeline workers.

Jobs submitted over the API are processed by a background worker pool;
each job streams the archive from object storage, reconstructs and chunks
its conversations, extracts and consolidates facts, and synthesizes the
user's memory document.

Configuration comes from config.toml in the .imprint/ directory, overridden
by IMPRINT_* environment variables and command flags.`

const serveShortDesc string = "Run the imprint API server and workers"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

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
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address for the API server to listen on (overrides config)")

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	v, err := config.InitViper(c.configDir)
	if err != nil {
		return err
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	if c.listen != "" {
		cfg.API.Listen = c.listen
	}

	ctx := context.Background()
	system, err := NewSystem(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer system.Close()

	server := api.NewServer(api.Config{ListenAddr: cfg.API.Listen}, system.Runner, system.Store, c.logger)

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
