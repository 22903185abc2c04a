package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/botforge/forge3d/internal/api"
	"github.com/botforge/forge3d/internal/config"
	"github.com/botforge/forge3d/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the forge3d HTTP server",
	Long: `Run the forge3d HTTP server in the foreground.

The server:
- Loads the generation models on the first /generate request
- Releases them before rigging so the rigging toolchain has the GPU
- Serves generated files under /parts/generated/
- Provides an HTTP API on port 8100 (configurable)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "listen host (default from config)")
	serveCmd.Flags().Int("port", 0, "listen port (default: 8100)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}

	logger := newLogger()
	defer logger.Sync()

	gin.SetMode(gin.ReleaseMode)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	d.SetAPIHandler(api.SetupRoutes(d, logger))

	if err := d.Start(cfg.Server.Addr()); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("forge3d listening",
		zap.String("addr", d.Addr()),
		zap.String("output_dir", d.Paths().OutputDir()))

	// Wait for shutdown signal
	d.Wait()

	return d.Shutdown()
}
