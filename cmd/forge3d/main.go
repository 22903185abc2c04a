package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/botforge/forge3d/internal/config"
	"github.com/botforge/forge3d/internal/logging"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "forge3d",
		Short: "Image to 3D part generation server for robot building",
		Long: `forge3d turns images into 3D parts for robot building. It runs a local
HTTP server that generates meshes from images, finds reference images,
merges parts into assemblies and rigs them for animation.

Key Commands:
  init      - Create directories and write a configuration file
  serve     - Run the HTTP server in the foreground
  generate  - Generate a mesh from one image without the server
  status    - Show accelerator and model status of a running server
  health    - Check that a running server answers
  parts     - List the files a running server has written`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.config/forge3d/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	// Initialize our config system
	if err := config.Initialize(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}

	// Create all necessary directories
	if err := config.CreateAllDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directories: %v\n", err)
		os.Exit(1)
	}

	if viper.GetBool("verbose") {
		config.Get().Log.Level = "debug"
	}
}

// newLogger builds the process logger from the loaded configuration
func newLogger() *zap.Logger {
	return logging.New(config.Get().Log)
}

// getServerURL returns the base URL of the server the client commands talk to
func getServerURL() string {
	if url := viper.GetString("server_url"); url != "" {
		return url
	}
	port := config.Get().Server.Port
	if port == 0 {
		port = 8100
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
