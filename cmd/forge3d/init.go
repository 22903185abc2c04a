package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/botforge/forge3d/internal/config"
	"github.com/botforge/forge3d/internal/ui"
)

var (
	initForce bool
	initPath  string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the forge3d directories and write a configuration file",
	Long: `Create the forge3d directories and write the effective configuration
(defaults, config file and FORGE3D_* environment) to a YAML file so it can be
edited.

The file goes to $HOME/.config/forge3d/config.yaml unless --path is given.
An existing file is kept unless --force is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd, initPath, initForce)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing configuration file")
	initCmd.Flags().StringVar(&initPath, "path", "", "write the configuration to this file")
}

func runInit(cmd *cobra.Command, path string, force bool) error {
	out := cmd.OutOrStdout()
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if err := config.CreateAllDirs(); err != nil {
		return err
	}
	cfg := config.Get()
	ui.Check(out, "Base directory: %s", cfg.Storage.BaseDir)
	ui.Check(out, "Output directory: %s", cfg.Storage.OutputDir)

	if _, err := os.Stat(path); err == nil && !force {
		ui.Check(out, "Configuration already exists: %s", path)
		fmt.Fprintln(out, "    (use --force to overwrite)")
		return nil
	}

	if err := config.SaveConfig(path); err != nil {
		ui.Cross(out, "Could not write configuration: %s", path)
		return err
	}
	ui.Check(out, "Wrote configuration: %s", path)

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Run 'forge3d generate --test --gpu-check' to check the accelerator")
	fmt.Fprintln(out, "  2. Run 'forge3d serve' to start the server")
	return nil
}
