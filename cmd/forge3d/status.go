package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/botforge/forge3d/internal/api/client"
	"github.com/botforge/forge3d/internal/gpu"
	"github.com/botforge/forge3d/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		apiClient := client.NewClient(getServerURL())
		status, err := apiClient.GetStatus()
		if err != nil {
			return fmt.Errorf("server is not responding at %s: %w", getServerURL(), err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Server Status:")
		printGPU(out, status.GPU)
		fmt.Fprintf(out, "  Models loaded: %v\n", status.ModelsLoaded)
		fmt.Fprintf(out, "  Output dir: %s\n", status.OutputDir)
		fmt.Fprintf(out, "  Generated parts: %d\n", status.GeneratedParts)
		fmt.Fprintf(out, "  Disk usage: %s (output %s, state %s)\n",
			ui.FormatBytes(status.DiskUsage.Total),
			ui.FormatBytes(status.DiskUsage.Output),
			ui.FormatBytes(status.DiskUsage.State))
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that a running server answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		apiClient := client.NewClient(getServerURL())
		health, err := apiClient.Health()
		if err != nil {
			ui.Cross(cmd.OutOrStdout(), "server at %s is not healthy", getServerURL())
			return err
		}
		ui.Check(cmd.OutOrStdout(), "server at %s is %s", getServerURL(), health.Status)
		return nil
	},
}

var partsCmd = &cobra.Command{
	Use:   "parts",
	Short: "List files written by a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		apiClient := client.NewClient(getServerURL())
		parts, err := apiClient.ListParts()
		if err != nil {
			return fmt.Errorf("failed to list parts: %w", err)
		}

		out := cmd.OutOrStdout()
		if parts.Count == 0 {
			fmt.Fprintln(out, "No parts found.")
			fmt.Fprintln(out, "\nUse 'forge3d generate' or POST /generate to create one.")
			return nil
		}

		var total int64
		for _, a := range parts.Assets {
			fmt.Fprintf(out, "%s %s %10s  %s\n",
				ui.PadRight(a.ID, 20),
				ui.PadRight(a.Kind, 16),
				ui.FormatBytes(a.Size),
				a.URL)
			total += a.Size
		}
		fmt.Fprintf(out, "\n%d parts, %s\n", parts.Count, ui.FormatBytes(total))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("server", "", "server base URL (default http://127.0.0.1:<server.port>)")
	viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))
	rootCmd.AddCommand(statusCmd, healthCmd, partsCmd)
}

// printGPU prints accelerator information the way the generate command does
func printGPU(w io.Writer, info gpu.Info) {
	mark := "✗"
	if info.Available {
		mark = "✓"
	}
	fmt.Fprintf(w, "  GPU Available: %s\n", mark)
	if !info.Available {
		if info.Error != "" {
			fmt.Fprintf(w, "  GPU Error: %s\n", info.Error)
		}
		return
	}
	fmt.Fprintf(w, "  GPU: %s (x%d)\n", info.Name, info.Count)
	fmt.Fprintf(w, "  VRAM Total: %.2f GB\n", info.TotalGB)
	fmt.Fprintf(w, "  VRAM Free: %.2f GB\n", info.FreeGB)
	fmt.Fprintf(w, "  VRAM Used: %.2f GB\n", info.AllocatedGB)
}
